package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/utilitysplit/api/responses"
	"github.com/angelmondragon/utilitysplit/pkg/config"
)

// CORS applies the configured origin policy. With no origins configured the
// handler is returned untouched.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", responses.RequestIDHeader},
		ExposedHeaders:   []string{responses.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           cfg.MaxAgeSeconds,
	}).Handler
}
