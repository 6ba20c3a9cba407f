// Command mint-token prints an API bearer token for a registered member.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/pkg/auth"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "mint-token"})

	_ = godotenv.Load()

	memberID := flag.String("member", "", "telegram user id of the member")
	allowUnknown := flag.Bool("allow-unregistered", false, "mint for an id that has not registered yet (tenant role)")
	flag.Parse()

	if strings.TrimSpace(*memberID) == "" {
		fmt.Fprintln(os.Stderr, "missing -member")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	ctx := logg.WithMemberID(context.Background(), *memberID)

	role, err := resolveRole(ctx, cfg, logg, *memberID, *allowUnknown)
	if err != nil {
		logg.Error(ctx, "failed to resolve member role", err)
		os.Exit(1)
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now().UTC(), auth.AccessTokenPayload{
		MemberID: *memberID,
		Role:     role,
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func resolveRole(ctx context.Context, cfg *config.Config, logg *logger.Logger, memberID string, allowUnknown bool) (enums.MemberRole, error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return "", err
	}
	defer dbClient.Close()

	registry, err := members.NewService(members.ServiceParams{
		Repo:    members.NewRepository(dbClient.DB()),
		AdminID: cfg.Billing.AdminID,
		Logger:  logg,
	})
	if err != nil {
		return "", err
	}

	if registry.IsAdmin(memberID) {
		return enums.MemberRoleAdmin, nil
	}
	if _, err := registry.Get(ctx, memberID); err != nil {
		if !allowUnknown {
			return "", fmt.Errorf("member %s: %w", memberID, err)
		}
	}
	return enums.MemberRoleTenant, nil
}
