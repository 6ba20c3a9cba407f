package migrate

import (
	"embed"
	"io/fs"
	"os"
)

// DefaultDir is where `-cmd=create` writes new files in a checkout.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source is a set of goose SQL migrations rooted at the top of FS.
type Source struct {
	Name string
	FS   fs.FS
}

// Embedded returns the migrations compiled into the binary.
func Embedded() Source {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		// the embed pattern guarantees the directory exists
		panic(err)
	}
	return Source{Name: "embedded", FS: sub}
}

// FromDir reads migrations from a directory on disk.
func FromDir(dir string) Source {
	return Source{Name: dir, FS: os.DirFS(dir)}
}
