// Package migrations embeds SQL migration files into the binary.
//
// This lets huesync apply its schema at startup without shipping the SQL
// files alongside the executable.
package migrations

import (
	"embed"

	"github.com/zefau/huesync/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
