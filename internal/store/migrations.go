package store

import "embed"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS
