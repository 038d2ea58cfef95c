package migrations

import "embed"

// Files holds one directory of ordered SQL files per dialect.
//
//go:embed mysql/*.sql sqlite/*.sql
var Files embed.FS
