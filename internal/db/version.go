package db

import (
	"path"

	"github.com/persistorai/graphrouter/internal/db/migrations"
)

// SchemaVersion returns the number of embedded SQL migrations, which is the
// schema version the postgres backend logs on connect.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			count++
		}
	}

	return count
}
