// Package migrations applies the embedded SQL schema.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/storage/postgres"
)

// RunPostgres applies all embedded SQL files in lexical order. Every file is
// written to be idempotent, so running this on each start is safe.
func RunPostgres(ctx context.Context, pool *postgres.Pool) error {
	files, err := PostgresFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("migrations: apply %s: %w", file, err)
		}
		log.Debug().Str("file", file).Msg("migration applied")
	}

	log.Info().Int("files", len(files)).Msg("postgres migrations applied")
	return nil
}

// PostgresFiles lists the embedded migration file names in apply order.
func PostgresFiles() ([]string, error) {
	entries, err := fs.ReadDir(PostgresFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
