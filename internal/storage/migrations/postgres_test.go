package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresFiles_Ordered(t *testing.T) {
	files, err := PostgresFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_tokens.sql", "002_mention_claims.sql"}, files)
}

func TestTokensSchema_UniqueCastHash(t *testing.T) {
	data, err := fs.ReadFile(PostgresFS, "postgres/001_tokens.sql")
	require.NoError(t, err)
	sql := string(data)
	assert.True(t, strings.Contains(sql, "UNIQUE (cast_hash)"))
	assert.True(t, strings.Contains(sql, "IF NOT EXISTS"))
}
