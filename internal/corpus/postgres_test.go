package corpus

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinochka/OIP/pkg/config"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/postgres"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, err := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	require.NoError(t, err)
	db, err := postgres.New(context.Background(), config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "oip_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "oip"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestPostgresSourceLoad(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	_, err := db.DB.ExecContext(ctx, `CREATE TEMP TABLE corpus_test (id TEXT PRIMARY KEY, url TEXT NOT NULL, body TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.DB.ExecContext(ctx, `INSERT INTO corpus_test VALUES ('b', 'http://b', 'running dogs'), ('a', 'http://a', 'sleeping cats')`)
	require.NoError(t, err)

	src, err := NewPostgresSource(db, "corpus_test")
	require.NoError(t, err)
	c, err := src.Load(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	assert.Equal(t, "a", c.Documents()[0].ID)
	assert.Equal(t, []string{"sleeping", "cats"}, c.Documents()[0].Tokens)
}

func TestPostgresSourceRejectsBadURL(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	_, err := db.DB.ExecContext(ctx, `CREATE TEMP TABLE corpus_bad_url (id TEXT PRIMARY KEY, url TEXT NOT NULL, body TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.DB.ExecContext(ctx, `INSERT INTO corpus_bad_url VALUES ('a', '', 'sleeping cats')`)
	require.NoError(t, err)

	src, err := NewPostgresSource(db, "corpus_bad_url")
	require.NoError(t, err)
	_, err = src.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCorpus)
}
