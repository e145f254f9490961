package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/labinochka/OIP/pkg/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SnapshotReader runs fn against a consistent read-only view of the
// database. *postgres.Client implements it.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresSource reads documents from a table with columns (id, url, body),
// where body holds cleaned plaintext.
type PostgresSource struct {
	db     SnapshotReader
	table  string
	logger *slog.Logger
}

// NewPostgresSource validates the table name and returns a Source.
func NewPostgresSource(db SnapshotReader, table string) (*PostgresSource, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid corpus table name %q", table)
	}
	return &PostgresSource{
		db:     db,
		table:  table,
		logger: logger.WithComponent("corpus-postgres"),
	}, nil
}

// Load selects every row inside one read-only transaction and builds a
// Corpus from it.
func (s *PostgresSource) Load(ctx context.Context) (*Corpus, error) {
	var (
		docs []Document
		urls = make(map[string]string)
	)
	err := s.db.ReadSnapshot(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`SELECT id, url, body FROM %s ORDER BY id`, s.table)
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("querying corpus table %s: %w", s.table, err)
		}
		defer rows.Close()

		for rows.Next() {
			var id, url, body string
			if err := rows.Scan(&id, &url, &body); err != nil {
				return fmt.Errorf("scanning corpus row: %w", err)
			}
			if _, dup := urls[id]; dup {
				return fmt.Errorf("duplicate document id %q in %s", id, s.table)
			}
			urls[id] = url
			docs = append(docs, NewDocument(id, body))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating corpus rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c, err := New(docs, NewRegistry(urls))
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "table", s.table, "documents", c.Len())
	return c, nil
}
