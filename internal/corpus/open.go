package corpus

import (
	"context"
	"fmt"

	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/postgres"
)

// Open builds the Source selected by cfg.Corpus. The returned close function
// releases any connection the source holds and is never nil.
func Open(ctx context.Context, cfg *config.Config) (Source, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Corpus.Source {
	case config.SourceDir:
		return NewDirSource(cfg.Corpus.PagesDir, cfg.Corpus.RegistryFile, cfg.Index.IOWorkers), noop, nil
	case config.SourcePostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		src, err := NewPostgresSource(client, cfg.Corpus.Table)
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		return src, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}
}
