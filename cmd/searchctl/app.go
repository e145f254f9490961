package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/indexer"
	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/indexer/store"
	"github.com/labinochka/OIP/internal/normalizer"
	"github.com/labinochka/OIP/internal/searcher/boolean"
	"github.com/labinochka/OIP/internal/searcher/executor"
	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/logger"
)

const exitCommand = "exit"

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "searchctl",
		Usage:     "Build and query the boolean / TF-IDF search index",
		Reader:    in,
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Index data directory (overrides index.dataDir)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "error",
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetupWriter(c.App.ErrWriter, c.String("log-level"), "text")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build a new index generation from the configured corpus",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pages", Usage: "Pages directory (overrides corpus.pagesDir)"},
					&cli.StringFlag{Name: "registry", Usage: "Registry file (overrides corpus.registryFile)"},
					&cli.IntFlag{Name: "workers", Usage: "Build workers (overrides index.buildWorkers)"},
				},
			},
			{
				Name:      "boolean",
				Usage:     "Run a boolean query (AND, OR, NOT, parentheses)",
				ArgsUsage: "[query]",
				Action:    booleanCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read queries until \"exit\""},
				},
			},
			{
				Name:      "search",
				Usage:     "Rank documents against a free-text query by cosine similarity",
				ArgsUsage: "[query]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read queries until \"exit\""},
					&cli.IntFlag{Name: "top", Aliases: []string{"k"}, Usage: "Number of results to print", Value: 10},
				},
			},
			{
				Name:      "lemmatize",
				Usage:     "Print the tokens and lemmas of the given text",
				ArgsUsage: "<text>",
				Action:    lemmatizeCommand,
			},
			{
				Name:   "inspect",
				Usage:  "Describe the current index generation",
				Action: inspectCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lemma", Usage: "Show DF, IDF and postings of a lemma"},
					&cli.StringFlag{Name: "doc", Usage: "Show the TF-IDF vector of a document"},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.Index.DataDir = dir
	}
	return cfg, nil
}

func openStore(cfg *config.Config) *store.Store {
	return store.New(cfg.Index.DataDir,
		store.WithIOWorkers(cfg.Index.IOWorkers),
		store.WithKeepGenerations(cfg.Index.KeepGenerations),
	)
}

func loadExecutor(c *cli.Context) (*executor.Executor, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	exec := executor.New(openStore(cfg), nil)
	if _, err := exec.Reload(c.Context); err != nil {
		return nil, err
	}
	return exec, nil
}

func buildCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if pages := c.String("pages"); pages != "" {
		cfg.Corpus.Source = config.SourceDir
		cfg.Corpus.PagesDir = pages
	}
	if registry := c.String("registry"); registry != "" {
		cfg.Corpus.RegistryFile = registry
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Index.BuildWorkers = workers
	}
	source, closeSource, err := corpus.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	engine := indexer.NewEngine(source, index.NewBuilder(index.WithWorkers(cfg.Index.BuildWorkers)), openStore(cfg))
	summary, err := engine.Run(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "generation %s: %d documents, %d lemmas, %d tokens, %d postings\n",
		summary.Generation, summary.Documents, summary.Lemmas, summary.Tokens, summary.Postings)
	return nil
}

func booleanCommand(c *cli.Context) error {
	exec, err := loadExecutor(c)
	if err != nil {
		return err
	}
	run := func(query string) error {
		res, err := exec.Boolean(c.Context, query)
		if err != nil {
			var perr *boolean.ParseError
			if errors.As(err, &perr) {
				fmt.Fprintf(c.App.Writer, "error: %v\n", perr)
				return nil
			}
			return err
		}
		if len(res.Results) == 0 {
			fmt.Fprintln(c.App.Writer, "no documents found")
			return nil
		}
		for _, r := range res.Results {
			fmt.Fprintln(c.App.Writer, r.URL)
		}
		return nil
	}
	return dispatch(c, run)
}

func searchCommand(c *cli.Context) error {
	exec, err := loadExecutor(c)
	if err != nil {
		return err
	}
	top := c.Int("top")
	if top <= 0 {
		return fmt.Errorf("--top must be positive")
	}
	run := func(query string) error {
		res, err := exec.Vector(c.Context, query)
		if err != nil {
			return err
		}
		if len(res.Results) == 0 {
			fmt.Fprintln(c.App.Writer, "no documents found")
			return nil
		}
		for _, r := range res.Results[:min(top, len(res.Results))] {
			fmt.Fprintf(c.App.Writer, "%s | score=%.4f\n", r.URL, r.Score)
		}
		return nil
	}
	return dispatch(c, run)
}

// dispatch runs the query given as arguments, or every line read from the
// app's reader until "exit" or EOF when --interactive is set.
func dispatch(c *cli.Context, run func(query string) error) error {
	if !c.Bool("interactive") {
		query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
		if query == "" {
			return fmt.Errorf("a query is required unless --interactive is set")
		}
		return run(query)
	}
	return interactive(c.Context, c.App.Reader, c.App.Writer, run)
}

func interactive(ctx context.Context, in io.Reader, out io.Writer, run func(query string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == exitCommand {
			return nil
		}
		if query == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := run(query); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func lemmatizeCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}
	for _, token := range normalizer.Tokenize(text) {
		fmt.Fprintf(c.App.Writer, "%s %s\n", token, normalizer.Lemmatize(token))
	}
	return nil
}

func inspectCommand(c *cli.Context) error {
	exec, err := loadExecutor(c)
	if err != nil {
		return err
	}
	snap := exec.Snapshot()
	w := c.App.Writer

	if lemma := c.String("lemma"); lemma != "" {
		resolved, ok := snap.Vocabulary().Resolve(lemma)
		if !ok {
			return fmt.Errorf("unknown lemma %q", lemma)
		}
		idf, _ := snap.IDF(resolved)
		fmt.Fprintf(w, "lemma %s\n", resolved)
		fmt.Fprintf(w, "tokens %s\n", strings.Join(snap.Vocabulary().Members(resolved), " "))
		fmt.Fprintf(w, "df %d\n", snap.DF(resolved))
		fmt.Fprintf(w, "idf %.6f\n", idf)
		fmt.Fprintf(w, "docs %s\n", strings.Join(snap.Index().DocIDs(resolved), " "))
		return nil
	}

	if docID := c.String("doc"); docID != "" {
		vec, ok := snap.Vector(docID)
		if !ok {
			return fmt.Errorf("unknown document %q", docID)
		}
		fmt.Fprintf(w, "doc %s %s\n", docID, snap.URL(docID))
		for _, lemma := range snap.LemmasOf(docID) {
			idf, _ := snap.IDF(lemma)
			fmt.Fprintf(w, "%s %.6f %.6f\n", lemma, idf, vec[lemma])
		}
		return nil
	}

	s := snap.Summary()
	fmt.Fprintf(w, "generation %s\n", s.Generation)
	fmt.Fprintf(w, "documents %d\n", s.Documents)
	fmt.Fprintf(w, "lemmas %d\n", s.Lemmas)
	fmt.Fprintf(w, "tokens %d\n", s.Tokens)
	fmt.Fprintf(w, "postings %d\n", s.Postings)
	return nil
}
