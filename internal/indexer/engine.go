// Package indexer runs a full index build: read the corpus, derive the
// vocabulary, build the snapshot, save it as a new generation and announce
// it to the searchers.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/normalizer"
	"github.com/labinochka/OIP/pkg/kafka"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/metrics"
	"github.com/labinochka/OIP/pkg/resilience"
	"github.com/labinochka/OIP/pkg/tracing"
)

// EventIndexComplete is the event type of IndexCompleteEvent.
const EventIndexComplete = "index.complete"

// generationLayout sorts lexically in build order.
const generationLayout = "20060102T150405.000000000Z"

// IndexCompleteEvent announces that a generation is saved and CURRENT points
// at it.
type IndexCompleteEvent struct {
	EventID    string    `json:"event_id"`
	Generation string    `json:"generation"`
	Documents  int       `json:"documents"`
	Lemmas     int       `json:"lemmas"`
	Tokens     int       `json:"tokens"`
	BuiltAt    time.Time `json:"built_at"`
}

// Saver persists a snapshot as the current generation.
type Saver interface {
	Save(ctx context.Context, snap *index.Snapshot) error
}

// Publisher delivers events. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Engine struct {
	source    corpus.Source
	builder   *index.Builder
	saver     Saver
	publisher Publisher
	retry     resilience.RetryConfig
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPublisher announces every saved generation through p.
func WithPublisher(p Publisher, retry resilience.RetryConfig) EngineOption {
	return func(e *Engine) {
		e.publisher = p
		e.retry = retry
	}
}

// WithMetrics records build metrics to m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(source corpus.Source, builder *index.Builder, saver Saver, opts ...EngineOption) *Engine {
	e := &Engine{
		source:  source,
		builder: builder,
		saver:   saver,
		now:     time.Now,
		logger:  logger.WithComponent("indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewGeneration names the generation built at t.
func NewGeneration(t time.Time) string {
	return t.UTC().Format(generationLayout)
}

// Run performs one complete build. When the generation is saved but the
// announcement fails, the summary is returned together with the error.
func (e *Engine) Run(ctx context.Context) (index.Summary, error) {
	start := e.now()
	generation := NewGeneration(start)
	ctx, span := tracing.Start(ctx, "index-build")
	span.SetAttr("generation", generation)
	defer func() {
		span.End()
		span.Log(e.logger)
	}()

	var c *corpus.Corpus
	err := tracing.Run(ctx, "load-corpus", func(ctx context.Context) error {
		var err error
		c, err = e.source.Load(ctx)
		if err == nil {
			tracing.FromContext(ctx).SetAttr("documents", c.Len())
		}
		return err
	})
	if err != nil {
		span.Fail(err)
		e.finish("error", start)
		return index.Summary{}, fmt.Errorf("loading corpus: %w", err)
	}

	var vocab *normalizer.Vocabulary
	err = tracing.Run(ctx, "vocabulary", func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vocab = normalizer.BuildVocabulary(c.Tokens())
		tracing.FromContext(ctx).SetAttr("lemmas", vocab.Len())
		return nil
	})
	if err != nil {
		span.Fail(err)
		e.finish("error", start)
		return index.Summary{}, fmt.Errorf("deriving vocabulary: %w", err)
	}

	var snap *index.Snapshot
	err = tracing.Run(ctx, "build", func(ctx context.Context) error {
		var err error
		snap, err = e.builder.Build(ctx, c, vocab, generation)
		return err
	})
	if err != nil {
		span.Fail(err)
		e.finish("error", start)
		return index.Summary{}, fmt.Errorf("building snapshot: %w", err)
	}
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Add(float64(c.Len()))
	}

	if err := tracing.Run(ctx, "save", func(ctx context.Context) error {
		return e.saver.Save(ctx, snap)
	}); err != nil {
		span.Fail(err)
		e.finish("error", start)
		return index.Summary{}, fmt.Errorf("saving generation %s: %w", generation, err)
	}
	summary := snap.Summary()

	if e.publisher != nil {
		if err := tracing.Run(ctx, "publish", func(ctx context.Context) error {
			return e.publish(ctx, summary)
		}); err != nil {
			span.Fail(err)
			e.finish("publish_error", start)
			return summary, fmt.Errorf("generation %s saved but not announced: %w", generation, err)
		}
	}

	e.finish("success", start)
	e.logger.Info("index build complete",
		"generation", summary.Generation,
		"documents", summary.Documents,
		"lemmas", summary.Lemmas,
		"tokens", summary.Tokens,
		"postings", summary.Postings,
		"duration", e.now().Sub(start),
	)
	return summary, nil
}

func (e *Engine) publish(ctx context.Context, summary index.Summary) error {
	event := kafka.Event{
		Type: EventIndexComplete,
		Key:  summary.Generation,
		Value: IndexCompleteEvent{
			EventID:    uuid.NewString(),
			Generation: summary.Generation,
			Documents:  summary.Documents,
			Lemmas:     summary.Lemmas,
			Tokens:     summary.Tokens,
			BuiltAt:    e.now().UTC(),
		},
	}
	return resilience.Retry(ctx, "publish-index-complete", e.retry, func(ctx context.Context) error {
		err := e.publisher.Publish(ctx, event)
		if errors.Is(err, kafka.ErrEncode) {
			return resilience.Permanent(err)
		}
		return err
	})
}

func (e *Engine) finish(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	e.metrics.IndexBuildDuration.Observe(e.now().Sub(start).Seconds())
}
