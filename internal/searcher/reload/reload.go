// Package reload swaps the searcher onto a new generation when the indexer
// announces one.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labinochka/OIP/internal/indexer"
	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/pkg/kafka"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/resilience"
)

// Reloader is the part of *executor.Executor a reload needs.
type Reloader interface {
	Reload(ctx context.Context) (index.Summary, error)
	Generation() string
}

// Invalidator drops cached results. *cache.QueryCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler turns index-complete events into snapshot reloads.
type Handler struct {
	reloader Reloader
	cache    Invalidator
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Handler. cache may be nil. Each reload is bounded by
// timeout; zero means unbounded.
func New(reloader Reloader, cache Invalidator, timeout time.Duration) *Handler {
	return &Handler{
		reloader: reloader,
		cache:    cache,
		timeout:  timeout,
		logger:   logger.WithComponent("snapshot-reloader"),
	}
}

// HandleMessage is a kafka.MessageHandler. Malformed and foreign messages
// are dropped; a failed reload is returned so the offset stays uncommitted.
func (h *Handler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if msg.Type != "" && msg.Type != indexer.EventIndexComplete {
		h.logger.Debug("ignoring event", "type", msg.Type)
		return nil
	}
	event, err := kafka.DecodeJSON[indexer.IndexCompleteEvent](msg.Value)
	if err != nil {
		h.logger.Error("dropping malformed event", "offset", msg.Offset, "error", err)
		return nil
	}
	return h.Apply(ctx, event)
}

// Apply reloads CURRENT unless the announced generation is already being
// served. CURRENT is authoritative: if it moved past the announced
// generation the newer one is loaded.
func (h *Handler) Apply(ctx context.Context, event indexer.IndexCompleteEvent) error {
	serving := h.reloader.Generation()
	if event.Generation != "" && event.Generation == serving {
		h.logger.Debug("generation already served", "generation", serving, "event_id", event.EventID)
		return nil
	}
	summary, err := resilience.WithTimeout(ctx, h.timeout, "snapshot-reload", h.reloader.Reload)
	if err != nil {
		return fmt.Errorf("reloading for generation %s: %w", event.Generation, err)
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	h.logger.Info("snapshot reloaded",
		"announced", event.Generation,
		"generation", summary.Generation,
		"previous", serving,
		"documents", summary.Documents,
		"event_id", event.EventID,
	)
	return nil
}
