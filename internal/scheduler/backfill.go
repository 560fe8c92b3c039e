package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/deskd-io/deskd/internal/embed"
	"github.com/deskd-io/deskd/internal/store"
)

// backfillBatch bounds how many messages one backfill run embeds.
const backfillBatch = 100

// Backfill embeds ticket messages that were written before the embedding
// service was available, or whose embedding calls failed at write time.
type Backfill struct {
	Store    store.Store
	Embedder embed.Embedder
	Logger   *slog.Logger
}

// Run processes one batch. Individual embedding failures are logged and
// retried on the next run; they never abort the batch.
func (b *Backfill) Run(ctx context.Context) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	msgs, err := b.Store.MessagesMissingEmbedding(backfillBatch)
	if err != nil {
		logger.Error("backfill: list messages", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	start := time.Now()
	var done int
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		vec, err := b.Embedder.Embed(ctx, msg.Body)
		if err != nil {
			logger.Warn("backfill: embed", "message", msg.ID, "error", err)
			continue
		}
		if err := b.Store.SaveMessageEmbedding(msg.ID, vec); err != nil {
			logger.Warn("backfill: save embedding", "message", msg.ID, "error", err)
			continue
		}
		done++
	}
	logger.Info("embedding backfill",
		"pending", len(msgs),
		"embedded", done,
		"duration", time.Since(start),
	)
}
