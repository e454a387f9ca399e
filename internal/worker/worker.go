// Package worker contains the consumer that moves usage events from the queue into the usage ledger
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/mwlogger"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

type UsageWorkerService interface {
	SaveUsage(ctx context.Context, ev *model.UsageEvent) error
}

// Committer - контракт консьюмера для подтверждения сообщений
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Worker struct {
	service  UsageWorkerService
	queue    <-chan kafkago.Message
	consumer Committer
}

func NewWorkerInstance(svc UsageWorkerService, q <-chan kafkago.Message, cons Committer) *Worker {
	return &Worker{service: svc, queue: q, consumer: cons}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				log.Println("Queue channel closed, stopping worker...")
				return
			}
			if err := w.handleMessage(ctx, msg); err != nil {
				// не коммитим - сообщение будет перечитано
				zlog.Logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Usage event left uncommitted")
				continue
			}
			if err := w.consumer.Commit(ctx, msg); err != nil {
				log.Printf("Failed to commit queue-message: %v", err)
			}
		}
	}
}

// handleMessage returns an error only when the message should be redelivered.
// Malformed or incomplete events are logged and skipped.
func (w *Worker) handleMessage(ctx context.Context, msg kafkago.Message) error {
	logger := zlog.Logger.With().
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()
	ctx = mwlogger.WithLogger(ctx, logger)

	var ev model.UsageEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.Warn().Err(err).Msg("Skipping malformed usage event")
		return nil
	}

	err := w.service.SaveUsage(ctx, &ev)
	switch {
	case err == nil:
		logger.Debug().Str("operation", ev.Operation).Msg("Usage event saved")
		return nil
	case errors.Is(err, model.ErrInvalidUsage):
		logger.Warn().Err(err).Msg("Skipping incomplete usage event")
		return nil
	default:
		return fmt.Errorf("save usage event %q: %w", ev.UID, err)
	}
}
