package worker

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImageOps/internal/model"
	kafkago "github.com/segmentio/kafka-go"
)

type mockWorkerService struct {
	saveFn func(ctx context.Context, ev *model.UsageEvent) error
}

func (m *mockWorkerService) SaveUsage(ctx context.Context, ev *model.UsageEvent) error {
	return m.saveFn(ctx, ev)
}

//----------------------------------

type mockCommitter struct {
	mu        sync.Mutex
	committed []int64
	commitErr error
}

func (m *mockCommitter) Commit(_ context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msg.Offset)
	return m.commitErr
}

func (m *mockCommitter) offsets() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.committed...)
}
