package service

import (
	"context"
	"sync"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/wb-go/wbf/retry"
)

// MOCK DISPATCHER

type mockDispatcher struct {
	dispatchFn func(ctx context.Context, name string, buf *imgbuf.Buffer, params registry.Params) (registry.Result, error)
	lookupFn   func(name string) (registry.Operation, bool)
	describeFn func() []registry.Descriptor
}

func (m *mockDispatcher) Dispatch(ctx context.Context, name string, buf *imgbuf.Buffer, params registry.Params) (registry.Result, error) {
	return m.dispatchFn(ctx, name, buf, params)
}

func (m *mockDispatcher) Lookup(name string) (registry.Operation, bool) {
	if m.lookupFn == nil {
		return nil, false
	}
	return m.lookupFn(name)
}

func (m *mockDispatcher) Describe() []registry.Descriptor {
	return m.describeFn()
}

// MOCK RESPOSITORY

type mockRepo struct {
	saveFn  func(ctx context.Context, ev *model.UsageEvent) error
	statsFn func(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error)
}

func (m *mockRepo) Save(ctx context.Context, ev *model.UsageEvent) error {
	return m.saveFn(ctx, ev)
}

func (m *mockRepo) Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error) {
	return m.statsFn(ctx, req)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

// MOCK RECORDER

type mockRecorder struct {
	mu           sync.Mutex
	observed     []string
	publishFails int
}

func (m *mockRecorder) ObserveOperation(operation, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, operation+"/"+outcome)
}

func (m *mockRecorder) UsagePublishFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishFails++
}

func (m *mockRecorder) fails() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishFails
}
