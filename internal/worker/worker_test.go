package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func usageMessage(t *testing.T, offset int64, ev model.UsageEvent) kafkago.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(ev.UID.String()), Value: payload, Offset: offset}
}

func validEvent() model.UsageEvent {
	return model.UsageEvent{
		UID:        uuid.New(),
		Operation:  "blur",
		Params:     model.ParamsJSON{"intensity": 5.0},
		Status:     model.UsageOK,
		InWidth:    4,
		InHeight:   3,
		InChannels: 3,
		OutWidth:   4,
		OutHeight:  3,
		DurationMS: 12,
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWorker_handleMessage(t *testing.T) {
	ctx := context.Background()
	ev := validEvent()

	tests := []struct {
		name      string
		msg       kafkago.Message
		saveErr   error
		wantSaved bool
		wantErr   bool
	}{
		{
			name:      "saved",
			msg:       usageMessage(t, 1, ev),
			wantSaved: true,
		},
		{
			name: "malformed payload skipped",
			msg:  kafkago.Message{Key: []byte("x"), Value: []byte("{not json")},
		},
		{
			name:      "incomplete event skipped",
			msg:       usageMessage(t, 2, model.UsageEvent{}),
			saveErr:   model.ErrInvalidUsage,
			wantSaved: true,
		},
		{
			name:      "db failure is retried",
			msg:       usageMessage(t, 3, ev),
			saveErr:   model.ErrCommon500,
			wantSaved: true,
			wantErr:   true,
		},
		{
			name:      "ledger disabled is retried",
			msg:       usageMessage(t, 4, ev),
			saveErr:   model.ErrStatsDisabled,
			wantSaved: true,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := false
			svc := &mockWorkerService{
				saveFn: func(ctx context.Context, got *model.UsageEvent) error {
					saved = true
					if tt.saveErr == nil {
						require.Equal(t, ev.UID, got.UID)
						require.Equal(t, "blur", got.Operation)
						require.Equal(t, 5.0, got.Params["intensity"])
						require.True(t, ev.CreatedAt.Equal(got.CreatedAt))
					}
					return tt.saveErr
				},
			}

			w := NewWorkerInstance(svc, nil, &mockCommitter{})
			err := w.handleMessage(ctx, tt.msg)

			require.Equal(t, tt.wantSaved, saved)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, tt.saveErr))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWorker_StartWorker(t *testing.T) {
	ok := validEvent()
	failing := validEvent()

	svc := &mockWorkerService{
		saveFn: func(ctx context.Context, ev *model.UsageEvent) error {
			if ev.UID == failing.UID {
				return model.ErrCommon500
			}
			return nil
		},
	}

	queue := make(chan kafkago.Message, 3)
	queue <- usageMessage(t, 10, ok)
	queue <- usageMessage(t, 11, failing)
	queue <- kafkago.Message{Value: []byte("garbage"), Offset: 12}
	close(queue)

	cons := &mockCommitter{}
	w := NewWorkerInstance(svc, queue, cons)

	done := make(chan struct{})
	go func() {
		w.StartWorker(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue was closed")
	}

	// упавшее сообщение не коммитится
	require.Equal(t, []int64{10, 12}, cons.offsets())
}

func TestWorker_StartWorker_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorkerInstance(&mockWorkerService{}, make(chan kafkago.Message), &mockCommitter{})

	done := make(chan struct{})
	go func() {
		w.StartWorker(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_CommitErrorKeepsRunning(t *testing.T) {
	svc := &mockWorkerService{
		saveFn: func(context.Context, *model.UsageEvent) error { return nil },
	}
	queue := make(chan kafkago.Message, 2)
	queue <- usageMessage(t, 1, validEvent())
	queue <- usageMessage(t, 2, validEvent())
	close(queue)

	cons := &mockCommitter{commitErr: errors.New("broker gone")}
	NewWorkerInstance(svc, queue, cons).StartWorker(context.Background())

	require.Equal(t, []int64{1, 2}, cons.offsets())
}
