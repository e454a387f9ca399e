package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestTopicsReady(t *testing.T) {
	tests := []struct {
		name string
		errs map[string]error
		want bool
	}{
		{name: "created", errs: map[string]error{"operation-usage": nil}, want: true},
		{name: "already exists", errs: map[string]error{"operation-usage": kafkago.TopicAlreadyExists}, want: true},
		{name: "failed", errs: map[string]error{"operation-usage": kafkago.InvalidReplicationFactor}, want: false},
		{name: "mixed", errs: map[string]error{"a": nil, "b": errors.New("boom")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, topicsReady(&kafkago.CreateTopicsResponse{Errors: tt.errs}))
		})
	}
}

func TestWaitKafkaReady_GivesUpOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := WaitKafkaReady(ctx, "127.0.0.1:1", 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInitKafkaTopics_GivesUpOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := InitKafkaTopics(ctx, "127.0.0.1:1", 50*time.Millisecond, "operation-usage")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
