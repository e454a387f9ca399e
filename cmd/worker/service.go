package main

import (
	"context"

	"github.com/UnendingLoop/ImageOps/internal/model"
)

type UsageWorkerService interface {
	SaveUsage(ctx context.Context, ev *model.UsageEvent) error
}
