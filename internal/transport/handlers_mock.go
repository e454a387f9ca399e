package transport

import (
	"context"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/gin-gonic/gin"
)

type mockProcessService struct {
	processFn    func(ctx context.Context, req *model.ProcessRequest) (*model.ProcessResponse, error)
	operationsFn func() []registry.Descriptor
	statsFn      func(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error)
}

func (m *mockProcessService) Process(ctx context.Context, req *model.ProcessRequest) (*model.ProcessResponse, error) {
	return m.processFn(ctx, req)
}

func (m *mockProcessService) Operations() []registry.Descriptor {
	return m.operationsFn()
}

func (m *mockProcessService) Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error) {
	return m.statsFn(ctx, req)
}

func init() {
	gin.SetMode(gin.TestMode)
}
