// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/mwlogger"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/wb-go/wbf/ginext"
)

const healthMessage = "Image processing API is running"

type ProcessHandler struct {
	service ProcessService
}

type ProcessService interface {
	Process(ctx context.Context, req *model.ProcessRequest) (*model.ProcessResponse, error)
	Operations() []registry.Descriptor
	Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error)
}

func NewProcessHandler(svc ProcessService) *ProcessHandler {
	return &ProcessHandler{
		service: svc,
	}
}

func (h ProcessHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h ProcessHandler) Health(ctx *ginext.Context) {
	ctx.JSON(200, model.HealthResponse{Status: "running", Message: healthMessage})
}

func (h ProcessHandler) Operations(ctx *ginext.Context) {
	ctx.JSON(200, map[string]any{"operations": h.service.Operations()})
}

func (h ProcessHandler) Process(ctx *ginext.Context) {
	var req model.ProcessRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(413, map[string]string{"error": model.ErrBodyTooLarge.Error()})
			return
		}
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Warn().Err(err).Msg("Failed to parse process request")
		ctx.JSON(400, map[string]string{"error": model.ErrInvalidBody.Error()})
		return
	}

	res, err := h.service.Process(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h ProcessHandler) Stats(ctx *ginext.Context) {
	var req model.StatsRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.Stats(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}
