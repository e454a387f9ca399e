package transport

import (
	"errors"

	"github.com/UnendingLoop/ImageOps/internal/codec"
	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/registry"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrInvalidBody),
		errors.Is(err, model.ErrEmptyImage),
		errors.Is(err, model.ErrEmptyOperation),
		errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, codec.ErrDecode),
		errors.Is(err, registry.ErrUnknownOperation),
		errors.Is(err, registry.ErrInvalidParameter):
		return 400
	case errors.Is(err, model.ErrBodyTooLarge):
		return 413
	case errors.Is(err, model.ErrStatsDisabled):
		return 503
	default:
		// KernelError, EncodeError, AssetMissingError и всё прочее
		return 500
	}
}
