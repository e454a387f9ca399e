package registry

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrKernel           = errors.New("operation failed")
	ErrAssetMissing     = errors.New("required asset is unavailable")
)

type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Name)
}

func (e *UnknownOperationError) Unwrap() error { return ErrUnknownOperation }

type InvalidParameterError struct {
	Op     string
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("operation %q: invalid parameter %q (%v): %s", e.Op, e.Param, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// KernelError is returned by any operation that fails while transforming a buffer.
type KernelError struct {
	Op  string
	Err error
}

func NewKernelError(op string, err error) *KernelError {
	return &KernelError{Op: op, Err: err}
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Op, e.Err)
}

// Is lets errors.Is match both ErrKernel and the wrapped cause.
func (e *KernelError) Is(target error) bool { return target == ErrKernel }

func (e *KernelError) Unwrap() error { return e.Err }

// AssetMissingError reports an external asset (e.g. a detector cascade) that could not be loaded.
type AssetMissingError struct {
	Asset string
	Err   error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("asset %q is unavailable: %v", e.Asset, e.Err)
}

func (e *AssetMissingError) Is(target error) bool { return target == ErrAssetMissing }

func (e *AssetMissingError) Unwrap() error { return e.Err }
