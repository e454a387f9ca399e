// Package registry holds the read-only table of image operations and dispatches requests to them.
//
// The table is built once at startup by New and never mutated afterwards, so a
// *Registry can be shared by all request goroutines without locking.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
)

// Operation is one named image transformation.
type Operation interface {
	Name() string
	Schema() ParamSchema
	Apply(ctx context.Context, buf *imgbuf.Buffer, params Params) (Result, error)
}

// Asset is a pre-encoded result that skips the codec re-encoding step.
type Asset struct {
	MimeType string
	DataURI  string
}

// Result holds exactly one of Buffer or Asset.
type Result struct {
	Buffer *imgbuf.Buffer
	Asset  *Asset
}

// Descriptor is the public description of an operation.
type Descriptor struct {
	Name   string      `json:"name"`
	Params ParamSchema `json:"params"`
}

type Registry struct {
	ops   map[string]Operation
	names []string
}

// New builds the operation table. Empty or duplicate names are configuration errors.
func New(ops ...Operation) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operation, len(ops)), names: make([]string, 0, len(ops))}
	for _, op := range ops {
		if op == nil {
			return nil, errors.New("nil operation provided to registry")
		}
		name := op.Name()
		if name == "" {
			return nil, errors.New("operation name cannot be empty")
		}
		if _, exists := r.ops[name]; exists {
			return nil, fmt.Errorf("operation %q is already registered", name)
		}
		r.ops[name] = op
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustNew is New for process bootstrap.
func MustNew(ops ...Operation) *Registry {
	r, err := New(ops...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		schema := r.ops[name].Schema()
		if schema == nil {
			schema = ParamSchema{}
		}
		out = append(out, Descriptor{Name: name, Params: schema})
	}
	return out
}

// Dispatch normalizes params and runs the named operation on buf.
// Panics inside an operation are converted into a *KernelError.
func (r *Registry) Dispatch(ctx context.Context, name string, buf *imgbuf.Buffer, params Params) (res Result, err error) {
	op, ok := r.ops[name]
	if !ok {
		return Result{}, &UnknownOperationError{Name: name}
	}

	clean, err := Normalize(name, op.Schema(), params)
	if err != nil {
		return Result{}, err
	}

	if vErr := buf.Validate(); vErr != nil {
		return Result{}, NewKernelError(name, vErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = Result{}
			err = NewKernelError(name, fmt.Errorf("panic: %v", rec))
		}
	}()

	res, err = op.Apply(ctx, buf, clean)
	if err != nil {
		return Result{}, err
	}

	switch {
	case res.Asset != nil:
		if res.Asset.DataURI == "" {
			return Result{}, NewKernelError(name, errors.New("operation returned an empty asset"))
		}
	case res.Buffer != nil:
		if vErr := res.Buffer.Validate(); vErr != nil {
			return Result{}, NewKernelError(name, vErr)
		}
	default:
		return Result{}, NewKernelError(name, errors.New("operation returned no result"))
	}
	return res, nil
}
