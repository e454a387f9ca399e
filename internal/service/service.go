// Package service provides business-logic for the app
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/codec"
	"github.com/UnendingLoop/ImageOps/internal/imgbuf"
	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/mwlogger"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/UnendingLoop/ImageOps/internal/repository"
	"github.com/UnendingLoop/ImageOps/internal/telemetry"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	usageQueueSize    = 256
	maxOperationLabel = 64
)

type ProcessService struct {
	registry  Dispatcher
	publisher UsagePublisher
	repo      repository.UsageRepo
	recorder  Recorder
	tracer    trace.Tracer
	usage     chan *model.UsageEvent
	now       func() time.Time
	maxPixels int64
}

// Dispatcher - контракт реестра операций
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, buf *imgbuf.Buffer, params registry.Params) (registry.Result, error)
	Lookup(name string) (registry.Operation, bool)
	Describe() []registry.Descriptor
}

// UsagePublisher - контракт для работы с очередью
type UsagePublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// Recorder - контракт для метрик
type Recorder interface {
	ObserveOperation(operation, outcome string, d time.Duration)
	UsagePublishFailed()
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}
func (noopRecorder) UsagePublishFailed()                            {}

// NewProcessService wires the service. Any of pub, repo and rec may be nil: usage
// publishing, statistics and metrics are then switched off.
func NewProcessService(reg Dispatcher, pub UsagePublisher, repo repository.UsageRepo, rec Recorder) *ProcessService {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &ProcessService{
		registry:  reg,
		publisher: pub,
		repo:      repo,
		recorder:  rec,
		tracer:    telemetry.Tracer(),
		usage:     make(chan *model.UsageEvent, usageQueueSize),
		now:       time.Now,
		maxPixels: codec.DefaultMaxPixels,
	}
}

// SetMaxInputPixels limits the canvas an incoming image may declare. Non-positive values are ignored.
func (s *ProcessService) SetMaxInputPixels(n int64) {
	if n > 0 {
		s.maxPixels = n
	}
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	Backoff:  2,
}

// Process decodes the payload, runs the operation and encodes the result.
// Errors keep their registry/codec types so the transport layer can map them.
func (s *ProcessService) Process(ctx context.Context, req *model.ProcessRequest) (*model.ProcessResponse, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Image) == "" {
		return nil, model.ErrEmptyImage
	}
	req.Operation = strings.TrimSpace(req.Operation)
	if req.Operation == "" {
		return nil, model.ErrEmptyOperation
	}

	start := s.now()
	ctx, span := s.tracer.Start(ctx, "process "+req.Operation)
	defer span.End()

	ev := &model.UsageEvent{
		UID:       uuid.New(),
		Operation: truncate(req.Operation, maxOperationLabel),
		Status:    model.UsageOK,
		CreatedAt: start.UTC(),
	}

	res, err := s.process(ctx, req, ev)

	elapsed := s.now().Sub(start)
	ev.DurationMS = elapsed.Milliseconds()
	outcome := string(model.UsageOK)
	if err != nil {
		ev.Status = model.UsageFailed
		ev.ErrorKind = errorKind(err)
		outcome = ev.ErrorKind
		span.RecordError(err)
		span.SetStatus(codes.Error, ev.ErrorKind)

		event := logger.Warn()
		if ev.ErrorKind == model.KindKernel || ev.ErrorKind == model.KindEncode ||
			ev.ErrorKind == model.KindAssetMissing || ev.ErrorKind == model.KindInternal {
			event = logger.Error()
		}
		event.Err(err).Str("operation", ev.Operation).Msg("Failed to process image")
	} else {
		logger.Info().
			Str("operation", ev.Operation).
			Int("width", ev.OutWidth).
			Int("height", ev.OutHeight).
			Dur("elapsed", elapsed).
			Msg("Image processed")
	}
	span.SetAttributes(attribute.String("imageops.outcome", outcome))

	s.recorder.ObserveOperation(metricLabel(ev), outcome, elapsed)
	s.enqueueUsage(ctx, ev)

	return res, err
}

func (s *ProcessService) process(ctx context.Context, req *model.ProcessRequest, ev *model.UsageEvent) (*model.ProcessResponse, error) {
	// декодируем входную картинку
	buf, err := codec.DecodeWithin(req.Image, s.maxPixels)
	if err != nil {
		return nil, err
	}
	ev.InWidth, ev.InHeight, ev.InChannels = buf.Width, buf.Height, int(buf.Channels)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("imageops.width", buf.Width),
		attribute.Int("imageops.height", buf.Height),
		attribute.Int("imageops.channels", int(buf.Channels)),
	)

	// сохраняем нормализованные параметры для статистики
	if op, ok := s.registry.Lookup(req.Operation); ok {
		if clean, nErr := registry.Normalize(req.Operation, op.Schema(), req.Params); nErr == nil {
			ev.Params = model.ParamsJSON(clean)
		}
	}

	res, err := s.registry.Dispatch(ctx, req.Operation, buf, req.Params)
	if err != nil {
		return nil, err
	}

	// кодируем результат
	var out string
	switch {
	case res.Asset != nil:
		out = res.Asset.DataURI
	default:
		ev.OutWidth, ev.OutHeight = res.Buffer.Width, res.Buffer.Height
		out, err = codec.Encode(res.Buffer)
		if err != nil {
			return nil, err
		}
	}

	return &model.ProcessResponse{
		Success:        true,
		ProcessedImage: out,
		Operation:      req.Operation,
	}, nil
}

// Operations lists every registered operation with its parameter schema.
func (s *ProcessService) Operations() []registry.Descriptor {
	return s.registry.Describe()
}

func (s *ProcessService) Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if s.repo == nil {
		return nil, model.ErrStatsDisabled
	}

	if err := validateQueryParams(req); err != nil {
		return nil, err
	}

	res, err := s.repo.Stats(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch usage stats from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

// SaveUsage stores one event consumed from the queue.
func (s *ProcessService) SaveUsage(ctx context.Context, ev *model.UsageEvent) error {
	logger := mwlogger.LoggerFromContext(ctx)
	if s.repo == nil {
		return model.ErrStatsDisabled
	}

	if err := validateUsage(ev); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, ev); err != nil {
		logger.Error().Err(err).Str("uid", ev.UID.String()).Msg("Failed to save usage event in DB")
		return model.ErrCommon500
	}
	return nil
}

// RunUsagePublisher sends queued usage events until ctx is canceled.
func (s *ProcessService) RunUsagePublisher(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.usage:
			s.publishUsage(ctx, ev)
		}
	}
}

func (s *ProcessService) enqueueUsage(ctx context.Context, ev *model.UsageEvent) {
	if s.publisher == nil {
		return
	}
	select {
	case s.usage <- ev:
	default:
		// очередь переполнена - событие теряем, запрос не блокируем
		s.recorder.UsagePublishFailed()
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Str("uid", ev.UID.String()).Msg("Usage queue is full, event dropped")
	}
}

func (s *ProcessService) publishUsage(ctx context.Context, ev *model.UsageEvent) {
	logger := mwlogger.LoggerFromContext(ctx)

	payload, err := json.Marshal(ev)
	if err != nil {
		s.recorder.UsagePublishFailed()
		logger.Error().Err(err).Msg("Failed to marshal usage event")
		return
	}

	if err := s.publisher.SendWithRetry(ctx, retryStrategy, []byte(ev.UID.String()), payload); err != nil {
		s.recorder.UsagePublishFailed()
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to publish usage event %q to queue", ev.UID))
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, codec.ErrDecode):
		return model.KindDecode
	case errors.Is(err, registry.ErrUnknownOperation):
		return model.KindUnknownOperation
	case errors.Is(err, registry.ErrInvalidParameter):
		return model.KindInvalidParameter
	case errors.Is(err, registry.ErrAssetMissing):
		return model.KindAssetMissing
	case errors.Is(err, registry.ErrKernel):
		return model.KindKernel
	case errors.Is(err, codec.ErrEncode):
		return model.KindEncode
	default:
		return model.KindInternal
	}
}

// metricLabel keeps label cardinality bounded: names that are not registered collapse into one value.
func metricLabel(ev *model.UsageEvent) string {
	if ev.ErrorKind == model.KindUnknownOperation {
		return "unknown"
	}
	return ev.Operation
}

// truncate cuts s to at most n bytes without leaving a broken rune or NUL bytes that Postgres rejects.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
