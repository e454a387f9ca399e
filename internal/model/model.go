// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessRequest - тело POST /api/process
type ProcessRequest struct {
	Image     string         `json:"image"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
}

type ProcessResponse struct {
	Success        bool   `json:"success"`
	ProcessedImage string `json:"processed_image"`
	Operation      string `json:"operation"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

//---------------------

type UsageStatus string

const (
	UsageOK     UsageStatus = "ok"
	UsageFailed UsageStatus = "failed"
)

// Error kinds stored with failed usage events
const (
	KindDecode           = "decode"
	KindUnknownOperation = "unknown_operation"
	KindInvalidParameter = "invalid_parameter"
	KindKernel           = "kernel"
	KindAssetMissing     = "asset_missing"
	KindEncode           = "encode"
	KindInternal         = "internal"
)

// UsageEvent describes one processed request. Image bytes are never part of it.
// Out dimensions stay zero for chart results.
type UsageEvent struct {
	UID        uuid.UUID   `json:"uid"`
	Operation  string      `json:"operation"`
	Params     ParamsJSON  `json:"params,omitempty"`
	Status     UsageStatus `json:"status"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	InWidth    int         `json:"in_width"`
	InHeight   int         `json:"in_height"`
	InChannels int         `json:"in_channels"`
	OutWidth   int         `json:"out_width"`
	OutHeight  int         `json:"out_height"`
	DurationMS int64       `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OperationStats - агрегаты по одной операции для GET /api/stats
type OperationStats struct {
	Operation     string     `json:"operation"`
	Total         int64      `json:"total"`
	Failed        int64      `json:"failed"`
	AvgDurationMS float64    `json:"avg_duration_ms"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

//-------------------

type StatsRequest struct {
	Sort  string `form:"sort"`
	Order string `form:"order"`
	Since string `form:"since"`

	SinceTime *time.Time `form:"-"`
}

const (
	ByOperation = "operation"
	ByTotal     = "total"
	ByLastUsed  = "last_used"
	OrderASC    = "ascend"
	OrderDESC   = "descend"
)

// ------------------

var (
	ErrCommon500      error = errors.New("something went wrong. Try again later") // 500
	ErrInvalidBody    error = errors.New("invalid request body")                  // 400
	ErrEmptyImage     error = errors.New("no image provided")                     // 400
	ErrEmptyOperation error = errors.New("no operation specified")                // 400
	ErrIncorrectQuery error = errors.New("incorrect query parameters")            // 400
	ErrBodyTooLarge   error = errors.New("request body too large")                // 413
	ErrStatsDisabled  error = errors.New("usage statistics are not configured")   // 503
	ErrInvalidUsage   error = errors.New("usage event is incomplete")             // worker: skip message
)

//--------------------

// ParamsJSON keeps normalized operation params in a JSONB column.
type ParamsJSON map[string]any

func (p *ParamsJSON) Scan(value any) error {
	if value == nil {
		*p = ParamsJSON{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("invalid type %T for ParamsJSON", value)
	}

	if err := json.Unmarshal(b, p); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to ParamsJSON: %w", err)
	}
	return nil
}

func (p ParamsJSON) Value() (driver.Value, error) {
	if len(p) == 0 {
		return []byte(`{}`), nil
	}
	res, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ParamsJSON to JSONB: %w", err)
	}

	return res, nil
}
