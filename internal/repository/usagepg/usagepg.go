// Package usagepg stores the operation usage ledger in Postgres
package usagepg

import (
	"context"
	"fmt"
	"log"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

// Save inserts the event; a redelivered event with the same uid is ignored.
func (p PostgresRepo) Save(ctx context.Context, ev *model.UsageEvent) error {
	query := `INSERT INTO operation_usage (event_uid, operation, params, status, error_kind, in_width, in_height, in_channels, out_width, out_height, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (event_uid) DO NOTHING`
	return p.DB.QueryRowContext(ctx, query,
		ev.UID,
		ev.Operation,
		ev.Params,
		ev.Status,
		ev.ErrorKind,
		ev.InWidth,
		ev.InHeight,
		ev.InChannels,
		ev.OutWidth,
		ev.OutHeight,
		ev.DurationMS,
		ev.CreatedAt).Err()
}

// Stats aggregates the ledger per operation. req.Sort and req.Order must be validated by the caller.
func (p PostgresRepo) Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error) {
	query := fmt.Sprintf(`SELECT operation,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = $1) AS failed,
		COALESCE(AVG(duration_ms), 0)::float8 AS avg_duration_ms,
		MAX(created_at) AS last_used_at
	FROM operation_usage
	WHERE $2::timestamptz IS NULL OR created_at >= $2
	GROUP BY operation
	ORDER BY %s %s, operation ASC`, req.Sort, req.Order)

	rows, err := p.DB.QueryContext(ctx, query, model.UsageFailed, req.SinceTime)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	stats := make([]model.OperationStats, 0, 32)
	for rows.Next() {
		var st model.OperationStats
		if err := rows.Scan(&st.Operation,
			&st.Total,
			&st.Failed,
			&st.AvgDurationMS,
			&st.LastUsedAt); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return stats, nil
}
