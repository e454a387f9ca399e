package usagepg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"
)

func newRepoWithMock(t *testing.T) (PostgresRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pg := &dbpg.DB{Master: db}

	repo := PostgresRepo{DB: pg}

	return repo, mock
}

func usageEvent() *model.UsageEvent {
	return &model.UsageEvent{
		UID:        uuid.New(),
		Operation:  "blur",
		Params:     model.ParamsJSON{"intensity": 5},
		Status:     model.UsageOK,
		InWidth:    64,
		InHeight:   32,
		InChannels: 3,
		OutWidth:   64,
		OutHeight:  32,
		DurationMS: 12,
		CreatedAt:  time.Now().UTC(),
	}
}

// SAVE - SUCCESS
func TestPostgresRepo_Save_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ev := usageEvent()

	mock.ExpectQuery(`INSERT INTO operation_usage`).
		WithArgs(
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
			ev.CreatedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{}))

	require.NoError(t, repo.Save(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

// SAVE - DB ERROR
func TestPostgresRepo_Save_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO operation_usage`).
		WillReturnError(errors.New("db down"))

	require.Error(t, repo.Save(context.Background(), usageEvent()))
}

// STATS - SUCCESS
func TestPostgresRepo_Stats_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	last := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"operation", "total", "failed", "avg_duration_ms", "last_used_at",
	}).
		AddRow("blur", int64(10), int64(1), 4.5, last).
		AddRow("rotate", int64(3), int64(0), 2.0, last)

	mock.ExpectQuery(`SELECT operation,(.|\n)*ORDER BY total DESC, operation ASC`).
		WithArgs(model.UsageFailed, nil).
		WillReturnRows(rows)

	res, err := repo.Stats(context.Background(), &model.StatsRequest{Sort: "total", Order: "DESC"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "blur", res[0].Operation)
	require.Equal(t, int64(10), res[0].Total)
	require.Equal(t, int64(1), res[0].Failed)
	require.InDelta(t, 4.5, res[0].AvgDurationMS, 1e-9)
	require.NotNil(t, res[0].LastUsedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

// STATS - SINCE FILTER
func TestPostgresRepo_Stats_Since(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT operation`).
		WithArgs(model.UsageFailed, since).
		WillReturnRows(sqlmock.NewRows([]string{"operation", "total", "failed", "avg_duration_ms", "last_used_at"}))

	res, err := repo.Stats(context.Background(), &model.StatsRequest{Sort: "operation", Order: "ASC", SinceTime: &since})
	require.NoError(t, err)
	require.Empty(t, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

// STATS - DB ERROR
func TestPostgresRepo_Stats_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT operation`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Stats(context.Background(), &model.StatsRequest{Sort: "total", Order: "DESC"})
	require.Error(t, err)
}

// STATS - SCAN ERROR
func TestPostgresRepo_Stats_ScanError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{"operation", "total", "failed", "avg_duration_ms", "last_used_at"}).
		AddRow("blur", "many", int64(0), 1.0, nil)

	mock.ExpectQuery(`SELECT operation`).
		WillReturnRows(rows)

	_, err := repo.Stats(context.Background(), &model.StatsRequest{Sort: "total", Order: "DESC"})
	require.Error(t, err)
}
