package service

import (
	"strings"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/google/uuid"
)

func validateQueryParams(req *model.StatsRequest) error {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Sort == "" {
		req.Sort = model.ByTotal
	}
	if req.Order == "" {
		req.Order = model.OrderDESC
	}

	// Валидируем непустое поле типа сортировки
	req.Sort = strings.ToLower(req.Sort)
	req.Sort = strings.TrimSpace(req.Sort)
	switch {
	case strings.Contains(req.Sort, model.ByOperation):
		req.Sort = "operation"
	case strings.Contains(req.Sort, model.ByLastUsed):
		req.Sort = "last_used_at"
	default:
		req.Sort = "total" // по дефолту сортируем по количеству вызовов
	}

	// Валадируем непустой порядок
	req.Order = strings.ToLower(req.Order)
	req.Order = strings.TrimSpace(req.Order)
	switch {
	case strings.Contains(req.Order, model.OrderASC):
		req.Order = "ASC"
	default:
		req.Order = "DESC"
	}

	// нижняя граница по времени - опциональна
	req.SinceTime = nil
	if since := strings.TrimSpace(req.Since); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return model.ErrIncorrectQuery
		}
		t = t.UTC()
		req.SinceTime = &t
	}
	return nil
}

func validateUsage(ev *model.UsageEvent) error {
	if ev == nil || ev.UID == uuid.Nil || strings.TrimSpace(ev.Operation) == "" {
		return model.ErrInvalidUsage
	}
	switch ev.Status {
	case model.UsageOK, model.UsageFailed:
	default:
		return model.ErrInvalidUsage
	}
	if ev.DurationMS < 0 {
		ev.DurationMS = 0
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return nil
}
