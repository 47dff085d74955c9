package service

import (
	"context"
	"sort"
	"strings"

	"github.com/indeavr/znainik/internal/model"
	"github.com/indeavr/znainik/internal/storage"
)

// DispatchLogService provides filtering and statistics over dispatch history.
type DispatchLogService struct {
	logs storage.DispatchLogStore
}

// NewDispatchLogService builds the history service. History is empty when
// the store does not keep dispatch logs.
func NewDispatchLogService(store storage.SubscriptionStore) *DispatchLogService {
	logs, _ := store.(storage.DispatchLogStore)
	return &DispatchLogService{logs: logs}
}

// Query returns paginated logs, newest first.
func (s *DispatchLogService) Query(ctx context.Context, filter model.DispatchLogFilter) (*model.DispatchLogPage, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	total := len(logs)
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return &model.DispatchLogPage{
		Data:     logs[start:end],
		Total:    total,
		Pages:    (total + filter.PageSize - 1) / filter.PageSize,
		PageNum:  filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Totals sums recipients across the matching dispatches.
func (s *DispatchLogService) Totals(ctx context.Context, filter model.DispatchLogFilter) (map[string]int, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	totals := map[string]int{"dispatches": len(logs)}
	for _, log := range logs {
		totals["attempted"] += log.Total
		totals["succeeded"] += log.Succeeded
		totals["failed"] += log.Failed
		totals["pruned"] += log.Pruned
	}
	return totals, nil
}

func (s *DispatchLogService) filteredLogs(ctx context.Context, filter model.DispatchLogFilter) ([]*model.DispatchLog, error) {
	if s.logs == nil {
		return []*model.DispatchLog{}, nil
	}
	all, err := s.logs.ListDispatchLogs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]*model.DispatchLog, 0, len(all))
	for _, log := range all {
		if filter.Kind != "" && !strings.EqualFold(log.Kind, filter.Kind) {
			continue
		}
		if filter.BeginTime != nil && log.CreatedAt.Before(filter.BeginTime.UTC()) {
			continue
		}
		if filter.EndTime != nil && log.CreatedAt.After(filter.EndTime.UTC()) {
			continue
		}
		matches = append(matches, log)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}
