package gallery

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// TopFeed returns up to limit archived items ranked by votes. A candidate
// pool bounded by FetchPoolSize is fetched votes-descending, filtered to
// archived URLs, then re-sorted with updated_at as the tie-break so equal
// vote counts prefer the fresher item.
func (s *Service) TopFeed(ctx context.Context, limit int) ([]Item, error) {
	limit = s.clampLimit(limit)

	var pool []Item
	if err := s.db.WithContext(ctx).
		Order("votes DESC").
		Limit(s.fetchPoolSize).
		Find(&pool).Error; err != nil {
		s.logError(opTopFeed, "pool_query_failed", err)
		return nil, newServiceError(opTopFeed, "pool_query_failed", err)
	}

	items := s.filterArchived(pool)
	sortTopItems(items)

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// RandomFeed returns up to limit archived items drawn approximately
// uniformly via the per-item sampling key: one fresh threshold per call,
// a range scan at and above it, and a wrap-around scan below it when the
// first range comes up short.
func (s *Service) RandomFeed(ctx context.Context, limit int) ([]Item, error) {
	limit = s.clampLimit(limit)
	threshold := s.rand()

	var upper []Item
	if err := s.db.WithContext(ctx).
		Where("rand >= ?", threshold).
		Order("rand ASC").
		Limit(limit).
		Find(&upper).Error; err != nil {
		s.logError(opRandomFeed, "upper_range_failed", err, zap.Float64("threshold", threshold))
		return nil, newServiceError(opRandomFeed, "upper_range_failed", err)
	}

	items := s.filterArchived(upper)
	if remaining := limit - len(items); remaining > 0 {
		var lower []Item
		if err := s.db.WithContext(ctx).
			Where("rand < ?", threshold).
			Order("rand ASC").
			Limit(remaining).
			Find(&lower).Error; err != nil {
			s.logError(opRandomFeed, "lower_range_failed", err, zap.Float64("threshold", threshold))
			return nil, newServiceError(opRandomFeed, "lower_range_failed", err)
		}
		items = append(items, s.filterArchived(lower)...)
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Service) filterArchived(candidates []Item) []Item {
	filtered := make([]Item, 0, len(candidates))
	for _, candidate := range candidates {
		if s.archive.Matches(candidate.ImageURL) {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

// sortTopItems orders by votes descending, breaking ties by updated_at
// descending. Timestamps are ISO-8601 strings so lexicographic comparison
// preserves chronology.
func sortTopItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Votes != items[j].Votes {
			return items[i].Votes > items[j].Votes
		}
		return items[i].UpdatedAt > items[j].UpdatedAt
	})
}
