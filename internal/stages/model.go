// Package stages derives the per-stage state of a crop report and mediates
// the mutations a farmer can make to it.
package stages

import (
	"fmt"
	"slices"

	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// Sorted returns a copy of stages ordered by StageOrder.
func Sorted(stages []domain.CropStage) []domain.CropStage {
	out := slices.Clone(stages)
	slices.SortStableFunc(out, func(a, b domain.CropStage) int { return a.StageOrder - b.StageOrder })
	return out
}

// ByOrder indexes stages by StageOrder.
func ByOrder(stages []domain.CropStage) map[int]domain.CropStage {
	m := make(map[int]domain.CropStage, len(stages))
	for _, s := range stages {
		m[s.StageOrder] = s
	}
	return m
}

// Find returns the stage with the given id.
func Find(stages []domain.CropStage, id domain.ID) (domain.CropStage, bool) {
	for _, s := range stages {
		if s.ID == id {
			return s, true
		}
	}
	return domain.CropStage{}, false
}

// Validate checks that stage orders are positive and unique.
func Validate(stages []domain.CropStage) error {
	seen := make(map[int]domain.ID, len(stages))
	for _, s := range stages {
		if s.StageOrder < 1 {
			return fmt.Errorf("stage %s has invalid order %d", s.ID, s.StageOrder)
		}
		if other, dup := seen[s.StageOrder]; dup {
			return fmt.Errorf("stages %s and %s share order %d", other, s.ID, s.StageOrder)
		}
		seen[s.StageOrder] = s.ID
	}
	return nil
}
