package stages

import (
	"math"

	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// StageView is a stage with its derived state.
type StageView struct {
	Stage       domain.CropStage
	IsLocked    bool
	HasPhotos   bool
	LatestPhoto *domain.CropStagePhoto
}

// ReportView is the derived presentation state of a report. It is
// recomputed from the server record after every mutation and never edited
// in place.
type ReportView struct {
	Report      domain.CropReport
	Stages      []StageView
	ProgressPct int
	NextStage   *domain.CropStage
}

// DeriveView computes lock state, progress and the next stage for report.
func DeriveView(report domain.CropReport) ReportView {
	sorted := Sorted(report.Stages)
	byOrder := ByOrder(sorted)

	view := ReportView{
		Report:      report,
		Stages:      make([]StageView, 0, len(sorted)),
		ProgressPct: Progress(sorted),
		NextStage:   NextStage(sorted),
	}
	for _, s := range sorted {
		sv := StageView{
			Stage:     s,
			IsLocked:  IsLocked(s, byOrder),
			HasPhotos: s.HasPhotos(),
		}
		if photo, ok := s.LatestPhoto(); ok {
			sv.LatestPhoto = &photo
		}
		view.Stages = append(view.Stages, sv)
	}
	return view
}

// IsLocked reports whether stage cannot accept photos yet: a stage after
// the first is locked until its predecessor has at least one photo. A
// missing predecessor also locks it.
func IsLocked(stage domain.CropStage, byOrder map[int]domain.CropStage) bool {
	if stage.StageOrder <= 1 {
		return false
	}
	prev, ok := byOrder[stage.StageOrder-1]
	return !ok || !prev.HasPhotos()
}

// Progress is the rounded percentage of stages the server marked completed.
func Progress(stages []domain.CropStage) int {
	if len(stages) == 0 {
		return 0
	}
	completed := 0
	for _, s := range stages {
		if s.IsCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(stages))))
}

// NextStage returns the first incomplete stage in order, the last stage when
// every stage is complete, or nil when there are none.
func NextStage(stages []domain.CropStage) *domain.CropStage {
	sorted := Sorted(stages)
	if len(sorted) == 0 {
		return nil
	}
	for i := range sorted {
		if !sorted[i].IsCompleted {
			return &sorted[i]
		}
	}
	return &sorted[len(sorted)-1]
}

// Stage returns the view of the stage with the given id.
func (v ReportView) Stage(id domain.ID) (StageView, bool) {
	for _, s := range v.Stages {
		if s.Stage.ID == id {
			return s, true
		}
	}
	return StageView{}, false
}

// LatestPhotoFor returns the photo shown for the stage.
func (v ReportView) LatestPhotoFor(stageID domain.ID) (domain.CropStagePhoto, bool) {
	s, ok := v.Stage(stageID)
	if !ok || s.LatestPhoto == nil {
		return domain.CropStagePhoto{}, false
	}
	return *s.LatestPhoto, true
}

// CompletedCount returns how many stages are complete.
func (v ReportView) CompletedCount() int {
	n := 0
	for _, s := range v.Stages {
		if s.Stage.IsCompleted {
			n++
		}
	}
	return n
}
