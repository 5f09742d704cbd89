package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

var (
	ErrStageLocked   = errors.New("complete the previous stage first")
	ErrStageNotFound = errors.New("stage not found in report")
	ErrNotLoaded     = errors.New("report has not been loaded")
	ErrNotConfirmed  = errors.New("deletion was not confirmed")
	ErrReportDeleted = errors.New("report has been deleted")

	// ErrRefreshFailed means a mutation was applied but the report could
	// not be reloaded afterwards. Repeating the mutation would duplicate it.
	ErrRefreshFailed = errors.New("the report could not be reloaded")
)

// ReportService is the subset of the API the tracker mutates reports with.
type ReportService interface {
	FetchReport(ctx context.Context, id domain.ID) (domain.CropReport, error)
	UpdateReport(ctx context.Context, id domain.ID, patch domain.ReportPatch) error
	DeleteReport(ctx context.Context, id domain.ID) error
	UploadStagePhoto(ctx context.Context, stageID domain.ID, photo api.FormFile) error
	DeleteStagePhoto(ctx context.Context, stageID, photoID domain.ID) error
}

// Tracker holds the derived view of one report and routes every mutation
// through the service, refetching the report afterwards. The view is only
// ever replaced with one derived from a server record.
type Tracker struct {
	svc      ReportService
	reportID domain.ID
	clock    core.Clock
	log      zerolog.Logger
	flow     *UploadFlow

	mu      sync.RWMutex
	view    *ReportView
	deleted bool
}

// NewTracker creates a tracker for reportID. Call Refresh to load it.
func NewTracker(svc ReportService, reportID domain.ID, clock core.Clock, logger zerolog.Logger) *Tracker {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	log := core.ComponentLogger(logger, "stages").With().Str("report", reportID.String()).Logger()
	return &Tracker{
		svc:      svc,
		reportID: reportID,
		clock:    clock,
		log:      log,
		flow:     NewUploadFlow(svc.UploadStagePhoto, log),
	}
}

// Refresh refetches the report and rederives the view. On failure the
// previous view is kept.
func (t *Tracker) Refresh(ctx context.Context) (ReportView, error) {
	if t.isDeleted() {
		return ReportView{}, ErrReportDeleted
	}
	report, err := t.svc.FetchReport(ctx, t.reportID)
	if err != nil {
		return ReportView{}, err
	}
	if err := Validate(report.Stages); err != nil {
		t.log.Warn().Err(err).Msg("report has inconsistent stages")
	}

	view := DeriveView(report)
	t.mu.Lock()
	t.view = &view
	t.mu.Unlock()
	return view, nil
}

// View returns the current view. It is false before the first successful
// Refresh and after the report was deleted.
func (t *Tracker) View() (ReportView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.view == nil || t.deleted {
		return ReportView{}, false
	}
	return *t.view, true
}

func (t *Tracker) isDeleted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deleted
}

func (t *Tracker) currentView() (ReportView, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.deleted {
		return ReportView{}, ErrReportDeleted
	}
	if t.view == nil {
		return ReportView{}, ErrNotLoaded
	}
	return *t.view, nil
}

// UploadFlow exposes the upload state machine for observation.
func (t *Tracker) UploadFlow() *UploadFlow {
	return t.flow
}

// BeginUpload previews path as the next photo of stageID. Locked stages are
// rejected. No request is made.
func (t *Tracker) BeginUpload(stageID domain.ID, path string) (PendingPreview, error) {
	view, err := t.currentView()
	if err != nil {
		return PendingPreview{}, err
	}
	stage, ok := view.Stage(stageID)
	if !ok {
		return PendingPreview{}, fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}
	if stage.IsLocked {
		return PendingPreview{}, fmt.Errorf("%w: %s", ErrStageLocked, stage.Stage.StageName)
	}

	file, err := api.FileFromPath("photo", path, "stage", "jpg", t.clock.Now())
	if err != nil {
		return PendingPreview{}, err
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	preview := PendingPreview{
		StageID:   stageID,
		StageName: stage.Stage.StageName,
		Path:      path,
		Size:      size,
		File:      file,
	}
	if err := t.flow.Begin(preview); err != nil {
		return PendingPreview{}, err
	}
	return preview, nil
}

// ConfirmUpload sends the pending photo and refreshes the view. A failed
// upload leaves the preview pending for a retry. If the photo was stored
// but the reload failed, the previous view is returned with an error
// wrapping ErrRefreshFailed.
func (t *Tracker) ConfirmUpload(ctx context.Context) (ReportView, error) {
	if t.isDeleted() {
		return ReportView{}, ErrReportDeleted
	}
	if err := t.flow.Confirm(ctx); err != nil {
		return ReportView{}, err
	}
	t.log.Info().Msg("stage photo uploaded")

	view, err := t.Refresh(ctx)
	if errors.Is(err, ErrReportDeleted) {
		return ReportView{}, err
	}
	if err != nil {
		t.log.Warn().Err(err).Msg("photo uploaded but reload failed")
		current, _ := t.View()
		return current, fmt.Errorf("photo uploaded, but %w: %w", ErrRefreshFailed, err)
	}
	return view, nil
}

// CancelUpload discards the pending photo without any request.
func (t *Tracker) CancelUpload() error {
	return t.flow.Cancel()
}

// DeletePhoto deletes a stage photo and always refetches the report, so a
// failed delete leaves the photo visible. The delete error takes priority.
func (t *Tracker) DeletePhoto(ctx context.Context, stageID, photoID domain.ID) (ReportView, error) {
	if _, err := t.currentView(); err != nil && !errors.Is(err, ErrNotLoaded) {
		return ReportView{}, err
	}

	delErr := t.svc.DeleteStagePhoto(ctx, stageID, photoID)
	if delErr != nil {
		t.log.Warn().Err(delErr).Str("photo", photoID.String()).Msg("failed to delete photo")
	}

	view, err := t.Refresh(ctx)
	if delErr != nil {
		if current, ok := t.View(); ok {
			view = current
		}
		return view, delErr
	}
	return view, err
}

// EditInput is raw user input for a report edit. Blank fields are left
// unchanged.
type EditInput struct {
	CropName    string
	Area        string
	Description string
}

// Patch converts the input into a partial update.
func (in EditInput) Patch() (domain.ReportPatch, error) {
	var patch domain.ReportPatch
	if name := strings.TrimSpace(in.CropName); name != "" {
		patch.CropName = &name
	}
	if area := strings.TrimSpace(in.Area); area != "" {
		v, err := core.ParseArea(area)
		if err != nil {
			return domain.ReportPatch{}, &api.ValidationError{Field: "areaHectares", Message: err.Error()}
		}
		patch.AreaHectares = &v
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		patch.Description = &desc
	}
	if patch.IsEmpty() {
		return domain.ReportPatch{}, &api.ValidationError{Message: "nothing to update"}
	}
	return patch, nil
}

// Edit applies a partial update and refreshes the view.
func (t *Tracker) Edit(ctx context.Context, in EditInput) (ReportView, error) {
	if t.isDeleted() {
		return ReportView{}, ErrReportDeleted
	}
	patch, err := in.Patch()
	if err != nil {
		return ReportView{}, err
	}
	if err := t.svc.UpdateReport(ctx, t.reportID, patch); err != nil {
		return ReportView{}, fmt.Errorf("failed to update crop report: %w", err)
	}
	return t.Refresh(ctx)
}

// Delete removes the report once confirm returns true. Afterwards the
// tracker has no view and every operation returns ErrReportDeleted.
func (t *Tracker) Delete(ctx context.Context, confirm func() bool) error {
	if t.isDeleted() {
		return ErrReportDeleted
	}
	if confirm == nil || !confirm() {
		return ErrNotConfirmed
	}
	if err := t.svc.DeleteReport(ctx, t.reportID); err != nil {
		return fmt.Errorf("failed to delete crop report: %w", err)
	}

	t.mu.Lock()
	t.deleted = true
	t.view = nil
	t.mu.Unlock()
	if err := t.flow.Cancel(); err != nil {
		t.log.Debug().Err(err).Msg("pending upload left in flight after delete")
	}
	t.log.Info().Msg("crop report deleted")
	return nil
}
