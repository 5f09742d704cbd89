package stages

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/cache"
	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// stubService is an in-memory ReportService that counts calls.
type stubService struct {
	mu        sync.Mutex
	report    domain.CropReport
	calls     map[string]int
	failNext  map[string]error
	lastPatch domain.ReportPatch
}

func newStubService(report domain.CropReport) *stubService {
	return &stubService{report: report, calls: map[string]int{}, failNext: map[string]error{}}
}

func (s *stubService) hit(op string) error {
	s.calls[op]++
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return err
	}
	return nil
}

func (s *stubService) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubService) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *stubService) FetchReport(ctx context.Context, id domain.ID) (domain.CropReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("fetch"); err != nil {
		return domain.CropReport{}, err
	}
	return s.report, nil
}

func (s *stubService) UpdateReport(ctx context.Context, id domain.ID, patch domain.ReportPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPatch = patch
	if err := s.hit("update"); err != nil {
		return err
	}
	if patch.CropName != nil {
		s.report.CropName = *patch.CropName
	}
	return nil
}

func (s *stubService) DeleteReport(ctx context.Context, id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hit("delete")
}

func (s *stubService) UploadStagePhoto(ctx context.Context, stageID domain.ID, photo api.FormFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("upload"); err != nil {
		return err
	}
	for i := range s.report.Stages {
		if s.report.Stages[i].ID == stageID {
			s.report.Stages[i].Photos = append(s.report.Stages[i].Photos, domain.CropStagePhoto{ID: "new"})
			s.report.Stages[i].IsCompleted = true
		}
	}
	return nil
}

func (s *stubService) DeleteStagePhoto(ctx context.Context, stageID, photoID domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hit("delete-photo")
}

func photoFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(path, []byte("\xff\xd8\xff\xe0"), 0o644))
	return path
}

func loadedTracker(t *testing.T, svc *stubService) *Tracker {
	t.Helper()
	tracker := NewTracker(svc, svc.report.ID, core.NewFakeClock(epoch), zerolog.Nop())
	_, err := tracker.Refresh(context.Background())
	require.NoError(t, err)
	return tracker
}

func TestTrackerViewBeforeLoad(t *testing.T) {
	tracker := NewTracker(newStubService(domain.CropReport{ID: "r1"}), "r1", nil, zerolog.Nop())
	_, ok := tracker.View()
	assert.False(t, ok)

	_, err := tracker.BeginUpload("a", "x.jpg")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestTrackerRejectsLockedStage(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1, 2)})
	tracker := loadedTracker(t, svc)

	_, err := tracker.BeginUpload("d", photoFile(t))
	assert.ErrorIs(t, err, ErrStageLocked)
	assert.Equal(t, UploadIdle, tracker.UploadFlow().State())

	_, err = tracker.BeginUpload("zz", photoFile(t))
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestTrackerCancelMakesNoRequests(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1, 2)})
	tracker := loadedTracker(t, svc)
	before := svc.Total()

	preview, err := tracker.BeginUpload("c", photoFile(t))
	require.NoError(t, err)
	assert.Equal(t, int64(4), preview.Size)
	assert.Equal(t, "image/jpeg", preview.File.ContentType)
	assert.Equal(t, "stage_"+itoa(epoch.UnixMilli())+".jpg", preview.File.Filename)

	require.NoError(t, tracker.CancelUpload())
	require.NoError(t, tracker.CancelUpload())

	assert.Equal(t, before, svc.Total())
	assert.Equal(t, UploadIdle, tracker.UploadFlow().State())
}

func TestTrackerUploadRefreshes(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1, 2)})
	tracker := loadedTracker(t, svc)

	_, err := tracker.BeginUpload("c", photoFile(t))
	require.NoError(t, err)
	view, err := tracker.ConfirmUpload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, view.ProgressPct)
	assert.Equal(t, []int{5}, lockedOrders(view))
	assert.Equal(t, 2, svc.Calls("fetch"))
}

func TestTrackerUploadFailureKeepsPreview(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1)})
	tracker := loadedTracker(t, svc)
	svc.failNext["upload"] = &api.HTTPError{Status: http.StatusBadGateway}

	_, err := tracker.BeginUpload("b", photoFile(t))
	require.NoError(t, err)

	_, err = tracker.ConfirmUpload(context.Background())
	assert.True(t, api.IsRetryable(err))
	assert.Equal(t, UploadPreviewing, tracker.UploadFlow().State())
	assert.Equal(t, 1, svc.Calls("fetch"), "no refetch after a failed upload")

	view, err := tracker.ConfirmUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, view.ProgressPct)
}

func TestTrackerUploadStoredButReloadFailed(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1)})
	tracker := loadedTracker(t, svc)

	_, err := tracker.BeginUpload("b", photoFile(t))
	require.NoError(t, err)
	svc.failNext["fetch"] = &api.TimeoutError{Method: http.MethodGet, Endpoint: "/crop-reports/r1", After: core.DefaultTimeout}

	view, err := tracker.ConfirmUpload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Contains(t, err.Error(), "photo uploaded")
	assert.Equal(t, 1, svc.Calls("upload"))
	assert.Equal(t, UploadIdle, tracker.UploadFlow().State())

	// The previous view is returned, not an empty one.
	assert.Equal(t, 20, view.ProgressPct)
	assert.Len(t, view.Stages, 5)

	_, err = tracker.ConfirmUpload(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingUpload)
	assert.Equal(t, 1, svc.Calls("upload"))
}

func TestTrackerDeletePhotoFailureKeepsPhoto(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages(1, 2)})
	tracker := loadedTracker(t, svc)
	svc.failNext["delete-photo"] = &api.HTTPError{Status: http.StatusInternalServerError, Message: "storage error"}

	view, err := tracker.DeletePhoto(context.Background(), "b", "b1")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, api.StatusOf(err))

	stage, ok := view.Stage("b")
	require.True(t, ok)
	assert.True(t, stage.HasPhotos)
	assert.Equal(t, 2, svc.Calls("fetch"), "report is refetched even when the delete fails")
}

func TestTrackerEdit(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", CropName: "Wheat", Stages: fiveStages()})
	tracker := loadedTracker(t, svc)
	ctx := context.Background()

	_, err := tracker.Edit(ctx, EditInput{CropName: "  "})
	var vErr *api.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = tracker.Edit(ctx, EditInput{Area: "lots"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "areaHectares", vErr.Field)
	assert.Equal(t, 0, svc.Calls("update"))

	view, err := tracker.Edit(ctx, EditInput{CropName: "Durum", Area: "2.5"})
	require.NoError(t, err)
	assert.Equal(t, "Durum", view.Report.CropName)
	require.NotNil(t, svc.lastPatch.AreaHectares)
	assert.Equal(t, 2.5, *svc.lastPatch.AreaHectares)
	assert.Nil(t, svc.lastPatch.Description)
}

func TestTrackerDelete(t *testing.T) {
	svc := newStubService(domain.CropReport{ID: "r1", Stages: fiveStages()})
	tracker := loadedTracker(t, svc)
	ctx := context.Background()

	assert.ErrorIs(t, tracker.Delete(ctx, func() bool { return false }), ErrNotConfirmed)
	assert.ErrorIs(t, tracker.Delete(ctx, nil), ErrNotConfirmed)
	assert.Equal(t, 0, svc.Calls("delete"))

	require.NoError(t, tracker.Delete(ctx, func() bool { return true }))
	_, ok := tracker.View()
	assert.False(t, ok)

	_, err := tracker.Refresh(ctx)
	assert.ErrorIs(t, err, ErrReportDeleted)
	_, err = tracker.BeginUpload("a", photoFile(t))
	assert.ErrorIs(t, err, ErrReportDeleted)
}

// blockingUploads holds every upload until release is closed.
type blockingUploads struct {
	*stubService
	entered chan struct{}
	release chan struct{}
}

func (b *blockingUploads) UploadStagePhoto(ctx context.Context, stageID domain.ID, photo api.FormFile) error {
	close(b.entered)
	<-b.release
	return b.stubService.UploadStagePhoto(ctx, stageID, photo)
}

func TestTrackerDeleteDuringUpload(t *testing.T) {
	svc := &blockingUploads{
		stubService: newStubService(domain.CropReport{ID: "r1", Stages: fiveStages()}),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	var logs bytes.Buffer
	logger := zerolog.New(zerolog.SyncWriter(&logs)).Level(zerolog.DebugLevel)
	tracker := NewTracker(svc, "r1", core.NewFakeClock(epoch), logger)
	ctx := context.Background()
	_, err := tracker.Refresh(ctx)
	require.NoError(t, err)

	_, err = tracker.BeginUpload("a", photoFile(t))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := tracker.ConfirmUpload(ctx)
		done <- err
	}()
	<-svc.entered

	require.NoError(t, tracker.Delete(ctx, func() bool { return true }))
	assert.Equal(t, UploadUploading, tracker.UploadFlow().State())

	close(svc.release)
	assert.ErrorIs(t, <-done, ErrReportDeleted)
	assert.Contains(t, logs.String(), "pending upload left in flight after delete")
}

// End to end against the fake service through the caching client.
func TestTrackerAgainstFakeServer(t *testing.T) {
	clock := core.NewFakeClock(epoch)
	server := api.NewFakeServer(clock)
	defer server.Close()

	store := cache.NewStore(cache.NewMemoryBackend(), core.CacheTTL, clock, zerolog.Nop())
	client := api.NewCachingClient(api.NewClient(server.URL(), "", 2*time.Second, zerolog.Nop()), store, zerolog.Nop())
	krushi := api.NewKrushiAPI(client, clock, zerolog.Nop())

	report := server.NewReport("42", "Wheat")
	tracker := NewTracker(krushi, report.ID, clock, zerolog.Nop())
	ctx := context.Background()

	view, err := tracker.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, lockedOrders(view))
	assert.Equal(t, 0, view.ProgressPct)

	for i := range 2 {
		_, err := tracker.BeginUpload(view.Stages[i].Stage.ID, photoFile(t))
		require.NoError(t, err)
		view, err = tracker.ConfirmUpload(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{4, 5}, lockedOrders(view))
	assert.Equal(t, 40, view.ProgressPct)
	require.NotNil(t, view.NextStage)
	assert.Equal(t, 3, view.NextStage.StageOrder)

	second := view.Stages[1]
	view, err = tracker.DeletePhoto(ctx, second.Stage.ID, second.LatestPhoto.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, lockedOrders(view))
	assert.Equal(t, 20, view.ProgressPct)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
