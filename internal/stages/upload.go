package stages

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// UploadState is the phase of a two-phase photo upload.
type UploadState int

const (
	UploadIdle UploadState = iota
	UploadPreviewing
	UploadUploading
	UploadSucceeded
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadPreviewing:
		return "previewing"
	case UploadUploading:
		return "uploading"
	case UploadSucceeded:
		return "succeeded"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrUploadInFlight  = errors.New("an upload is already in progress")
	ErrNoPendingUpload = errors.New("no photo is pending confirmation")
)

// PendingPreview is a photo chosen for a stage, awaiting confirmation.
type PendingPreview struct {
	StageID   domain.ID
	StageName string
	Path      string
	Size      int64
	File      api.FormFile
}

// UploadFunc sends a confirmed photo.
type UploadFunc func(ctx context.Context, stageID domain.ID, file api.FormFile) error

// UploadFlow is the upload state machine:
//
//	Idle -> Previewing -> Uploading -> Succeeded -> Idle
//	                                -> Failed -> Previewing
//	Previewing -> Idle (cancel)
//
// Only Confirm performs I/O.
type UploadFlow struct {
	upload UploadFunc
	log    zerolog.Logger

	mu         sync.Mutex
	state      UploadState
	pending    *PendingPreview
	lastErr    error
	transition func(from, to UploadState)
}

// NewUploadFlow creates an idle flow that sends photos with upload.
func NewUploadFlow(upload UploadFunc, logger zerolog.Logger) *UploadFlow {
	return &UploadFlow{upload: upload, log: logger}
}

// OnTransition registers fn to observe every state change. fn runs with
// the flow locked and must not call back into it.
func (f *UploadFlow) OnTransition(fn func(from, to UploadState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transition = fn
}

// State returns the current state.
func (f *UploadFlow) State() UploadState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the preview awaiting confirmation.
func (f *UploadFlow) Pending() (PendingPreview, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return PendingPreview{}, false
	}
	return *f.pending, true
}

// LastError returns the error of the most recent failed upload.
func (f *UploadFlow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Begin holds preview for confirmation, replacing any earlier preview.
func (f *UploadFlow) Begin(preview PendingPreview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == UploadUploading {
		return ErrUploadInFlight
	}
	f.pending = &preview
	f.lastErr = nil
	f.setLocked(UploadPreviewing)
	return nil
}

// Cancel discards the pending preview. Cancelling an idle flow is a no-op.
func (f *UploadFlow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case UploadUploading:
		return ErrUploadInFlight
	case UploadIdle:
		return nil
	}
	f.pending = nil
	f.setLocked(UploadIdle)
	return nil
}

// Confirm uploads the pending preview. On failure the preview is kept so
// the caller can confirm again or cancel.
func (f *UploadFlow) Confirm(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.state == UploadUploading:
		f.mu.Unlock()
		return ErrUploadInFlight
	case f.pending == nil:
		f.mu.Unlock()
		return ErrNoPendingUpload
	}
	preview := *f.pending
	f.setLocked(UploadUploading)
	f.mu.Unlock()

	err := f.upload(ctx, preview.StageID, preview.File)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.lastErr = err
		f.setLocked(UploadFailed)
		f.setLocked(UploadPreviewing)
		return err
	}
	f.pending = nil
	f.setLocked(UploadSucceeded)
	f.setLocked(UploadIdle)
	return nil
}

func (f *UploadFlow) setLocked(to UploadState) {
	from := f.state
	f.state = to
	f.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("upload state")
	if f.transition != nil {
		f.transition(from, to)
	}
}
