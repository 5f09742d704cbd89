package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// KrushiAPI provides a typed convenience layer over the advisory REST API.
type KrushiAPI struct {
	client *CachingClient
	clock  core.Clock
	log    zerolog.Logger

	// background tracks best-effort side calls such as admin notification.
	background sync.WaitGroup
}

// NewKrushiAPI creates a new high-level API client.
func NewKrushiAPI(client *CachingClient, clock core.Clock, logger zerolog.Logger) *KrushiAPI {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	return &KrushiAPI{
		client: client,
		clock:  clock,
		log:    core.ComponentLogger(logger, "api"),
	}
}

func reportPath(id domain.ID) string {
	return "/crop-reports/" + url.PathEscape(id.String())
}

func stagePhotosPath(stageID domain.ID) string {
	return "/crop-reports/stages/" + url.PathEscape(stageID.String()) + "/photos"
}

// FetchReport fetches a single crop report with its stages and photos.
func (a *KrushiAPI) FetchReport(ctx context.Context, id domain.ID) (domain.CropReport, error) {
	if id == "" {
		return domain.CropReport{}, &ValidationError{Field: "id", Message: "report id is required"}
	}
	return Get[domain.CropReport](ctx, a.client, reportPath(id))
}

// ListReports fetches every report owned by the farmer with database id farmerID.
func (a *KrushiAPI) ListReports(ctx context.Context, farmerID domain.ID) ([]domain.CropReport, error) {
	if farmerID == "" {
		return nil, &ValidationError{Field: "farmerId", Message: "farmer id is required"}
	}
	return Get[[]domain.CropReport](ctx, a.client, "/crop-reports/farmer/"+url.PathEscape(farmerID.String()))
}

// ReportDetails fetches several reports concurrently, preserving order.
func (a *KrushiAPI) ReportDetails(ctx context.Context, ids []domain.ID) ([]domain.CropReport, error) {
	reports := make([]domain.CropReport, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(core.DetailFetchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			report, err := a.FetchReport(gCtx, id)
			if err != nil {
				return fmt.Errorf("report %s: %w", id, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// CreateReport validates the input locally and creates the report. The service
// creates the report's stages.
func (a *KrushiAPI) CreateReport(ctx context.Context, in domain.NewCropReport) (domain.CropReport, error) {
	in.CropName = strings.TrimSpace(in.CropName)
	if in.FarmerID == "" {
		return domain.CropReport{}, &ValidationError{Field: "farmerId", Message: "farmer id is required"}
	}
	if in.CropName == "" {
		return domain.CropReport{}, &ValidationError{Field: "cropName", Message: "please enter crop name"}
	}
	if in.AreaHectares != nil && *in.AreaHectares <= 0 {
		return domain.CropReport{}, &ValidationError{Field: "areaHectares", Message: "please enter valid area in hectares"}
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		in.Description = nil
	}

	report, err := Post[domain.CropReport](ctx, a.client, "/crop-reports", in)
	if err != nil {
		return domain.CropReport{}, fmt.Errorf("failed to create crop report: %w", err)
	}
	return report, nil
}

// UpdateReport sends a partial update.
func (a *KrushiAPI) UpdateReport(ctx context.Context, id domain.ID, patch domain.ReportPatch) error {
	if patch.IsEmpty() {
		return &ValidationError{Message: "nothing to update"}
	}
	_, err := Put[json.RawMessage](ctx, a.client, reportPath(id), patch)
	return err
}

// DeleteReport deletes the report.
func (a *KrushiAPI) DeleteReport(ctx context.Context, id domain.ID) error {
	_, err := Delete[json.RawMessage](ctx, a.client, reportPath(id))
	return err
}

// UploadStagePhoto posts photo as the multipart field "photo".
func (a *KrushiAPI) UploadStagePhoto(ctx context.Context, stageID domain.ID, photo FormFile) error {
	photo.Field = "photo"
	_, err := PostMultipart[json.RawMessage](ctx, a.client, stagePhotosPath(stageID), nil, []FormFile{photo})
	return err
}

// DeleteStagePhoto deletes one photo of a stage.
func (a *KrushiAPI) DeleteStagePhoto(ctx context.Context, stageID, photoID domain.ID) error {
	endpoint := stagePhotosPath(stageID) + "/" + url.PathEscape(photoID.String())
	_, err := Delete[json.RawMessage](ctx, a.client, endpoint)
	return err
}

// FarmerByCode resolves a farmer's login code to the account record.
func (a *KrushiAPI) FarmerByCode(ctx context.Context, code string) (domain.Farmer, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Farmer{}, &ValidationError{Field: "farmerId", Message: "please login again"}
	}
	farmer, err := Get[domain.Farmer](ctx, a.client, "/farmers/farmer-id/"+url.PathEscape(code), WithTimeout(core.FarmerTimeout))
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("failed to fetch farmer details: %w", err)
	}
	if farmer.ID == "" {
		return domain.Farmer{}, &HTTPError{Status: http.StatusOK, Message: "invalid farmer data received"}
	}
	return farmer, nil
}

// ListQueries fetches the farmer's queries by login code.
func (a *KrushiAPI) ListQueries(ctx context.Context, farmerCode string) ([]domain.Query, error) {
	if farmerCode == "" {
		return nil, &ValidationError{Field: "farmerId", Message: "please login again"}
	}
	return Get[[]domain.Query](ctx, a.client, "/queries/mine?farmerId="+url.QueryEscape(farmerCode), WithTimeout(core.SummaryTimeout))
}

// QuerySummary tallies the farmer's queries for the dashboard.
func (a *KrushiAPI) QuerySummary(ctx context.Context, farmerCode string) (domain.QuerySummary, error) {
	queries, err := a.ListQueries(ctx, farmerCode)
	if err != nil {
		return domain.QuerySummary{}, err
	}
	return domain.Summarize(queries), nil
}

// NewQuery is a query submission. Attachment paths are optional.
type NewQuery struct {
	FarmerCode  string
	Description string
	ImagePath   string
	AudioPath   string
	VideoPath   string
}

// SubmitQuery posts a query with its media, then notifies the admins in
// the background. The notification never affects the result.
func (a *KrushiAPI) SubmitQuery(ctx context.Context, q NewQuery) error {
	if q.FarmerCode == "" {
		return &ValidationError{Field: "farmerId", Message: "please login again to submit a query"}
	}
	q.Description = strings.TrimSpace(q.Description)
	if q.Description == "" && q.ImagePath == "" && q.AudioPath == "" && q.VideoPath == "" {
		return &ValidationError{Message: "add a description or at least one attachment"}
	}

	fields := map[string]string{"farmerId": q.FarmerCode}
	if q.Description != "" {
		fields["description"] = q.Description
	}

	now := a.clock.Now()
	var files []FormFile
	for _, att := range []struct{ field, path, ext string }{
		{"image", q.ImagePath, "jpg"},
		{"audio", q.AudioPath, "m4a"},
		{"video", q.VideoPath, "mp4"},
	} {
		if att.path == "" {
			continue
		}
		f, err := FileFromPath(att.field, att.path, att.field, att.ext, now)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	if _, err := PostMultipart[json.RawMessage](ctx, a.client, "/queries", fields, files); err != nil {
		return err
	}

	a.notifyAdmins(ctx)
	return nil
}

// notifyAdmins pings the admin-contacts endpoint without blocking.
func (a *KrushiAPI) notifyAdmins(ctx context.Context) {
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		if _, err := a.client.Fetch(context.WithoutCancel(ctx), "/queries/admin-contacts", WithoutCache()); err != nil {
			a.log.Debug().Err(err).Msg("admin notification failed")
		}
	}()
}

// EscalateQuery asks the service to escalate the query. The new status is
// only visible after the queries are fetched again.
func (a *KrushiAPI) EscalateQuery(ctx context.Context, id domain.ID) error {
	_, err := Post[json.RawMessage](ctx, a.client, "/queries/"+url.PathEscape(id.String())+"/escalate", nil)
	return err
}

// ClearCache drops every cached response (used on logout).
func (a *KrushiAPI) ClearCache() error {
	return a.client.ClearCache()
}

// WaitBackground blocks until best-effort side calls have finished.
func (a *KrushiAPI) WaitBackground() {
	a.background.Wait()
}
