package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
)

// DefaultStageNames is the growth taxonomy the service attaches to every
// new report, in order.
var DefaultStageNames = []string{
	"Land Preparation",
	"Sowing",
	"Growth",
	"Flowering and Fruit",
	"Harvest",
}

// FakeServer is an in-memory simulation of the advisory REST API served
// over httptest. It records every request for assertions in tests.
type FakeServer struct {
	server *httptest.Server
	clock  core.Clock

	mu       sync.Mutex
	nextID   int
	reports  map[domain.ID]*domain.CropReport
	farmers  map[string]domain.Farmer
	queries  map[string][]domain.Query
	requests []RecordedRequest
	failures []injectedFailure
	hook     func(*http.Request)
}

// RecordedRequest is one request observed by the fake.
type RecordedRequest struct {
	Method    string
	Path      string // below /api/V1
	Query     string
	RequestID string
	Auth      string
	Fields    map[string]string
	Files     map[string]RecordedFile
}

// RecordedFile is a multipart file part observed by the fake.
type RecordedFile struct {
	Filename    string
	ContentType string
	Size        int64
}

type injectedFailure struct {
	method  string
	path    string
	status  int
	message string
}

// NewFakeServer starts a fake service. Close it when done.
func NewFakeServer(clock core.Clock) *FakeServer {
	if clock == nil {
		clock = core.NewSystemClock()
	}
	f := &FakeServer{
		clock:   clock,
		nextID:  100,
		reports: make(map[domain.ID]*domain.CropReport),
		farmers: make(map[string]domain.Farmer),
		queries: make(map[string][]domain.Query),
	}
	f.server = httptest.NewServer(f.routes())
	return f
}

// URL is the server root, suitable as the client base URL.
func (f *FakeServer) URL() string {
	return f.server.URL
}

// Close shuts the server down.
func (f *FakeServer) Close() {
	f.server.Close()
}

func (f *FakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route(core.APIPath, func(api chi.Router) {
		api.Use(f.record)
		api.Use(f.inject)

		api.Route("/crop-reports", func(cr chi.Router) {
			cr.Post("/", f.handleCreateReport)
			cr.Get("/farmer/{farmerId}", f.handleListReports)
			cr.Get("/{id}", f.handleGetReport)
			cr.Put("/{id}", f.handleUpdateReport)
			cr.Delete("/{id}", f.handleDeleteReport)
			cr.Post("/stages/{stageId}/photos", f.handleUploadPhoto)
			cr.Delete("/stages/{stageId}/photos/{photoId}", f.handleDeletePhoto)
		})

		api.Get("/farmers/farmer-id/{code}", f.handleFarmerByCode)

		api.Route("/queries", func(qr chi.Router) {
			qr.Post("/", f.handleSubmitQuery)
			qr.Get("/mine", f.handleMyQueries)
			qr.Get("/admin-contacts", f.handleAdminContacts)
			qr.Post("/{id}/escalate", f.handleEscalate)
		})
	})
	return r
}

// record logs the request, parsing multipart bodies so tests can inspect
// field names and filenames.
func (f *FakeServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{
			Method:    r.Method,
			Path:      strings.TrimPrefix(r.URL.Path, core.APIPath),
			Query:     r.URL.RawQuery,
			RequestID: r.Header.Get("X-Request-ID"),
			Auth:      r.Header.Get("Authorization"),
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				rec.Fields = make(map[string]string)
				rec.Files = make(map[string]RecordedFile)
				for name, values := range r.MultipartForm.Value {
					rec.Fields[name] = values[0]
				}
				for name, headers := range r.MultipartForm.File {
					rec.Files[name] = RecordedFile{
						Filename:    headers[0].Filename,
						ContentType: headers[0].Header.Get("Content-Type"),
						Size:        headers[0].Size,
					}
				}
			}
		}

		f.mu.Lock()
		f.requests = append(f.requests, rec)
		hook := f.hook
		f.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeServer) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, core.APIPath)

		f.mu.Lock()
		var hit *injectedFailure
		for i, fail := range f.failures {
			if fail.method == r.Method && strings.HasPrefix(path, fail.path) {
				hit = &fail
				f.failures = slices.Delete(f.failures, i, i+1)
				break
			}
		}
		f.mu.Unlock()

		if hit != nil {
			writeFailure(w, hit.status, hit.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request matching method and path prefix fail
// with status. A 200 status produces an envelope with success=false.
func (f *FakeServer) FailNext(method, pathPrefix string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, injectedFailure{method: method, path: pathPrefix, status: status, message: message})
}

// SetHook installs a function run before every request is handled. Tests
// use it to delay or block responses.
func (f *FakeServer) SetHook(hook func(*http.Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Requests returns a copy of the recorded requests.
func (f *FakeServer) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Count returns how many requests matched method and path exactly.
func (f *FakeServer) Count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ResetRequests forgets recorded requests.
func (f *FakeServer) ResetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

// SeedFarmer registers a farmer account.
func (f *FakeServer) SeedFarmer(farmer domain.Farmer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.farmers[farmer.FarmerCode] = farmer
}

// SeedReport stores report as-is. Stages and ids are taken from report.
func (f *FakeServer) SeedReport(report domain.CropReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := report
	f.reports[r.ID] = &r
}

// SeedQuery stores a query under the farmer's login code.
func (f *FakeServer) SeedQuery(farmerCode string, q domain.Query) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[farmerCode] = append(f.queries[farmerCode], q)
}

// NewReport creates a report with the default stages, as the service does.
func (f *FakeServer) NewReport(farmerID domain.ID, cropName string) domain.CropReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.newReportLocked(domain.NewCropReport{FarmerID: farmerID, CropName: cropName})
	return cloneReport(r)
}

// AddPhoto attaches a photo to a stage directly, bypassing HTTP.
func (f *FakeServer) AddPhoto(stageID domain.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if report, idx := f.findStageLocked(stageID); report != nil {
		f.addPhotoLocked(report, idx)
	}
}

// Report returns the server's current copy of a report.
func (f *FakeServer) Report(id domain.ID) (domain.CropReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return domain.CropReport{}, false
	}
	return cloneReport(r), true
}

func (f *FakeServer) id() domain.ID {
	f.nextID++
	return domain.ID(strconv.Itoa(f.nextID))
}

func (f *FakeServer) newReportLocked(in domain.NewCropReport) *domain.CropReport {
	r := &domain.CropReport{
		ID:           f.id(),
		FarmerID:     in.FarmerID,
		CropName:     in.CropName,
		AreaHectares: in.AreaHectares,
		Status:       domain.ReportActive,
		CreatedAt:    f.clock.Now(),
	}
	if in.CropType != nil {
		r.CropType = *in.CropType
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	for i, name := range DefaultStageNames {
		r.Stages = append(r.Stages, domain.CropStage{
			ID:         f.id(),
			StageOrder: i + 1,
			StageName:  name,
			Photos:     []domain.CropStagePhoto{},
		})
	}
	f.reports[r.ID] = r
	return r
}

func (f *FakeServer) findStageLocked(stageID domain.ID) (*domain.CropReport, int) {
	for _, r := range f.reports {
		for i, s := range r.Stages {
			if s.ID == stageID {
				return r, i
			}
		}
	}
	return nil, -1
}

func (f *FakeServer) addPhotoLocked(r *domain.CropReport, idx int) domain.CropStagePhoto {
	now := f.clock.Now()
	id := f.id()
	photo := domain.CropStagePhoto{
		ID:         id,
		PhotoPath:  fmt.Sprintf("/uploads/crop-stages/%s.jpg", id),
		UploadedAt: now,
	}
	stage := &r.Stages[idx]
	stage.Photos = append(stage.Photos, photo)
	stage.IsCompleted = true
	if stage.StageDate == nil {
		stage.StageDate = &now
	}
	updateStatus(r)
	return photo
}

// updateStatus derives the report status from stage completion.
func updateStatus(r *domain.CropReport) {
	if r.Status == domain.ReportAbandoned || len(r.Stages) == 0 {
		return
	}
	for _, s := range r.Stages {
		if !s.IsCompleted {
			r.Status = domain.ReportActive
			return
		}
	}
	r.Status = domain.ReportCompleted
}

func cloneReport(r *domain.CropReport) domain.CropReport {
	out := *r
	out.Stages = make([]domain.CropStage, len(r.Stages))
	for i, s := range r.Stages {
		s.Photos = slices.Clone(s.Photos)
		if s.Photos == nil {
			s.Photos = []domain.CropStagePhoto{}
		}
		out.Stages[i] = s
	}
	return out
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}

func (f *FakeServer) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var in domain.NewCropReport
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.FarmerID == "" || strings.TrimSpace(in.CropName) == "" {
		writeFailure(w, http.StatusBadRequest, "farmerId and cropName are required")
		return
	}

	f.mu.Lock()
	report := cloneReport(f.newReportLocked(in))
	f.mu.Unlock()
	writeData(w, http.StatusCreated, report)
}

func (f *FakeServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	farmerID := domain.ID(chi.URLParam(r, "farmerId"))

	f.mu.Lock()
	out := []domain.CropReport{}
	for _, report := range f.reports {
		if report.FarmerID == farmerID {
			out = append(out, cloneReport(report))
		}
	}
	f.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.CropReport) int { return b.CreatedAt.Compare(a.CreatedAt) })
	writeData(w, http.StatusOK, out)
}

func (f *FakeServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := f.Report(domain.ID(chi.URLParam(r, "id")))
	if !ok {
		writeFailure(w, http.StatusNotFound, "crop report not found")
		return
	}
	writeData(w, http.StatusOK, report)
}

func (f *FakeServer) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	var patch domain.ReportPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.reports[domain.ID(chi.URLParam(r, "id"))]
	if !ok {
		writeFailure(w, http.StatusNotFound, "crop report not found")
		return
	}
	if patch.CropName != nil {
		report.CropName = *patch.CropName
	}
	if patch.AreaHectares != nil {
		area := *patch.AreaHectares
		report.AreaHectares = &area
	}
	if patch.Description != nil {
		report.Description = *patch.Description
	}
	writeData(w, http.StatusOK, cloneReport(report))
}

func (f *FakeServer) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	f.mu.Lock()
	_, ok := f.reports[id]
	delete(f.reports, id)
	f.mu.Unlock()

	if !ok {
		writeFailure(w, http.StatusNotFound, "crop report not found")
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (f *FakeServer) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["photo"]) == 0 {
		writeFailure(w, http.StatusBadRequest, "photo file is required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	report, idx := f.findStageLocked(domain.ID(chi.URLParam(r, "stageId")))
	if report == nil {
		writeFailure(w, http.StatusNotFound, "stage not found")
		return
	}
	writeData(w, http.StatusCreated, f.addPhotoLocked(report, idx))
}

func (f *FakeServer) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	photoID := domain.ID(chi.URLParam(r, "photoId"))

	f.mu.Lock()
	defer f.mu.Unlock()
	report, idx := f.findStageLocked(domain.ID(chi.URLParam(r, "stageId")))
	if report == nil {
		writeFailure(w, http.StatusNotFound, "stage not found")
		return
	}
	stage := &report.Stages[idx]
	n := len(stage.Photos)
	stage.Photos = slices.DeleteFunc(stage.Photos, func(p domain.CropStagePhoto) bool { return p.ID == photoID })
	if len(stage.Photos) == n {
		writeFailure(w, http.StatusNotFound, "photo not found")
		return
	}
	if len(stage.Photos) == 0 {
		stage.IsCompleted = false
		stage.StageDate = nil
	}
	updateStatus(report)
	writeData(w, http.StatusOK, nil)
}

func (f *FakeServer) handleFarmerByCode(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	farmer, ok := f.farmers[chi.URLParam(r, "code")]
	f.mu.Unlock()

	if !ok {
		writeFailure(w, http.StatusNotFound, "farmer not found")
		return
	}
	writeData(w, http.StatusOK, farmer)
}

func (f *FakeServer) handleMyQueries(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("farmerId")
	if code == "" {
		writeFailure(w, http.StatusBadRequest, "farmerId is required")
		return
	}

	f.mu.Lock()
	out := slices.Clone(f.queries[code])
	f.mu.Unlock()

	if out == nil {
		out = []domain.Query{}
	}
	writeData(w, http.StatusOK, out)
}

func (f *FakeServer) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil {
		writeFailure(w, http.StatusBadRequest, "multipart body required")
		return
	}
	code := r.FormValue("farmerId")
	if code == "" {
		writeFailure(w, http.StatusBadRequest, "farmerId is required")
		return
	}

	f.mu.Lock()
	q := domain.Query{
		ID:          f.id(),
		Title:       "Query",
		Description: r.FormValue("description"),
		Status:      domain.QueryOpen,
		CreatedAt:   f.clock.Now(),
	}
	f.queries[code] = append(f.queries[code], q)
	f.mu.Unlock()

	writeData(w, http.StatusCreated, q)
}

func (f *FakeServer) handleAdminContacts(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, []map[string]string{{"name": "Extension Office", "phone": "+91-0000000000"}})
}

func (f *FakeServer) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	f.mu.Lock()
	defer f.mu.Unlock()
	for code, queries := range f.queries {
		for i := range queries {
			if queries[i].ID == id {
				f.queries[code][i].Status = domain.QueryEscalated
				writeData(w, http.StatusOK, f.queries[code][i])
				return
			}
		}
	}
	writeFailure(w, http.StatusNotFound, "query not found")
}

// Delay returns a hook that sleeps for d before each request.
func Delay(d time.Duration) func(*http.Request) {
	return func(r *http.Request) {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
		}
	}
}
