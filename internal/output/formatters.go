// Package output renders reports, stage progress and queries for the
// terminal, as markdown or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/escalation"
	"github.com/sahajakrushi/krushi-cli/internal/stages"
)

// PrintJSON prints a single item as formatted JSON.
func PrintJSON(w io.Writer, item any) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// StageDoc is the JSON form of a stage view.
type StageDoc struct {
	ID          domain.ID `json:"id"`
	Order       int       `json:"order"`
	Name        string    `json:"name"`
	Completed   bool      `json:"completed"`
	Locked      bool      `json:"locked"`
	Photos      int       `json:"photos"`
	LatestPhoto string    `json:"latestPhoto,omitempty"`
}

// ProgressDoc is the JSON form of a report view.
type ProgressDoc struct {
	ReportID    domain.ID           `json:"reportId"`
	CropName    string              `json:"cropName"`
	Status      domain.ReportStatus `json:"status"`
	ProgressPct int                 `json:"progressPct"`
	NextStage   string              `json:"nextStage,omitempty"`
	Stages      []StageDoc          `json:"stages"`
}

// NewProgressDoc converts a view for JSON output.
func NewProgressDoc(view stages.ReportView) ProgressDoc {
	doc := ProgressDoc{
		ReportID:    view.Report.ID,
		CropName:    view.Report.CropName,
		Status:      view.Report.Status,
		ProgressPct: view.ProgressPct,
		Stages:      make([]StageDoc, 0, len(view.Stages)),
	}
	if view.NextStage != nil {
		doc.NextStage = view.NextStage.StageName
	}
	for _, s := range view.Stages {
		sd := StageDoc{
			ID:        s.Stage.ID,
			Order:     s.Stage.StageOrder,
			Name:      s.Stage.StageName,
			Completed: s.Stage.IsCompleted,
			Locked:    s.IsLocked,
			Photos:    len(s.Stage.Photos),
		}
		if s.LatestPhoto != nil {
			sd.LatestPhoto = s.LatestPhoto.PhotoPath
		}
		doc.Stages = append(doc.Stages, sd)
	}
	return doc
}

// PrintReportList prints one line per report.
func PrintReportList(w io.Writer, reports []domain.CropReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No crop reports yet.")
		return
	}
	fmt.Fprintln(w, "# Crop reports")
	fmt.Fprintln(w)
	for _, r := range reports {
		view := stages.DeriveView(r)
		fmt.Fprintf(w, "- **%s** (id %s) %s, %d%% complete, created %s\n",
			r.CropName, r.ID, statusLabel(r.Status), view.ProgressPct, core.FormatDate(r.CreatedAt))
	}
}

// PrintReport prints a report view with its stages.
func PrintReport(w io.Writer, view stages.ReportView) {
	r := view.Report
	fmt.Fprintf(w, "# %s\n\n", r.CropName)
	fmt.Fprintf(w, "- ID: %s\n", r.ID)
	fmt.Fprintf(w, "- Status: %s\n", statusLabel(r.Status))
	if r.CropType != "" {
		fmt.Fprintf(w, "- Type: %s\n", r.CropType)
	}
	if r.AreaHectares != nil {
		fmt.Fprintf(w, "- Area: %g hectares\n", *r.AreaHectares)
	}
	fmt.Fprintf(w, "- Created: %s\n", core.FormatDate(r.CreatedAt))
	if r.Description != "" {
		fmt.Fprintf(w, "\n%s\n", r.Description)
	}

	fmt.Fprintf(w, "\n## Progress: %d%% (%d of %d stages)\n\n", view.ProgressPct, view.CompletedCount(), len(view.Stages))
	for _, s := range view.Stages {
		fmt.Fprintln(w, stageLine(s))
	}
	if view.NextStage != nil {
		fmt.Fprintf(w, "\nNext: %s\n", view.NextStage.StageName)
	}
}

func stageLine(s stages.StageView) string {
	mark := "[ ]"
	switch {
	case s.Stage.IsCompleted:
		mark = "[x]"
	case s.IsLocked:
		mark = "[-]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s %s (stage %s)", s.Stage.StageOrder, mark, s.Stage.StageName, s.Stage.ID)
	if s.IsLocked {
		b.WriteString(" locked")
	}
	if n := len(s.Stage.Photos); n > 0 {
		fmt.Fprintf(&b, ", %d photo", n)
		if n > 1 {
			b.WriteString("s")
		}
	}
	if s.LatestPhoto != nil {
		fmt.Fprintf(&b, ", latest %s (photo %s)", s.LatestPhoto.PhotoPath, s.LatestPhoto.ID)
	}
	return b.String()
}

func statusLabel(s domain.ReportStatus) string {
	if s == "" {
		return string(domain.ReportActive)
	}
	return string(s)
}

// PrintUploadPreview prints the details of a photo awaiting confirmation.
func PrintUploadPreview(w io.Writer, p stages.PendingPreview) {
	fmt.Fprintf(w, "Stage:     %s (%s)\n", p.StageName, p.StageID)
	fmt.Fprintf(w, "File:      %s\n", p.Path)
	fmt.Fprintf(w, "Upload as: %s\n", p.File.Filename)
	fmt.Fprintf(w, "Type:      %s\n", p.File.ContentType)
	fmt.Fprintf(w, "Size:      %s\n", humanSize(p.Size))
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// QueryDoc is the JSON form of a query with its escalation state.
type QueryDoc struct {
	ID           domain.ID          `json:"id"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	Status       domain.QueryStatus `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	CanEscalate  bool               `json:"canEscalate"`
	EscalateWait string             `json:"escalateIn,omitempty"`
}

// NewQueryDocs annotates queries with escalation availability.
func NewQueryDocs(queries []domain.Query, window escalation.Window) []QueryDoc {
	docs := make([]QueryDoc, 0, len(queries))
	for _, q := range queries {
		doc := QueryDoc{
			ID:          q.ID,
			Title:       q.Title,
			Description: q.Description,
			Status:      q.Status,
			CreatedAt:   q.CreatedAt,
			CanEscalate: window.CanEscalate(q),
		}
		if escalation.Awaiting(q.Status) && !doc.CanEscalate {
			doc.EscalateWait = core.FormatWait(window.Remaining(q))
		}
		docs = append(docs, doc)
	}
	return docs
}

// PrintQueries prints the farmer's queries.
func PrintQueries(w io.Writer, docs []QueryDoc) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No queries yet.")
		return
	}
	fmt.Fprintln(w, "# Queries")
	fmt.Fprintln(w)
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = truncate(d.Description, 60)
		}
		line := fmt.Sprintf("- [%s] %s (id %s, %s)", d.Status, title, d.ID, core.FormatDate(d.CreatedAt))
		switch {
		case d.CanEscalate:
			line += ", can escalate"
		case d.EscalateWait != "":
			line += ", escalate in " + d.EscalateWait
		}
		fmt.Fprintln(w, line)
	}
}

// PrintSummary prints the dashboard tally.
func PrintSummary(w io.Writer, s domain.QuerySummary) {
	fmt.Fprintf(w, "Total: %d\nOpen: %d\nAnswered: %d\nClosed: %d\n", s.Total, s.Open, s.Answered, s.Closed)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
