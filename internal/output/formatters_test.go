package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/escalation"
	"github.com/sahajakrushi/krushi-cli/internal/stages"
)

func sampleReport() domain.CropReport {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.CropReport{
		ID:       "7",
		CropName: "Wheat",
		Status:   domain.ReportActive,
		Stages: []domain.CropStage{
			{ID: "s1", StageOrder: 1, StageName: "Land Preparation", IsCompleted: true, Photos: []domain.CropStagePhoto{{ID: "p1", PhotoPath: "/uploads/p1.jpg", UploadedAt: at}}},
			{ID: "s2", StageOrder: 2, StageName: "Sowing"},
			{ID: "s3", StageOrder: 3, StageName: "Growth"},
		},
		CreatedAt: at,
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, stages.DeriveView(sampleReport()))
	out := buf.String()

	for _, want := range []string{
		"# Wheat",
		"## Progress: 33% (1 of 3 stages)",
		"1. [x] Land Preparation (stage s1), 1 photo, latest /uploads/p1.jpg (photo p1)",
		"2. [ ] Sowing (stage s2)",
		"3. [-] Growth (stage s3) locked",
		"Next: Sowing",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProgressDocJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSON(&buf, NewProgressDoc(stages.DeriveView(sampleReport()))); err != nil {
		t.Fatal(err)
	}

	var doc ProgressDoc
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.ProgressPct != 33 || doc.NextStage != "Sowing" || len(doc.Stages) != 3 {
		t.Errorf("unexpected doc: %+v", doc)
	}
	if !doc.Stages[2].Locked || doc.Stages[1].Locked {
		t.Errorf("unexpected lock state: %+v", doc.Stages)
	}
}

func TestPrintReportListEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintReportList(&buf, nil)
	if got := buf.String(); got != "No crop reports yet.\n" {
		t.Errorf("got %q", got)
	}
}

func TestQueryDocs(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	window := escalation.NewWindow(core.NewFakeClock(created.Add(90 * time.Second)))
	docs := NewQueryDocs([]domain.Query{
		{ID: "1", Description: "Leaves yellowing", Status: domain.QueryOpen, CreatedAt: created},
		{ID: "2", Title: "Irrigation", Status: domain.QueryOpen, CreatedAt: created.Add(-time.Hour)},
		{ID: "3", Title: "Seeds", Status: domain.QueryAnswered, CreatedAt: created},
	}, window)

	if docs[0].CanEscalate || docs[0].EscalateWait != "30s" {
		t.Errorf("doc 1: %+v", docs[0])
	}
	if !docs[1].CanEscalate {
		t.Errorf("doc 2 should be escalatable")
	}
	if docs[2].CanEscalate || docs[2].EscalateWait != "" {
		t.Errorf("doc 3: %+v", docs[2])
	}

	var buf bytes.Buffer
	PrintQueries(&buf, docs)
	if !strings.Contains(buf.String(), "- [open] Leaves yellowing (id 1, ") || !strings.Contains(buf.String(), "escalate in 30s") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
