package domain

import (
	"time"
)

// ReportStatus is the server-derived lifecycle state of a crop report.
type ReportStatus string

const (
	ReportActive    ReportStatus = "active"
	ReportCompleted ReportStatus = "completed"
	ReportAbandoned ReportStatus = "abandoned"
)

// CropReport is one farmer's record of a crop and its growth stages.
// Status and the stages' completion flags are owned by the server.
type CropReport struct {
	ID           ID           `json:"id"`
	FarmerID     ID           `json:"farmerId,omitempty"`
	CropName     string       `json:"cropName"`
	CropType     string       `json:"cropType,omitempty"`
	AreaHectares *float64     `json:"areaHectares,omitempty"`
	Description  string       `json:"description,omitempty"`
	Status       ReportStatus `json:"status"`
	Stages       []CropStage  `json:"stages"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// CropStage is one step of the fixed growth taxonomy attached to a report.
type CropStage struct {
	ID          ID               `json:"id"`
	StageOrder  int              `json:"stageOrder"`
	StageName   string           `json:"stageName"`
	IsCompleted bool             `json:"isCompleted"`
	StageDate   *time.Time       `json:"stageDate,omitempty"`
	Photos      []CropStagePhoto `json:"photos"`
}

// HasPhotos reports whether the stage has at least one photo attached.
func (s CropStage) HasPhotos() bool {
	return len(s.Photos) > 0
}

// LatestPhoto returns the last photo of the stage, which is the one shown.
func (s CropStage) LatestPhoto() (CropStagePhoto, bool) {
	if len(s.Photos) == 0 {
		return CropStagePhoto{}, false
	}
	return s.Photos[len(s.Photos)-1], true
}

// CropStagePhoto is a photographic record attached to a stage.
type CropStagePhoto struct {
	ID               ID        `json:"id"`
	PhotoPath        string    `json:"photoPath"`
	PhotoDescription string    `json:"photoDescription,omitempty"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// NewCropReport carries the fields of a report creation request.
type NewCropReport struct {
	FarmerID     ID       `json:"farmerId"`
	CropName     string   `json:"cropName"`
	CropType     *string  `json:"cropType"`
	AreaHectares *float64 `json:"areaHectares"`
	Description  *string  `json:"description"`
}

// ReportPatch is a partial update. Nil fields are omitted from the request
// so the server keeps their current value.
type ReportPatch struct {
	CropName     *string  `json:"cropName,omitempty"`
	AreaHectares *float64 `json:"areaHectares,omitempty"`
	Description  *string  `json:"description,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p ReportPatch) IsEmpty() bool {
	return p.CropName == nil && p.AreaHectares == nil && p.Description == nil
}
