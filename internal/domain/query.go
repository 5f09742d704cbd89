package domain

import (
	"encoding/json"
	"time"
)

// QueryStatus is the server-side state of an advisory query.
type QueryStatus string

const (
	QueryOpen        QueryStatus = "open"
	QueryAnswered    QueryStatus = "answered"
	QueryClosed      QueryStatus = "closed"
	QueryPending     QueryStatus = "pending"
	QueryApproved    QueryStatus = "approved"
	QueryRejected    QueryStatus = "rejected"
	QueryUnderReview QueryStatus = "under_review"
	QueryEscalated   QueryStatus = "escalated"
)

// Query is a farmer's advisory request.
type Query struct {
	ID          ID          `json:"id"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Status      QueryStatus `json:"status"`
	CropType    string      `json:"cropType,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// UnmarshalJSON accepts the creation time under either "createdAt" or the
// older "date" key.
func (q *Query) UnmarshalJSON(data []byte) error {
	type alias Query
	aux := struct {
		*alias
		Date *time.Time `json:"date"`
	}{alias: (*alias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if q.CreatedAt.IsZero() && aux.Date != nil {
		q.CreatedAt = *aux.Date
	}
	return nil
}

// QuerySummary is the dashboard tally of a farmer's queries.
type QuerySummary struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Answered int `json:"answered"`
	Closed   int `json:"closed"`
}

// Summarize counts queries by the statuses shown on the dashboard.
func Summarize(queries []Query) QuerySummary {
	s := QuerySummary{Total: len(queries)}
	for _, q := range queries {
		switch q.Status {
		case QueryOpen:
			s.Open++
		case QueryAnswered:
			s.Answered++
		case QueryClosed:
			s.Closed++
		}
	}
	return s
}

// Farmer is the account a report or query belongs to. FarmerCode is the
// login code; ID is the database id other endpoints expect.
type Farmer struct {
	ID         ID     `json:"id"`
	FarmerCode string `json:"farmerId"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
}
