package models

import (
	"time"

	"github.com/google/uuid"
)

// RfpRun is one stored analysis result. Payload is whatever the analysis workflow returned;
// the typed fields mirror the indexed columns and win over the payload on read.
type RfpRun struct {
	ID             uuid.UUID              `json:"id"`
	RfpID          string                 `json:"rfp_id"`
	BuyerName      string                 `json:"buyer_name"`
	Payload        map[string]interface{} `json:"payload"`
	FeedbackLabel  *string                `json:"feedback_label"`
	FeedbackNotes  *string                `json:"feedback_notes"`
	FeedbackRating *float64               `json:"feedback_rating"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Record flattens the run into one map: payload first, then the columns on top.
func (r RfpRun) Record() map[string]interface{} {
	rec := make(map[string]interface{}, len(r.Payload)+8)
	for k, v := range r.Payload {
		rec[k] = v
	}
	// Feedback lives in the columns only; a cleared column must not expose a payload value.
	delete(rec, "feedback_label")
	delete(rec, "feedback_notes")
	delete(rec, "feedback_rating")
	rec["id"] = r.ID.String()
	if r.RfpID != "" {
		rec["rfp_id"] = r.RfpID
	}
	if r.BuyerName != "" {
		rec["buyer_name"] = r.BuyerName
	}
	if !r.CreatedAt.IsZero() {
		rec["created_at"] = r.CreatedAt
	}
	if r.FeedbackLabel != nil {
		rec["feedback_label"] = *r.FeedbackLabel
	}
	if r.FeedbackNotes != nil {
		rec["feedback_notes"] = *r.FeedbackNotes
	}
	if r.FeedbackRating != nil {
		rec["feedback_rating"] = *r.FeedbackRating
	}
	return rec
}

// Feedback is a partial update: nil fields are left untouched, pointers to empty values clear
// the column.
type Feedback struct {
	RfpID  string
	Label  *string
	Notes  *string
	Rating *float64
	// ClearRating is set when the caller sent an empty rating.
	ClearRating bool
}

// Empty reports whether the update would change nothing.
func (f Feedback) Empty() bool {
	return f.Label == nil && f.Notes == nil && f.Rating == nil && !f.ClearRating
}
