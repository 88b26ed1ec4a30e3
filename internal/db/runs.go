package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

const runCols = `id, rfp_id, buyer_name, payload, feedback_label, feedback_notes, feedback_rating, created_at`

func scanRun(scan func(dest ...interface{}) error) (models.RfpRun, error) {
	var r models.RfpRun
	var rfpID, buyer *string
	var payload []byte

	err := scan(&r.ID, &rfpID, &buyer, &payload, &r.FeedbackLabel, &r.FeedbackNotes, &r.FeedbackRating, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.RfpID = derefString(rfpID)
	r.BuyerName = derefString(buyer)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return r, fmt.Errorf("decode payload of run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func collectRuns(rows pgx.Rows) ([]models.RfpRun, error) {
	defer rows.Close()
	runs := []models.RfpRun{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// newRun builds the row for an analysis payload. Indexed columns are read through the
// normalization aliases so legacy response shapes still get an rfp id and buyer.
func newRun(payload map[string]interface{}, now time.Time) models.RfpRun {
	rec := normalize.Record(payload)
	run := models.RfpRun{ID: uuid.New(), Payload: payload, CreatedAt: now}
	if id, ok := normalize.ResolveString(rec, normalize.RfpID); ok {
		run.RfpID = id
	}
	if buyer, ok := normalize.ResolveString(rec, normalize.Buyer); ok {
		run.BuyerName = buyer
	}
	if t, ok := normalize.ResolveTime(rec, normalize.Created); ok {
		run.CreatedAt = t
	}
	return run
}

// InsertRuns stores each payload as its own history row, in one transaction.
func (s *Store) InsertRuns(ctx context.Context, payloads []map[string]interface{}) ([]models.RfpRun, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	runs := make([]models.RfpRun, 0, len(payloads))

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range payloads {
			run := newRun(p, now)
			raw, err := json.Marshal(run.Payload)
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			batch.Queue(`
				INSERT INTO rfp_runs (id, rfp_id, buyer_name, payload, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, run.ID, nullIfEmpty(run.RfpID), nullIfEmpty(run.BuyerName), raw, run.CreatedAt)
			runs = append(runs, run)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, fmt.Errorf("insert rfp runs: %w", err)
	}
	return runs, nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RfpRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM rfp_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, runCols), limit)
	if err != nil {
		return nil, fmt.Errorf("list rfp runs: %w", err)
	}
	return collectRuns(rows)
}

// LatestRun returns the most recent run for an rfp id.
func (s *Store) LatestRun(ctx context.Context, rfpID string) (*models.RfpRun, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM rfp_runs
		WHERE rfp_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, runCols), rfpID)
	r, err := scanRun(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// buildFeedbackUpdate returns the SET clause for the supplied fields only. The rfp id is
// always $1.
func buildFeedbackUpdate(f models.Feedback) (string, []interface{}) {
	args := []interface{}{f.RfpID}
	var sets []string
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Label != nil {
		add("feedback_label", nullIfEmpty(*f.Label))
	}
	if f.Notes != nil {
		add("feedback_notes", nullIfEmpty(*f.Notes))
	}
	if f.Rating != nil {
		add("feedback_rating", *f.Rating)
	} else if f.ClearRating {
		add("feedback_rating", nil)
	}
	return strings.Join(sets, ", "), args
}

// UpdateFeedback applies a partial feedback update to the latest run of the rfp id.
func (s *Store) UpdateFeedback(ctx context.Context, f models.Feedback) (*models.RfpRun, error) {
	set, args := buildFeedbackUpdate(f)
	if set == "" {
		return nil, fmt.Errorf("update feedback: no fields supplied")
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE rfp_runs SET %s
		WHERE id = (
			SELECT id FROM rfp_runs WHERE rfp_id = $1 ORDER BY created_at DESC LIMIT 1
		)
		RETURNING %s
	`, set, runCols), args...)
	r, err := scanRun(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// Buyers lists every distinct non-empty buyer across runs and leads, sorted.
func (s *Store) Buyers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT buyer FROM (
			SELECT buyer_name AS buyer FROM rfp_runs
			UNION
			SELECT buyer FROM manual_leads
		) b
		WHERE buyer IS NOT NULL AND btrim(buyer) <> ''
		ORDER BY buyer
	`)
	if err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	defer rows.Close()

	buyers := []string{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		buyers = append(buyers, b)
	}
	return buyers, rows.Err()
}
