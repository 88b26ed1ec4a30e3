package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

const leadCols = `id, rfp_id, title, buyer, deadline, url, source_name, status, requirements, quantity, base_price, created_at`

func scanLead(scan func(dest ...interface{}) error) (models.Lead, error) {
	var l models.Lead
	var rfpID *string
	err := scan(&l.ID, &rfpID, &l.Title, &l.Buyer, &l.Deadline, &l.URL, &l.SourceName, &l.Status,
		&l.Requirements, &l.Quantity, &l.BasePrice, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	l.RfpID = derefString(rfpID)
	return l, nil
}

// ListLeads returns leads created after since, newest first.
func (s *Store) ListLeads(ctx context.Context, since time.Time, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM manual_leads
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadCols), since, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *Store) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM manual_leads WHERE id = $1`, leadCols), id)
	l, err := scanLead(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// prepareLead fills the id, status and timestamp of a lead about to be inserted.
func prepareLead(l *models.Lead, now time.Time) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Status = string(normalize.ParseLeadState(l.Status))
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
}

func queueLeadInsert(b *pgx.Batch, l models.Lead) {
	b.Queue(fmt.Sprintf(`
		INSERT INTO manual_leads (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
	`, leadCols), l.ID, nullIfEmpty(l.RfpID), l.Title, l.Buyer, l.Deadline, l.URL, l.SourceName, l.Status,
		l.Requirements, l.Quantity, l.BasePrice, l.CreatedAt)
}

// InsertLeads stores new leads. Leads already known by source and url are skipped; the
// returned count is what was actually inserted.
func (s *Store) InsertLeads(ctx context.Context, leads []models.Lead) (int, error) {
	return insertLeads(ctx, s.pool, leads)
}

func insertLeads(ctx context.Context, q querier, leads []models.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for i := range leads {
		prepareLead(&leads[i], now)
		queueLeadInsert(batch, leads[i])
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for range leads {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert lead: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// AdvanceLead moves a lead to next when that does not move it backwards. It reports whether
// the row changed.
func (s *Store) AdvanceLead(ctx context.Context, id uuid.UUID, next normalize.LeadState) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manual_leads SET status = $2
		WHERE id = $1 AND status = ANY($3)
	`, id, string(next), statesBefore(next))
	if err != nil {
		return false, fmt.Errorf("advance lead %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.GetLead(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// statesBefore lists the states a lead may be in to move to next.
func statesBefore(next normalize.LeadState) []string {
	var out []string
	for _, st := range []normalize.LeadState{normalize.LeadNew, normalize.LeadInProgress, normalize.LeadResponded, normalize.LeadAnalyzed} {
		if st.CanAdvance(next) && st != next {
			out = append(out, string(st))
		}
	}
	return out
}
