package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/david/rfp-desk/internal/models"
)

// GetCompanyProfile returns the single profile row, or ErrNotFound before one is saved.
func (s *Store) GetCompanyProfile(ctx context.Context) (*models.CompanyProfile, error) {
	var p models.CompanyProfile
	err := s.pool.QueryRow(ctx, `
		SELECT company_name, segment, region, contact_email, updated_at
		FROM company_profile WHERE id = 1
	`).Scan(&p.CompanyName, &p.Segment, &p.Region, &p.ContactEmail, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) SaveCompanyProfile(ctx context.Context, p models.CompanyProfile) (*models.CompanyProfile, error) {
	var out models.CompanyProfile
	err := s.pool.QueryRow(ctx, `
		INSERT INTO company_profile (id, company_name, segment, region, contact_email, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			segment = EXCLUDED.segment,
			region = EXCLUDED.region,
			contact_email = EXCLUDED.contact_email,
			updated_at = NOW()
		RETURNING company_name, segment, region, contact_email, updated_at
	`, p.CompanyName, p.Segment, p.Region, p.ContactEmail).Scan(
		&out.CompanyName, &out.Segment, &out.Region, &out.ContactEmail, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save company profile: %w", err)
	}
	return &out, nil
}

func (s *Store) ListSkuStock(ctx context.Context) ([]models.SkuStock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sku, description, stock_available, rack_id, updated_at
		FROM sku_stock ORDER BY sku
	`)
	if err != nil {
		return nil, fmt.Errorf("list sku stock: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.SkuStock])
}

// UpsertSkuStock writes every SKU in one batch, keyed by sku.
func (s *Store) UpsertSkuStock(ctx context.Context, skus []models.SkuStock) ([]models.SkuStock, error) {
	batch := &pgx.Batch{}
	for _, sku := range skus {
		batch.Queue(`
			INSERT INTO sku_stock (sku, description, stock_available, rack_id, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (sku) DO UPDATE SET
				description = EXCLUDED.description,
				stock_available = EXCLUDED.stock_available,
				rack_id = EXCLUDED.rack_id,
				updated_at = NOW()
		`, sku.SKU, sku.Description, sku.StockAvailable, sku.RackID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("upsert sku stock: %w", err)
	}
	return s.ListSkuStock(ctx)
}

const sourceCols = `id, source_name, url, tags, active`

func (s *Store) ListLeadSources(ctx context.Context) ([]models.LeadSource, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceCols+` FROM lead_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lead sources: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.LeadSource])
}

// ActiveLeadSources returns the sources a scan should visit.
func (s *Store) ActiveLeadSources(ctx context.Context) ([]models.LeadSource, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceCols+` FROM lead_sources WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active lead sources: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.LeadSource])
}

// ReplaceLeadSources swaps the whole list atomically. Ids are renumbered from 1 in the
// given order.
func (s *Store) ReplaceLeadSources(ctx context.Context, sources []models.LeadSource) ([]models.LeadSource, error) {
	sources = renumberSources(sources)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM lead_sources`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, src := range sources {
			batch.Queue(`INSERT INTO lead_sources (`+sourceCols+`) VALUES ($1, $2, $3, $4, $5)`,
				src.ID, src.SourceName, src.URL, src.Tags, src.Active)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, fmt.Errorf("replace lead sources: %w", err)
	}
	return sources, nil
}

func renumberSources(sources []models.LeadSource) []models.LeadSource {
	out := make([]models.LeadSource, len(sources))
	for i, src := range sources {
		src.ID = i + 1
		out[i] = src
	}
	return out
}
