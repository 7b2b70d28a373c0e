package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/schemagate/internal/models"
)

const productRecordColumns = `product_id, shop, content_fingerprint, artifact, is_synced,
	last_scanned_at, synced_at, created_at, updated_at`

// ProductRecordRepository is the artifact store: one row per catalog item.
type ProductRecordRepository struct {
	db *sqlx.DB
}

// NewProductRecordRepository creates a new ProductRecordRepository.
func NewProductRecordRepository(db *sqlx.DB) *ProductRecordRepository {
	return &ProductRecordRepository{db: db}
}

// GetByProductID returns the record for productID or sql.ErrNoRows.
func (r *ProductRecordRepository) GetByProductID(ctx context.Context, productID string) (*models.ProductRecord, error) {
	const q = `SELECT ` + productRecordColumns + ` FROM product_records WHERE product_id = $1`

	var rec models.ProductRecord
	if err := r.db.GetContext(ctx, &rec, q, productID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert writes fingerprint and artifact and resets is_synced. The write is
// skipped when the stored row was scanned later than rec, so an older
// generation never overwrites a newer one, and when the row belongs to another
// shop. It reports whether a row was written.
func (r *ProductRecordRepository) Upsert(ctx context.Context, rec *models.ProductRecord) (bool, error) {
	const q = `
		INSERT INTO product_records (product_id, shop, content_fingerprint, artifact, is_synced, last_scanned_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (product_id) DO UPDATE
		SET content_fingerprint = EXCLUDED.content_fingerprint,
		    artifact = EXCLUDED.artifact,
		    is_synced = FALSE,
		    synced_at = NULL,
		    last_scanned_at = EXCLUDED.last_scanned_at,
		    updated_at = NOW()
		WHERE product_records.last_scanned_at <= EXCLUDED.last_scanned_at
		  AND product_records.shop = EXCLUDED.shop`

	res, err := r.db.ExecContext(ctx, q,
		rec.ProductID,
		rec.Shop,
		rec.ContentFingerprint,
		rec.Artifact,
		rec.LastScannedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchScanned advances last_scanned_at without touching the artifact.
func (r *ProductRecordRepository) TouchScanned(ctx context.Context, productID string, at time.Time) error {
	const q = `
		UPDATE product_records
		SET last_scanned_at = GREATEST(last_scanned_at, $2)
		WHERE product_id = $1`

	_, err := r.db.ExecContext(ctx, q, productID, at)
	return err
}

// RecordScan stores a scan-only row for a product seen for the first time
// whose generation did not complete. Existing rows are left untouched.
func (r *ProductRecordRepository) RecordScan(ctx context.Context, shop, productID string, at time.Time) error {
	const q = `
		INSERT INTO product_records (product_id, shop, is_synced, last_scanned_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (product_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, q, productID, shop, at)
	return err
}

// MarkSynced flips is_synced once the delivery collaborator confirmed the
// artifact with the given fingerprint. A record regenerated in the meantime
// is left unsynced.
func (r *ProductRecordRepository) MarkSynced(ctx context.Context, productID, fingerprint string) (bool, error) {
	const q = `
		UPDATE product_records
		SET is_synced = TRUE, synced_at = NOW(), updated_at = NOW()
		WHERE product_id = $1 AND content_fingerprint = $2`

	res, err := r.db.ExecContext(ctx, q, productID, fingerprint)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnsynced returns generated artifacts still awaiting delivery, oldest first.
func (r *ProductRecordRepository) ListUnsynced(ctx context.Context, limit int) ([]models.ProductRecord, error) {
	const q = `SELECT ` + productRecordColumns + `
		FROM product_records
		WHERE is_synced = FALSE AND artifact IS NOT NULL
		ORDER BY updated_at
		LIMIT $1`

	var records []models.ProductRecord
	if err := r.db.SelectContext(ctx, &records, q, limit); err != nil {
		return nil, err
	}
	return records, nil
}
