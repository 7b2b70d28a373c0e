package models

import "time"

// ProductRecord is the persisted generation state of one catalog item.
// Artifact is only ever set together with ContentFingerprint.
type ProductRecord struct {
	ProductID          string         `db:"product_id" json:"productId"`
	Shop               string         `db:"shop" json:"shop"`
	ContentFingerprint *string        `db:"content_fingerprint" json:"contentFingerprint,omitempty"`
	Artifact           *ProductSchema `db:"artifact" json:"artifact,omitempty"`
	IsSynced           bool           `db:"is_synced" json:"isSynced"`
	LastScannedAt      time.Time      `db:"last_scanned_at" json:"lastScannedAt"`
	SyncedAt           *time.Time     `db:"synced_at" json:"syncedAt,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// Fingerprint returns the stored fingerprint or an empty string.
func (r *ProductRecord) Fingerprint() string {
	if r.ContentFingerprint == nil {
		return ""
	}
	return *r.ContentFingerprint
}
