package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ProductFields is the catalog state of one product as delivered by a trigger.
// Only Title, Description and Vendor participate in the fingerprint.
type ProductFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Vendor      string `json:"vendor"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`
	SKU         string `json:"sku,omitempty"`
}

// fingerprintFields fixes the canonical key order: description, title, vendor.
type fingerprintFields struct {
	Description string `json:"description"`
	Title       string `json:"title"`
	Vendor      string `json:"vendor"`
}

// CanonicalFields serializes the fingerprinted subset of p as a JSON object
// with alphabetically ordered keys and no HTML escaping.
func CanonicalFields(p ProductFields) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of strings cannot fail.
	_ = enc.Encode(fingerprintFields{
		Description: p.Description,
		Title:       p.Title,
		Vendor:      p.Vendor,
	})
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Fingerprint returns the lowercase hex SHA-256 of the canonical fields.
// The result is always 64 characters.
func Fingerprint(p ProductFields) string {
	sum := sha256.Sum256([]byte(CanonicalFields(p)))
	return hex.EncodeToString(sum[:])
}

// FingerprintMatches reports whether a stored fingerprint equals a freshly
// computed one. An absent stored fingerprint never matches.
func FingerprintMatches(stored *string, fresh string) bool {
	return stored != nil && *stored == fresh
}
