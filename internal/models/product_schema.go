package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Schema.org constants every generated artifact must carry.
const (
	SchemaContext = "https://schema.org"
	SchemaType    = "Product"
)

// ProductSchema is the schema.org Product JSON-LD artifact generated for a
// catalog item. Validation tags are enforced before an artifact is accepted.
type ProductSchema struct {
	Context     string  `json:"@context" validate:"required,eq=https://schema.org"`
	Type        string  `json:"@type" validate:"required,eq=Product"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Brand       Brand   `json:"brand"`
	SKU         string  `json:"sku,omitempty"`
	Category    string  `json:"category,omitempty"`
	Material    string  `json:"material,omitempty"`
	Color       string  `json:"color,omitempty"`
	Offers      *Offers `json:"offers,omitempty" validate:"omitempty"`
}

// Brand is the schema.org Brand node.
type Brand struct {
	Type string `json:"@type,omitempty"`
	Name string `json:"name" validate:"required"`
}

// Offers is the schema.org Offer node.
type Offers struct {
	Type          string `json:"@type,omitempty"`
	Price         string `json:"price" validate:"required,decimal"`
	PriceCurrency string `json:"priceCurrency" validate:"required,len=3,uppercase"`
	Availability  string `json:"availability,omitempty"`
}

// Value stores the artifact as JSONB.
func (s ProductSchema) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan decodes a JSONB artifact column.
func (s *ProductSchema) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("product schema: unsupported scan type %T", src)
	}
}
