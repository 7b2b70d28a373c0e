package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/utils"
)

const defaultAvailability = "https://schema.org/InStock"

// GenerationRequest is what the generation adapter receives.
type GenerationRequest struct {
	BrandVoice string
	Product    utils.ProductFields
}

// Generator produces a schema-valid artifact or an error wrapping
// ErrGenerationFailed.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*models.ProductSchema, error)
}

// Completer is the model boundary used by LLMGenerator.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

var schemaValidator = newSchemaValidator()

func newSchemaValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	return v
}

// ValidateSchema rejects artifacts missing required fields or carrying the
// wrong @context or @type literal.
func ValidateSchema(s *models.ProductSchema) error {
	if s == nil {
		return fmt.Errorf("%w: empty artifact", utils.ErrGenerationFailed)
	}
	if err := schemaValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: invalid artifact: %v", utils.ErrGenerationFailed, err)
	}
	return nil
}

// LLMGenerator generates artifacts through a chat completion model.
type LLMGenerator struct {
	client Completer
}

// NewLLMGenerator constructs an LLMGenerator.
func NewLLMGenerator(client Completer) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// Generate asks the model for a Product node, grounds catalog facts the model
// must not invent, and validates the result.
func (g *LLMGenerator) Generate(ctx context.Context, req GenerationRequest) (*models.ProductSchema, error) {
	raw, err := g.client.CompleteJSON(ctx, buildSchemaPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrGenerationFailed, err)
	}

	var schema models.ProductSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		log.Debug().Str("raw_response", raw).Msg("undecodable artifact")
		return nil, fmt.Errorf("%w: decode artifact: %v", utils.ErrGenerationFailed, err)
	}

	groundSchema(&schema, req.Product)

	if err := ValidateSchema(&schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// groundSchema overwrites fields that must come from the catalog. The vendor
// only fills brand.name when the model left it empty.
func groundSchema(s *models.ProductSchema, p utils.ProductFields) {
	if p.SKU != "" {
		s.SKU = p.SKU
	}
	if s.Brand.Name == "" && p.Vendor != "" {
		s.Brand.Name = p.Vendor
	}
	if s.Brand.Name != "" && s.Brand.Type == "" {
		s.Brand.Type = "Brand"
	}

	price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
	if err != nil {
		return
	}
	if s.Offers == nil {
		if p.Currency == "" {
			return
		}
		s.Offers = &models.Offers{Availability: defaultAvailability}
	}
	s.Offers.Type = "Offer"
	s.Offers.Price = price.StringFixed(2)
	if p.Currency != "" {
		s.Offers.PriceCurrency = strings.ToUpper(p.Currency)
	}
}

func buildSchemaPrompt(req GenerationRequest) string {
	voice := strings.TrimSpace(req.BrandVoice)
	if voice == "" {
		voice = "neutral, factual"
	}
	p := req.Product

	var b strings.Builder
	b.WriteString("Generate schema.org Product JSON-LD for the product below.\n")
	fmt.Fprintf(&b, "Write the description in this brand voice: %s\n\n", voice)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Vendor: %s\n", p.Vendor)
	if p.Price != "" {
		fmt.Fprintf(&b, "Price: %s %s\n", p.Price, p.Currency)
	}
	if p.SKU != "" {
		fmt.Fprintf(&b, "SKU: %s\n", p.SKU)
	}
	b.WriteString(`
Return ONLY this JSON structure:
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "product name",
  "description": "one or two sentences",
  "brand": {"@type": "Brand", "name": "brand name"},
  "sku": "optional",
  "category": "optional",
  "material": "optional",
  "color": "optional",
  "offers": {"@type": "Offer", "price": "0.00", "priceCurrency": "USD", "availability": "https://schema.org/InStock"}
}
Omit optional fields you cannot infer from the product data. Do not invent prices.`)
	return b.String()
}
