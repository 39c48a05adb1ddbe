package models

import (
	"fmt"
	"strings"
	"time"
)

type Availability string

const (
	AvailabilityInStock    Availability = "InStock"
	AvailabilityOutOfStock Availability = "OutOfStock"
	AvailabilityPreOrder   Availability = "PreOrder"
)

func (a Availability) Valid() bool {
	switch a {
	case AvailabilityInStock, AvailabilityOutOfStock, AvailabilityPreOrder:
		return true
	}
	return false
}

type SizeRequirement string

const (
	SizeRequirementMandatory SizeRequirement = "Mandatory"
	SizeRequirementOptional  SizeRequirement = "Optional"
	SizeRequirementNone      SizeRequirement = "None"
)

func (s SizeRequirement) Valid() bool {
	switch s {
	case SizeRequirementMandatory, SizeRequirementOptional, SizeRequirementNone:
		return true
	}
	return false
}

type Price struct {
	Currency     string   `json:"currency"`
	Amount       float64  `json:"amount"`
	ExchangeRate *float64 `json:"exchange_rate,omitempty"`
}

type Size struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Product struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Prices          []Price         `json:"prices"`
	Availability    Availability    `json:"availability"`
	Quantity        int             `json:"quantity"`
	SizeRequirement SizeRequirement `json:"size_requirement"`
	Sizes           []Size          `json:"sizes"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SizeQuantity returns the stock of the named variant and whether it exists.
func (p *Product) SizeQuantity(name string) (int, bool) {
	for _, s := range p.Sizes {
		if s.Name == name {
			return s.Quantity, true
		}
	}
	return 0, false
}

// UnitPrice is the amount of the product's first listed price, which orders
// are charged in.
func (p *Product) UnitPrice() float64 {
	if len(p.Prices) == 0 {
		return 0
	}
	return p.Prices[0].Amount
}

// Validate checks catalog invariants. For Mandatory products the variant
// quantities must add up to the aggregate quantity.
func (p *Product) Validate() error {
	details := map[string]string{}

	if strings.TrimSpace(p.Title) == "" {
		details["title"] = "Title is required"
	}
	if !p.Availability.Valid() {
		details["availability"] = "Availability must be one of InStock, OutOfStock, PreOrder"
	}
	if !p.SizeRequirement.Valid() {
		details["size_requirement"] = "Size requirement must be one of Mandatory, Optional, None"
	}
	if p.Quantity < 0 {
		details["quantity"] = "Quantity cannot be negative"
	}
	if len(p.Prices) == 0 {
		details["prices"] = "At least one price is required"
	}
	for i, price := range p.Prices {
		if len(price.Currency) != 3 {
			details[fmt.Sprintf("prices[%d].currency", i)] = "Currency must be a 3-letter code"
		}
		if price.Amount < 0 {
			details[fmt.Sprintf("prices[%d].amount", i)] = "Amount cannot be negative"
		}
		if price.ExchangeRate != nil && *price.ExchangeRate <= 0 {
			details[fmt.Sprintf("prices[%d].exchange_rate", i)] = "Exchange rate must be positive"
		}
	}

	seen := make(map[string]bool, len(p.Sizes))
	sum := 0
	for i, s := range p.Sizes {
		if strings.TrimSpace(s.Name) == "" {
			details[fmt.Sprintf("sizes[%d].name", i)] = "Size name is required"
		} else if seen[s.Name] {
			details[fmt.Sprintf("sizes[%d].name", i)] = "Duplicate size " + s.Name
		}
		seen[s.Name] = true
		if s.Quantity < 0 {
			details[fmt.Sprintf("sizes[%d].quantity", i)] = "Size quantity cannot be negative"
		}
		sum += s.Quantity
	}

	if p.SizeRequirement == SizeRequirementMandatory {
		if len(p.Sizes) == 0 {
			details["sizes"] = "At least one size is required when sizes are mandatory"
		} else if sum != p.Quantity {
			details["sizes"] = fmt.Sprintf("Sum of size quantities (%d) must equal total quantity (%d)", sum, p.Quantity)
		}
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

type ProductRequest struct {
	Title           string          `json:"title" binding:"required"`
	Prices          []Price         `json:"prices" binding:"required,min=1"`
	Availability    Availability    `json:"availability" binding:"required"`
	Quantity        int             `json:"quantity" binding:"gte=0"`
	SizeRequirement SizeRequirement `json:"size_requirement"`
	Sizes           []Size          `json:"sizes"`
}

// ToProduct builds an unsaved product. The slug is derived from the title.
func (r *ProductRequest) ToProduct() *Product {
	req := r.SizeRequirement
	if req == "" {
		req = SizeRequirementNone
	}
	sizes := r.Sizes
	if sizes == nil {
		sizes = []Size{}
	}
	return &Product{
		Title:           strings.TrimSpace(r.Title),
		Slug:            Slugify(r.Title),
		Prices:          r.Prices,
		Availability:    r.Availability,
		Quantity:        r.Quantity,
		SizeRequirement: req,
		Sizes:           sizes,
	}
}

// AvailabilityView is the stock read model exposed to storefront clients.
type AvailabilityView struct {
	ProductID    string       `json:"product_id"`
	Availability Availability `json:"availability"`
	Quantity     int          `json:"quantity"`
	Sizes        []Size       `json:"sizes"`
}

func (p *Product) AvailabilityView() AvailabilityView {
	return AvailabilityView{
		ProductID:    p.ID,
		Availability: p.Availability,
		Quantity:     p.Quantity,
		Sizes:        p.Sizes,
	}
}
