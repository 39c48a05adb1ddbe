// Package fulfillment decides whether pending orders can be accepted and
// drives their status transitions together with the matching stock changes.
package fulfillment

import (
	"fmt"

	"storefront-svc/models"
)

type Result struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
	// StockShortage is set when at least one issue is a lack of stock rather
	// than a malformed or unknown line item.
	StockShortage bool `json:"-"`
}

type demandKey struct {
	productID string
	size      string
}

// Validate checks the requested items against a product snapshot and
// collects every problem found. It has no side effects.
func Validate(items []models.ItemRef, products map[string]*models.Product) Result {
	res := Result{Issues: []string{}}
	if len(items) == 0 {
		res.Issues = append(res.Issues, "Order has no products")
		return res
	}

	// Identical (product, size) pairs are summed so split lines cannot
	// each pass against the same stock.
	demand := make(map[demandKey]int)
	totals := make(map[string]int)
	var order []demandKey

	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			res.Issues = append(res.Issues, fmt.Sprintf("Product %s not found", it.ProductID))
			continue
		}
		if it.Quantity <= 0 {
			res.Issues = append(res.Issues, fmt.Sprintf("%s: quantity must be positive, got %d", p.Title, it.Quantity))
			continue
		}
		k := demandKey{productID: it.ProductID}
		if p.SizeRequirement == models.SizeRequirementMandatory {
			k.size = it.Size
		}
		if _, seen := demand[k]; !seen {
			order = append(order, k)
		}
		demand[k] += it.Quantity
		totals[it.ProductID] += it.Quantity
	}

	checked := make(map[string]bool)
	for _, k := range order {
		p := products[k.productID]
		qty := demand[k]

		if p.Availability != models.AvailabilityInStock {
			if !checked[p.ID] {
				res.Issues = append(res.Issues, fmt.Sprintf("%s is not in stock (%s)", p.Title, p.Availability))
				res.StockShortage = true
				checked[p.ID] = true
			}
			continue
		}

		if p.SizeRequirement == models.SizeRequirementMandatory {
			if k.size == "" {
				res.Issues = append(res.Issues, fmt.Sprintf("%s requires a size", p.Title))
				continue
			}
			available, ok := p.SizeQuantity(k.size)
			if !ok {
				res.Issues = append(res.Issues, fmt.Sprintf("%s has no size %s", p.Title, k.size))
				continue
			}
			if qty > available {
				res.Issues = append(res.Issues, fmt.Sprintf("%s (size %s): requested %d, only %d available", p.Title, k.size, qty, available))
				res.StockShortage = true
			}
			continue
		}

		if checked[p.ID] {
			continue
		}
		checked[p.ID] = true
		if total := totals[p.ID]; total > p.Quantity {
			res.Issues = append(res.Issues, fmt.Sprintf("%s: requested %d, only %d available", p.Title, total, p.Quantity))
			res.StockShortage = true
		}
	}

	res.IsValid = len(res.Issues) == 0
	return res
}
