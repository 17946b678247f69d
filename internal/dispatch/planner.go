package dispatch

import (
	"context"
	"fmt"
	"sort"

	rfqrepo "procurement_backend/internal/rfq/repository"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/platform/logger"

	"github.com/google/uuid"
)

// LineItemSource provides the line items the planner fans out over.
type LineItemSource interface {
	ListLineItems(ctx context.Context, rfqID uuid.UUID) ([]rfqrepo.LineItem, error)
}

// SupplierDirectory resolves the eligible supplier set per category.
type SupplierDirectory interface {
	ListEligible(ctx context.Context, category string) ([]suprepo.Supplier, error)
}

// FanOutStore persists the planned task set and quote placeholders.
type FanOutStore interface {
	InsertFanOut(ctx context.Context, rfqID uuid.UUID, tasks []TaskSeed, slots []QuoteSlotSeed) (int, error)
}

// Planner computes the notification task set for an RFQ. Planning is
// idempotent: the store skips tuples that already exist, so the planner can
// be re-run after a partial failure without duplicating tasks or slots.
type Planner struct {
	items     LineItemSource
	directory SupplierDirectory
	store     FanOutStore
	log       *logger.Logger
}

// NewPlanner creates a fan-out planner.
func NewPlanner(items LineItemSource, directory SupplierDirectory, store FanOutStore, log *logger.Logger) *Planner {
	return &Planner{items: items, directory: directory, store: store, log: log}
}

// Plan fans an RFQ out to one task per (supplier, category) and reserves one
// quote placeholder per (supplier, line item), all in a single transaction.
// Returns how many tasks were newly created.
func (p *Planner) Plan(ctx context.Context, rfqID uuid.UUID) (int, error) {
	items, err := p.items.ListLineItems(ctx, rfqID)
	if err != nil {
		return 0, fmt.Errorf("list line items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	itemsByCategory := make(map[string][]rfqrepo.LineItem)
	for _, it := range items {
		cat := it.Category()
		itemsByCategory[cat] = append(itemsByCategory[cat], it)
	}

	categories := make([]string, 0, len(itemsByCategory))
	for cat := range itemsByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var seeds []TaskSeed
	var slots []QuoteSlotSeed
	seenSlot := make(map[string]bool)

	for _, cat := range categories {
		suppliers, err := p.directory.ListEligible(ctx, cat)
		if err != nil {
			return 0, fmt.Errorf("list eligible suppliers for %q: %w", cat, err)
		}
		if len(suppliers) == 0 && p.log != nil {
			p.log.Warn("no eligible suppliers for category", "rfq_id", rfqID, "category", cat)
		}

		for _, sup := range suppliers {
			seeds = append(seeds, TaskSeed{SupplierID: sup.ID, Category: cat})
			for _, it := range itemsByCategory[cat] {
				key := sup.ID.String() + "/" + it.ID.String()
				if seenSlot[key] {
					continue
				}
				seenSlot[key] = true
				slots = append(slots, QuoteSlotSeed{SupplierID: sup.ID, LineItemID: it.ID})
			}
		}
	}

	if len(seeds) == 0 {
		return 0, nil
	}

	created, err := p.store.InsertFanOut(ctx, rfqID, seeds, slots)
	if err != nil {
		return 0, fmt.Errorf("persist fan-out: %w", err)
	}

	if p.log != nil {
		p.log.Info("fan-out planned", "rfq_id", rfqID, "categories", len(categories),
			"tasks_created", created, "quote_slots", len(slots))
	}
	return created, nil
}
