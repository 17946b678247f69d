package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type slotKey struct {
	supplier, rfq, lineItem uuid.UUID
}

// fakeQuoteDB behaves like the quotes table: one row per
// (supplier, rfq, line item), conflicting inserts return no row.
type fakeQuoteDB struct {
	mu    sync.Mutex
	slots map[slotKey]Quote
}

func newFakeQuoteDB() *fakeQuoteDB {
	return &fakeQuoteDB{slots: map[slotKey]Quote{}}
}

func (db *fakeQuoteDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case strings.HasPrefix(strings.TrimSpace(sql), "INSERT INTO quotes"):
		key := slotKey{rfq: args[0].(uuid.UUID), supplier: args[1].(uuid.UUID), lineItem: args[2].(uuid.UUID)}
		if _, exists := db.slots[key]; exists {
			return errRow{pgx.ErrNoRows}
		}
		now := time.Now()
		q := Quote{
			ID: uuid.New(), RFQID: key.rfq, SupplierID: key.supplier, LineItemID: key.lineItem,
			Status: StatusPending, CreatedAt: now, UpdatedAt: now,
		}
		db.slots[key] = q
		return quoteRow{q}

	case strings.Contains(sql, "WHERE supplier_id = $1 AND rfq_id = $2 AND line_item_id = $3"):
		key := slotKey{supplier: args[0].(uuid.UUID), rfq: args[1].(uuid.UUID), lineItem: args[2].(uuid.UUID)}
		q, exists := db.slots[key]
		if !exists {
			return errRow{pgx.ErrNoRows}
		}
		return quoteRow{q}
	}
	return errRow{fmt.Errorf("unexpected query: %s", sql)}
}

func (db *fakeQuoteDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

type quoteRow struct {
	q Quote
}

func (r quoteRow) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = r.q.ID
	*dest[1].(*uuid.UUID) = r.q.RFQID
	*dest[2].(*uuid.UUID) = r.q.SupplierID
	*dest[3].(*uuid.UUID) = r.q.LineItemID
	*dest[4].(*string) = r.q.Status
	*dest[5].(*json.RawMessage) = r.q.Payload
	*dest[6].(*string) = r.q.PaymentTerms
	*dest[7].(**time.Time) = r.q.SubmittedAt
	*dest[8].(**time.Time) = r.q.DecidedAt
	*dest[9].(*time.Time) = r.q.CreatedAt
	*dest[10].(*time.Time) = r.q.UpdatedAt
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error { return r.err }

func TestEnsureSlotConflictReturnsWinnersRow(t *testing.T) {
	db := newFakeQuoteDB()
	repo := New(db)
	supplierID, rfqID, lineItemID := uuid.New(), uuid.New(), uuid.New()

	winner, err := repo.EnsureSlot(context.Background(), supplierID, rfqID, lineItemID)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}

	loser, err := repo.EnsureSlot(context.Background(), supplierID, rfqID, lineItemID)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if loser.ID != winner.ID {
		t.Fatalf("loser must read the winner's row, got %s vs %s", loser.ID, winner.ID)
	}
	if len(db.slots) != 1 {
		t.Fatalf("expected exactly one quote row, got %d", len(db.slots))
	}
}

func TestEnsureSlotConcurrentCreatesAtMostOneRow(t *testing.T) {
	db := newFakeQuoteDB()
	repo := New(db)
	supplierID, rfqID, lineItemID := uuid.New(), uuid.New(), uuid.New()

	const callers = 8
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := repo.EnsureSlot(context.Background(), supplierID, rfqID, lineItemID)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = q.ID
		}(i)
	}
	wg.Wait()

	if len(db.slots) != 1 {
		t.Fatalf("expected exactly one quote row, got %d", len(db.slots))
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got a different row: %s vs %s", i, ids[i], ids[0])
		}
	}
}
