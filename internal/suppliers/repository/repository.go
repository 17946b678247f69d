// Package repository provides database access to the supplier directory.
package repository

import (
	"context"
	"errors"
	"time"

	"procurement_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Supplier is the database model for a supplier directory entry.
type Supplier struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	ContactPhone string    `db:"contact_phone"`
	ContactEmail string    `db:"contact_email"`
	Categories   []string  `db:"categories"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Repository provides database operations for suppliers.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new suppliers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns one supplier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, contact_phone, contact_email, categories, active, created_at, updated_at
		 FROM suppliers WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.ContactPhone, &s.ContactEmail, &s.Categories, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("supplier not found")
		}
		return nil, err
	}
	return &s, nil
}

// ListEligible returns active suppliers covering the given category path.
// A supplier qualifies when its directory lists either the full major/minor
// path or the major category alone.
func (r *Repository) ListEligible(ctx context.Context, category string) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, contact_phone, contact_email, categories, active, created_at, updated_at
		 FROM suppliers
		 WHERE active
		   AND ($1 = ANY(categories) OR split_part($1, '/', 1) = ANY(categories))
		 ORDER BY name`,
		category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactPhone, &s.ContactEmail, &s.Categories, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Create inserts a supplier directory entry.
func (r *Repository) Create(ctx context.Context, s *Supplier) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO suppliers (name, contact_phone, contact_email, categories, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		s.Name, s.ContactPhone, s.ContactEmail, s.Categories, s.Active,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}
