package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront-svc/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const productColumns = "id, title, slug, prices, availability, quantity, size_requirement, created_at, updated_at"

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var prices []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &prices, &p.Availability, &p.Quantity, &p.SizeRequirement, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prices, &p.Prices); err != nil {
		return nil, fmt.Errorf("failed to decode prices for product %s: %w", p.ID, err)
	}
	p.Sizes = []models.Size{}
	return &p, nil
}

func (s *ProductStore) Get(ctx context.Context, id string) (*models.Product, error) {
	return s.getOne(ctx, s.db, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
}

func (s *ProductStore) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return s.getOne(ctx, s.db, "SELECT "+productColumns+" FROM products WHERE slug = $1", slug)
}

func (s *ProductStore) getOne(ctx context.Context, q DBTX, query string, arg any) (*models.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}

	sizes, err := s.loadSizes(ctx, q, []string{p.ID})
	if err != nil {
		return nil, err
	}
	if v, ok := sizes[p.ID]; ok {
		p.Sizes = v
	}
	return p, nil
}

// Load fetches the given products with their sizes, keyed by id. Unknown ids
// are absent from the result.
func (s *ProductStore) Load(ctx context.Context, q DBTX, ids []string) (map[string]*models.Product, error) {
	result := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, "SELECT "+productColumns+" FROM products WHERE id::text = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	if len(result) == 0 {
		return result, nil
	}

	found := make([]string, 0, len(result))
	for id := range result {
		found = append(found, id)
	}
	sizes, err := s.loadSizes(ctx, q, found)
	if err != nil {
		return nil, err
	}
	for id, v := range sizes {
		if p, ok := result[id]; ok {
			p.Sizes = v
		}
	}
	return result, nil
}

func (s *ProductStore) loadSizes(ctx context.Context, q DBTX, ids []string) (map[string][]models.Size, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT product_id, name, quantity FROM product_sizes WHERE product_id::text = ANY($1) ORDER BY product_id, position",
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load sizes: %w", err)
	}
	defer rows.Close()

	sizes := make(map[string][]models.Size)
	for rows.Next() {
		var productID string
		var size models.Size
		if err := rows.Scan(&productID, &size.Name, &size.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan size: %w", err)
		}
		sizes[productID] = append(sizes[productID], size)
	}
	return sizes, rows.Err()
}

// List returns products newest first. Sizes are included.
func (s *ProductStore) List(ctx context.Context, search string, limit, offset int) ([]*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		query += " WHERE title ILIKE $1 OR slug ILIKE $1"
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*models.Product{}
	ids := []string{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if len(ids) == 0 {
		return products, nil
	}
	sizes, err := s.loadSizes(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if v, ok := sizes[p.ID]; ok {
			p.Sizes = v
		}
	}
	return products, nil
}

// Create validates and inserts the product and its sizes in one transaction.
// A slug that is already taken gets a short random suffix.
func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.NewString()

	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("failed to encode prices: %w", err)
	}

	err = RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		slug, err := s.uniqueSlug(ctx, tx, p.Slug, p.ID)
		if err != nil {
			return err
		}
		p.Slug = slug

		err = tx.QueryRowContext(ctx,
			"INSERT INTO products (id, title, slug, prices, availability, quantity, size_requirement) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at",
			p.ID, p.Title, p.Slug, prices, p.Availability, p.Quantity, p.SizeRequirement,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		return insertSizes(ctx, tx, p.ID, p.Sizes)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product slug %q already exists: %w", p.Slug, models.ErrConflict)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update replaces every mutable field of the product, including its sizes.
func (s *ProductStore) Update(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("failed to encode prices: %w", err)
	}

	err = RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		slug, err := s.uniqueSlug(ctx, tx, p.Slug, p.ID)
		if err != nil {
			return err
		}
		p.Slug = slug

		err = tx.QueryRowContext(ctx,
			"UPDATE products SET title = $1, slug = $2, prices = $3, availability = $4, quantity = $5, size_requirement = $6, updated_at = CURRENT_TIMESTAMP WHERE id = $7 RETURNING created_at, updated_at",
			p.Title, p.Slug, prices, p.Availability, p.Quantity, p.SizeRequirement, p.ID,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM product_sizes WHERE product_id = $1", p.ID); err != nil {
			return err
		}
		return insertSizes(ctx, tx, p.ID, p.Sizes)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || isMalformedID(err) {
			return models.ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("product slug %q already exists: %w", p.Slug, models.ErrConflict)
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		if isMalformedID(err) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *ProductStore) uniqueSlug(ctx context.Context, q DBTX, slug, id string) (string, error) {
	if slug == "" {
		slug = "product"
	}
	var taken bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE slug = $1 AND id <> $2)",
		slug, id,
	).Scan(&taken)
	if err != nil {
		return "", err
	}
	if taken {
		slug = slug + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	}
	return slug, nil
}

func insertSizes(ctx context.Context, q DBTX, productID string, sizes []models.Size) error {
	for i, size := range sizes {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO product_sizes (product_id, position, name, quantity) VALUES ($1, $2, $3, $4)",
			productID, i, size.Name, size.Quantity,
		); err != nil {
			return err
		}
	}
	return nil
}
