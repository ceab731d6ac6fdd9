package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows List. Zero values mean "no constraint".
type Filter struct {
	StoreID      string
	CategorySlug string
	Query        string
	Limit        int
	Offset       int
}

const productColumns = `
	id, store_id, category_id, subcategory_id, name, description,
	images, tags, price, inventory,
	length_cm, width_cm, height_cm, weight_g,
	created_at, updated_at
`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	var subcategoryID sql.NullString
	var length, width, height, weight sql.NullFloat64

	err := row.Scan(
		&p.ID, &p.StoreID, &p.CategoryID, &subcategoryID, &p.Name, &p.Description,
		pq.Array(&p.Images), pq.Array(&p.Tags), &p.Price, &p.Inventory,
		&length, &width, &height, &weight,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if subcategoryID.Valid {
		p.SubcategoryID = &subcategoryID.String
	}
	p.Dimensions = domain.Dimensions{
		LengthCm: nullFloat(length),
		WidthCm:  nullFloat(width),
		HeightCm: nullFloat(height),
		WeightG:  nullFloat(weight),
	}
	return p, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func (r *Repository) List(ctx context.Context, f Filter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	var args []any

	if f.StoreID != "" {
		args = append(args, f.StoreID)
		query += fmt.Sprintf(" AND store_id = $%d", len(args))
	}
	if f.CategorySlug != "" {
		args = append(args, f.CategorySlug)
		query += fmt.Sprintf(" AND category_id IN (SELECT id FROM categories WHERE slug = $%d)", len(args))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, store_id, category_id, subcategory_id, name, description,
			images, tags, price, inventory,
			length_cm, width_cm, height_cm, weight_g,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, p.ID, p.StoreID, p.CategoryID, p.SubcategoryID, p.Name, p.Description,
		pq.Array(p.Images), pq.Array(p.Tags), p.Price, p.Inventory,
		p.Dimensions.LengthCm, p.Dimensions.WidthCm, p.Dimensions.HeightCm, p.Dimensions.WeightG,
		now)
	return err
}

// Update overwrites the mutable catalog fields. Returns the updated product,
// or nil when no row matched the product and store ids.
func (r *Repository) Update(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET category_id = $3, subcategory_id = $4, name = $5, description = $6,
		    images = $7, tags = $8, price = $9, inventory = $10,
		    length_cm = $11, width_cm = $12, height_cm = $13, weight_g = $14,
		    updated_at = NOW()
		WHERE id = $1 AND store_id = $2
	`, p.ID, p.StoreID, p.CategoryID, p.SubcategoryID, p.Name, p.Description,
		pq.Array(p.Images), pq.Array(p.Tags), p.Price, p.Inventory,
		p.Dimensions.LengthCm, p.Dimensions.WidthCm, p.Dimensions.HeightCm, p.Dimensions.WeightG)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, p.ID)
}

func (r *Repository) Delete(ctx context.Context, storeID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1 AND store_id = $2
	`, id, storeID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (r *Repository) ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category_id, name, slug
		FROM subcategories
		WHERE category_id = $1
		ORDER BY name
	`, categoryID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	subcategories := []domain.Subcategory{}
	for rows.Next() {
		var s domain.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name, &s.Slug); err != nil {
			return nil, err
		}
		subcategories = append(subcategories, s)
	}

	return subcategories, rows.Err()
}
