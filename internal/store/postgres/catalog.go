package postgres

import (
	"context"
	"database/sql"
	"errors"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
)

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	var category sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &category, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.Category = category.String
	return &p, nil
}
