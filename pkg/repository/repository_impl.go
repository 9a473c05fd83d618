package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/option"
	"gorm.io/gorm"
)

type gormStore[T any] struct {
	conn *gorm.DB
}

func New[T any](conn *gorm.DB) Repository[T] {
	return &gormStore[T]{conn: conn}
}

func (s *gormStore[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := s.scope(ctx, query, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *gormStore[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.scope(ctx, query, opts).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func (s *gormStore[T]) Create(ctx context.Context, resource *T) error {
	err := s.conn.WithContext(ctx).Create(resource).Error
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// scope applies the zero-value-skipping struct filter before the options so
// options can only narrow the result.
func (s *gormStore[T]) scope(ctx context.Context, query *T, opts []option.QueryOption) *gorm.DB {
	tx := s.conn.WithContext(ctx).Model(new(T))
	if query != nil {
		tx = tx.Where(query)
	}
	for _, opt := range opts {
		tx = opt.Apply(tx)
	}
	return tx
}
