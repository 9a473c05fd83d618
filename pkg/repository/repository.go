package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/clinicbilling/pkg/db/option"
)

var (
	ErrNotFound  = errors.New("record_not_found")
	ErrDuplicate = errors.New("duplicate_record")
)

// Repository is a gorm-backed store for aggregates without version control.
// Invoices and reminders have their own stores; reference data uses this one.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	// Create returns ErrDuplicate when a unique key is violated.
	Create(ctx context.Context, resource *T) error
}
