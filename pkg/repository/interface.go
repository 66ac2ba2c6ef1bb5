package repository

import (
	"context"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
	"github.com/ammar0144/orm4go/pkg/validation"
)

// Transactor runs a function on one database transaction. *db.Manager implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(*db.Conn) error) error
}

// Repository is the record API consumed by controllers and batch jobs
type Repository interface {
	// Queries (Read Operations - Cache-First for cacheable tables)
	Find(ctx context.Context, table string, id any) (*record.Record, error)
	FindBy(ctx context.Context, table, attr string, value any) (*record.Record, error)
	Where(ctx context.Context, table, clause string, args ...any) ([]*record.Record, error)
	All(ctx context.Context, table string) ([]*record.Record, error)
	First(ctx context.Context, table, clause string, args ...any) (*record.Record, error)
	Count(ctx context.Context, table, clause string, args ...any) (int64, error)
	Query(table string) *Query

	// Commands (Write Operations - invalidate the touched cache groups)
	Save(ctx context.Context, r *record.Record) (SaveResult, error)
	SaveIt(ctx context.Context, r *record.Record) (SaveResult, error)
	Delete(ctx context.Context, r *record.Record) error
	DeleteCascade(ctx context.Context, r *record.Record) error

	// Associations
	Add(ctx context.Context, parent, child *record.Record, override *meta.Override) error
	Remove(ctx context.Context, parent, child *record.Record, override *meta.Override) error
	GetAll(ctx context.Context, parent *record.Record, target string, override *meta.Override) ([]*record.Record, error)
	Parent(ctx context.Context, child *record.Record, parentTable string) (*record.Record, error)
	Include(ctx context.Context, records []*record.Record, targets ...string) error

	Validate(r *record.Record) validation.Errors
	Transaction(ctx context.Context, fn func(tx *Session) error) error
}

var _ Repository = (*Session)(nil)
