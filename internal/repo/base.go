package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a Base that issues statements on tx. A nil tx keeps the
// current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// ForUpdate is DB with a row lock on dialects that support SELECT ... FOR
// UPDATE. SQLite serializes writers itself and rejects the clause.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	conn := b.DB(ctx)
	if conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
		return conn.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return conn
}
