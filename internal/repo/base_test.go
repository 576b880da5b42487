package repo

import (
	"context"
	"testing"

	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
)

type ctxKey struct{}

func TestNewBaseStoresConnection(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil || withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	//nolint:staticcheck // nil context is part of the contract
	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBindSwapsHandle(t *testing.T) {
	db := dbtest.Open(t)
	other := dbtest.Open(t)
	base := NewBase(db)

	if base.Bind(nil).db != db {
		t.Fatalf("nil tx should keep the original handle")
	}
	if base.Bind(other).db != other {
		t.Fatalf("expected bound handle")
	}
}

func TestForUpdateSkipsLockingOnSQLite(t *testing.T) {
	base := NewBase(dbtest.Open(t))
	stmt := base.ForUpdate(context.Background()).Statement
	if _, ok := stmt.Clauses[clause.Locking{}.Name()]; ok {
		t.Fatalf("sqlite handle should not carry a locking clause")
	}
}
