package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	q := Conn(context.Background(), nil)
	if q == nil {
		t.Fatal("expected the pool to be returned as a Querier")
	}
}

func TestWithTx_ReusesEnclosingTx(t *testing.T) {
	// A context that already carries a tx must not touch the pool.
	ctx := context.WithValue(context.Background(), txKey, pgx.Tx(fakeTx{}))
	called := false
	err := WithTx(ctx, nil, func(inner context.Context) error {
		called = true
		if TxFromContext(inner) == nil {
			t.Error("expected tx to be visible to fn")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("fn was not called")
	}
}
