package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithinTx_NoPool(t *testing.T) {
	called := false
	err := WithinTx(context.Background(), nil, func(context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without a pool")
	}
	if called {
		t.Error("fn should not run without a transaction")
	}
}

func TestWithinTx_PropagatesError(t *testing.T) {
	// No pool needed: a transaction already in the context is reused.
	ctx := context.WithValue(context.Background(), DBTxKey, fakeTx{})
	want := errors.New("boom")
	err := WithinTx(ctx, nil, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
