package health

import (
	"context"
	"errors"
	"testing"
)

type stubReady struct{ ready bool }

func (s stubReady) IsReady() bool { return s.ready }

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(ctx context.Context) error { return s.err }

func TestLedgerChecker(t *testing.T) {
	if err := NewLedgerChecker(stubReady{ready: true}).HealthCheck(context.Background()); err != nil {
		t.Errorf("ready ledger reported unhealthy: %v", err)
	}
	if err := NewLedgerChecker(stubReady{ready: false}).HealthCheck(context.Background()); !errors.Is(err, ErrLedgerNotReady) {
		t.Errorf("down ledger error = %v, want ErrLedgerNotReady", err)
	}
}

func TestCheckAll(t *testing.T) {
	boom := errors.New("boom")

	if err := CheckAll(context.Background(), stubChecker{}, stubChecker{}); err != nil {
		t.Errorf("all healthy, got %v", err)
	}
	if err := CheckAll(context.Background(), stubChecker{}, stubChecker{err: boom}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if err := CheckAll(context.Background(), nil, stubChecker{}); err != nil {
		t.Errorf("nil checker tolerated, got %v", err)
	}
}
