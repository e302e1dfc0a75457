// Package health provides readiness checks for the service's external
// dependencies.
package health

import (
	"context"
	"database/sql"
	"errors"
)

// ErrLedgerNotReady is returned when the settlement ledger connection is down.
var ErrLedgerNotReady = errors.New("settlement ledger not ready")

// Checker reports whether one dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// DBChecker implements health checking for SQL databases.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck performs a health check on the database by executing a simple query.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// readyReporter matches the settlement ledger client.
type readyReporter interface {
	IsReady() bool
}

// LedgerChecker implements health checking for the settlement ledger.
type LedgerChecker struct {
	ledger readyReporter
}

// NewLedgerChecker creates a new ledger health checker.
func NewLedgerChecker(ledger readyReporter) *LedgerChecker {
	return &LedgerChecker{ledger: ledger}
}

// HealthCheck reports an error when the ledger is unreachable.
func (l *LedgerChecker) HealthCheck(ctx context.Context) error {
	if !l.ledger.IsReady() {
		return ErrLedgerNotReady
	}
	return nil
}

// CheckAll runs every checker and returns the first failure.
func CheckAll(ctx context.Context, checkers ...Checker) error {
	for _, c := range checkers {
		if c == nil {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}
