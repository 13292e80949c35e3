package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "invoices_stripe_invoice_id_key"}
	pqErr := &pq.Error{Code: "23505", Constraint: "user_subscriptions_stripe_setup_intent_id_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx any", err: fmt.Errorf("insert: %w", pgxErr), want: true},
		{name: "pgx named", err: pgxErr, constraint: "invoices_stripe_invoice_id_key", want: true},
		{name: "pgx other constraint", err: pgxErr, constraint: "other", want: false},
		{name: "pq", err: pqErr, want: true},
		{name: "pgx other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: invoices.stripe_invoice_id"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}
