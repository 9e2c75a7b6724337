package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: gorm.ErrDuplicatedKey, want: true},
		{err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{err: &pgconn.PgError{Code: "23503"}, want: false},
		{err: errors.New("Error 1062: Duplicate entry"), want: true},
		{err: errors.New("UNIQUE constraint failed: payment_order_links.payment_intent_id"), want: true},
		{err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := Dialect(Config{Type: "sqlite", Name: ":memory:"}); err != nil {
		t.Fatalf("sqlite dialect: %v", err)
	}
}
