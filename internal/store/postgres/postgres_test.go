package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"storekeep/backend/internal/store"
)

func TestIsRetryableTxError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "wrapped", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "domain error", err: store.ErrInsufficientStock, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableTxError(tt.err))
		})
	}
}

func TestMapWriteError(t *testing.T) {
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23505"}), store.ErrDuplicate)
	assert.ErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23503"}), store.ErrNotFound)
	boom := errors.New("boom")
	assert.Equal(t, boom, mapWriteError(boom))
}
