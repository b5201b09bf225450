package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped", fmt.Errorf("load: %w", &pgconn.PgError{Code: "08001"}), true},
		{"plain", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	err := classify("profile", "Load", fmt.Errorf("load: %w", &pgconn.PgError{Code: "57P01"}))
	assert.True(t, shared.IsExternalService(err))

	err = classify("profile", "Load", ErrConnectionClosed)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	plain := errors.New("bad column")
	assert.Same(t, plain, classify("profile", "Load", plain))
}

func TestPoolCollector(t *testing.T) {
	pcfg, err := DefaultConfig("postgres://matcher@127.0.0.1:1/matching").PoolConfig()
	require.NoError(t, err)
	pcfg.MinConns = 0
	pcfg.MaxConns = 4

	// The pool connects lazily, so no server is needed.
	pool, err := pgxpool.NewWithConfig(context.Background(), pcfg)
	require.NoError(t, err)
	conn := &Connection{pool: pool}
	t.Cleanup(conn.Close)

	c := NewPoolCollector(conn, "test")
	assert.Equal(t, 5, testutil.CollectAndCount(c))

	expected := `
# HELP test_db_pool_max_conns Configured pool size.
# TYPE test_db_pool_max_conns gauge
test_db_pool_max_conns 4
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "test_db_pool_max_conns"))

	conn.Close()
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
