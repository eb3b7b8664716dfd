package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestDocumentTxOptionsUseReadCommitted(t *testing.T) {
	// Row locks serialize concurrent documents; REPEATABLE READ on top of
	// them aborts lock waiters with 40001 instead of letting them proceed.
	require.Equal(t, pgx.ReadCommitted, DocumentTxOptions().IsoLevel)
}
