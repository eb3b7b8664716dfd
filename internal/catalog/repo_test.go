package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestDeleteErrorMapsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "product_batches_product_id_fkey"}
	require.ErrorIs(t, deleteError(fk), ErrProductReferenced)
	require.ErrorIs(t, deleteError(fmt.Errorf("exec: %w", fk)), ErrProductReferenced)

	other := errors.New("connection reset")
	require.Equal(t, other, deleteError(other))
	dup := &pgconn.PgError{Code: "23505"}
	require.Equal(t, error(dup), deleteError(dup))
}
