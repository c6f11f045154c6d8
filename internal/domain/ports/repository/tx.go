package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks a non-transactional repository call.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the transaction handle to repositories via `qx`.
//
// Repositories accept `qx Tx` and detect a live transaction
// implementation-side (SELECT ... FOR UPDATE etc.); they must gracefully
// accept nil for the non-transactional path. The concrete type of `qx` is
// infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
