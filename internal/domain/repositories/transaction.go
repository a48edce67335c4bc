package repositories

import "context"

// TxFn is the unit of work ExecTx runs. The context it receives
// carries the open transaction, which GetExecutor resolves inside the
// repositories.
type TxFn func(ctx context.Context) error

// TransactionManager runs a unit of work atomically: every repository
// call made through fn's context commits or rolls back together.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
