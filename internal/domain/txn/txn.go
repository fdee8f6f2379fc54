// Package txn defines the transactional boundary used by every multi-step
// engine operation.
package txn

import "context"

// Transactor runs fn inside a single atomic transaction. Repository calls made
// with the context passed to fn join that transaction. If fn returns an error
// every write performed inside it is discarded. Calling WithTransaction with a
// context that is already transactional runs fn in the existing transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
