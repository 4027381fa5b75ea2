package db

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("payment request not found")
	ErrDuplicateReference = errors.New("duplicate payment reference")
)

// Store persists payment requests. Status changes only happen through
// ExpirePending and MarkVerified, both conditional on the record still being
// pending, so a terminal record is never moved again.
type Store interface {
	Create(ctx context.Context, p *PaymentRequest) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	FindByReference(ctx context.Context, reference string) (*PaymentRequest, error)
	// ListByStatus returns requests oldest first; limit <= 0 means no limit.
	ListByStatus(ctx context.Context, status Status, limit int) ([]PaymentRequest, error)
	// ExpirePending cancels every pending request created before cutoff and
	// returns how many were cancelled.
	ExpirePending(ctx context.Context, cutoff, at time.Time) (int64, error)
	// MarkVerified moves reference from pending to verified and records the
	// ledger signature. It returns false when the request was not pending.
	MarkVerified(ctx context.Context, reference, signature string, at time.Time) (bool, error)
	Ping(ctx context.Context) error
}
