package corekit

import "context"

// PaperStore is the read/write collaborator for paper bytes, metadata, and
// per-stage results. The core treats it as opaque storage; it
// never prescribes a schema beyond the stage payload shape each agent
// produces.
type PaperStore interface {
	LoadBytes(ctx context.Context, paperID string) ([]byte, error)
	LoadMetadata(ctx context.Context, paperID string) (map[string]interface{}, error)
	// SaveResults is called exactly once per successful stage per request
	// and must be idempotent on (paperID, stage).
	SaveResults(ctx context.Context, paperID string, stage StageKind, payload interface{}) error
}

// CreditLedger is the outbound billing collaborator. The core
// never debits directly: it reserves before dispatch, commits on success,
// releases on failure.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, stage StageKind, amount float64) (reservationID string, err error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}
