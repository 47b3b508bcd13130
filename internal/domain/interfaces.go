package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the policy engines depend on them.

// Store is externally-provided durable key-value storage of JSON blobs.
// Get returns (nil, nil) when the key is absent. No transactional
// guarantees across keys are assumed or required.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Fixed storage keys for persisted policy state.
const (
	KeySpendLimits     = "policy/limits"
	KeySpendTracking   = "policy/tracking"
	KeyRequests        = "policy/requests"
	KeyApprovalConfig  = "policy/approval_config"
	KeyAutoSpendConfig = "policy/autospend_config"
)

// TransferExecutor submits a stable-token transfer on behalf of the policy
// engine. Wire-level transaction construction is entirely its concern;
// it returns a transaction identifier or an error.
type TransferExecutor interface {
	Transfer(ctx context.Context, from, to string, amount int64) (txHash string, err error)
}

// SubAccountProvider exposes current sub-account records, read-only.
type SubAccountProvider interface {
	SubAccount(id string) (*SubAccount, error)
}
