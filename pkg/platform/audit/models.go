package audit

import (
	"time"

	"github.com/shopspring/decimal"

	id "amlcore/pkg/domain"
)

// Action names the mutation an entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
)

// IsValid reports whether a is one of the recorded mutation actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// Subject is the snapshot of the operation taken at the time of the action.
type Subject struct {
	OperationID id.OperationID
	ClientID    id.ClientID
	Folio       string
	Amount      decimal.Decimal
	Currency    string
}

// Provenance describes where the request came from.
type Provenance struct {
	ClientIP  string
	UserAgent string
	Device    string
	RequestID string
}

// Entry is an append-only record of one mutating action. Entries are never
// updated or deleted once written.
type Entry struct {
	ID          id.AuditEntryID
	ActorID     id.OwnerID
	OperationID id.OperationID
	ClientID    id.ClientID
	Action      Action
	Reason      string
	Folio       string
	Amount      decimal.Decimal
	Currency    string
	Timestamp   time.Time
	ClientIP    string
	UserAgent   string
	Device      string
	RequestID   string
	// ContentHash is the hex sha256 of the entry's canonical JSON form.
	ContentHash string
}

// Result reports the outcome of a Record call. A failed Result never fails
// the mutation that produced it.
type Result struct {
	EntryID   id.AuditEntryID
	Persisted bool
	// Forwarded means the entry was handed to the forwarder, not that the
	// archive acknowledged it.
	Forwarded bool
	Err       error
}
