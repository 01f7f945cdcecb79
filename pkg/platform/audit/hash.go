package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// canonicalEntry is the hashed view of an Entry. Field names are part of the
// hash format; renaming one invalidates every stored hash.
type canonicalEntry struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	OperationID string `json:"operation_id"`
	ClientID    string `json:"client_id"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	Folio       string `json:"folio"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Timestamp   string `json:"timestamp"`
	ClientIP    string `json:"client_ip"`
	UserAgent   string `json:"user_agent"`
	Device      string `json:"device"`
	RequestID   string `json:"request_id"`
}

// ContentHash computes the hex sha256 of the RFC 8785 canonical JSON of the
// entry's immutable fields.
func ContentHash(e Entry) (string, error) {
	raw, err := json.Marshal(canonicalEntry{
		ID:          e.ID.String(),
		ActorID:     e.ActorID.String(),
		OperationID: e.OperationID.String(),
		ClientID:    e.ClientID.String(),
		Action:      string(e.Action),
		Reason:      e.Reason,
		Folio:       e.Folio,
		Amount:      e.Amount.StringFixed(2),
		Currency:    e.Currency,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		ClientIP:    e.ClientIP,
		UserAgent:   e.UserAgent,
		Device:      e.Device,
		RequestID:   e.RequestID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the entry's stored hash matches its content.
func Verify(e Entry) bool {
	h, err := ContentHash(e)
	if err != nil {
		return false
	}
	return h == e.ContentHash
}
