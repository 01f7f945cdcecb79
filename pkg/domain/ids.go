package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "amlcore/pkg/domain-errors"
)

// Typed identifiers. They share a representation but are distinct types so an
// owner ID can never be passed where an operation ID is expected.
type (
	// OwnerID identifies the account owner (tenant) that records operations.
	OwnerID uuid.UUID
	// ClientID identifies the owner's customer an operation belongs to.
	ClientID uuid.UUID
	// OperationID is the internal, opaque identity of an operation.
	OperationID uuid.UUID
	// AuditEntryID identifies one audit entry.
	AuditEntryID uuid.UUID
)

func (id OwnerID) String() string      { return uuid.UUID(id).String() }
func (id OwnerID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) String() string     { return uuid.UUID(id).String() }
func (id ClientID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id OperationID) String() string  { return uuid.UUID(id).String() }
func (id OperationID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewOperationID returns a random operation ID.
func NewOperationID() OperationID { return OperationID(uuid.New()) }

// NewAuditEntryID returns a random audit entry ID.
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// ParseOwnerID parses an owner ID at a trust boundary.
func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s, "owner ID")
	return OwnerID(u), err
}

// ParseClientID parses a client ID at a trust boundary.
func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s, "client ID")
	return ClientID(u), err
}

// ParseOperationID parses an operation ID at a trust boundary.
func ParseOperationID(s string) (OperationID, error) {
	u, err := parseUUID(s, "operation ID")
	return OperationID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is malformed")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is malformed")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is malformed")
	}
	return u, nil
}
