package models

import (
	"time"

	"github.com/shopspring/decimal"

	"amlcore/internal/operations/folio"
	id "amlcore/pkg/domain"
)

// Classification is the regulatory risk tier assigned to an operation.
type Classification string

const (
	ClassificationNone       Classification = "none"
	ClassificationRelevant   Classification = "relevant"
	ClassificationUnusual    Classification = "unusual"
	ClassificationConcerning Classification = "concerning"
)

// IsValid reports whether c is a known tier.
func (c Classification) IsValid() bool {
	switch c {
	case ClassificationNone, ClassificationRelevant, ClassificationUnusual, ClassificationConcerning:
		return true
	}
	return false
}

// RateProvenance records where the exchange rate used for normalization came from.
type RateProvenance string

const (
	// RateProvenanceIdentity: the operation is already in the reporting currency.
	RateProvenanceIdentity RateProvenance = "identity"
	// RateProvenanceSupplier: fetched from the rate supplier for this request.
	RateProvenanceSupplier RateProvenance = "supplier"
	// RateProvenanceCache: a supplier rate still within the staleness bound.
	RateProvenanceCache RateProvenance = "cache"
	// RateProvenanceFallback: the configured default; must be reconciled later.
	RateProvenanceFallback RateProvenance = "fallback"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Counterparty identifies the other side of the transaction.
type Counterparty struct {
	Name    string
	Account string
	Bank    string
}

// Operation is a single recorded transaction of one of the owner's clients.
//
// EventDate is a civil date stored at UTC midnight; EventTime is "HH:MM".
// CreatedAt and UpdatedAt are system clocks in the jurisdiction time zone.
// The two are never compared with each other.
type Operation struct {
	ID       id.OperationID
	OwnerID  id.OwnerID
	ClientID id.ClientID
	Folio    folio.Folio

	EventDate time.Time
	EventTime string

	Amount          decimal.Decimal
	Currency        string
	AmountReporting decimal.Decimal
	ExchangeRate    decimal.Decimal
	RateProvenance  RateProvenance

	OperationType string
	PaymentMethod string
	Description   string
	Reference     string
	Counterparty  Counterparty
	Notes         string

	Classification Classification
	Alerts         []string

	Deleted        bool
	DeletedAt      *time.Time
	DeletedBy      id.OwnerID
	DeletionReason string

	CreatedAt time.Time
	CreatedBy id.OwnerID
	UpdatedAt time.Time
	UpdatedBy id.OwnerID
}

// HasAlerts is true iff the alert list is non-empty, whatever the tier.
func (o *Operation) HasAlerts() bool {
	return len(o.Alerts) > 0
}

// Status derives the lifecycle state from the soft-delete flag.
func (o *Operation) Status() Status {
	if o.Deleted {
		return StatusDeleted
	}
	return StatusActive
}

// CanEdit reports whether the state machine allows an edit.
func (o *Operation) CanEdit() bool {
	return !o.Deleted
}

// CanDelete reports whether the state machine allows a soft delete.
func (o *Operation) CanDelete() bool {
	return !o.Deleted
}

// ApplyFields overwrites the caller-editable fields.
func (o *Operation) ApplyFields(f Fields) {
	o.ClientID = f.ClientID
	o.EventDate = f.EventDate
	o.EventTime = f.EventTime
	o.OperationType = f.OperationType
	o.Amount = f.Amount
	o.Currency = f.Currency
	o.PaymentMethod = f.PaymentMethod
	o.Description = f.Description
	o.Reference = f.Reference
	o.Counterparty = f.Counterparty
	o.Notes = f.Notes
}

// ApplyNormalization stores the outcome of currency normalization.
func (o *Operation) ApplyNormalization(n Normalization) {
	o.AmountReporting = n.Amount
	o.ExchangeRate = n.Rate
	o.RateProvenance = n.Provenance
}

// ApplyClassification replaces the derived compliance fields.
func (o *Operation) ApplyClassification(r ClassificationResult) {
	o.Classification = r.Classification
	o.Alerts = append([]string(nil), r.Alerts...)
}

// MarkDeleted moves the operation to its terminal state.
func (o *Operation) MarkDeleted(by id.OwnerID, reason string, at time.Time) {
	o.Deleted = true
	o.DeletedAt = &at
	o.DeletedBy = by
	o.DeletionReason = reason
	o.UpdatedAt = at
	o.UpdatedBy = by
}

// Normalization is the reporting-currency view of an amount.
type Normalization struct {
	Amount     decimal.Decimal
	Rate       decimal.Decimal
	Provenance RateProvenance
}

// ClassificationResult is the deterministic output of the classification engine.
type ClassificationResult struct {
	Classification Classification
	Alerts         []string
}

// HasAlerts is true iff at least one rule fired.
func (r ClassificationResult) HasAlerts() bool {
	return len(r.Alerts) > 0
}

// HistoryEntry is the subset of an operation the frequency rule looks at.
type HistoryEntry struct {
	ID        id.OperationID
	ClientID  id.ClientID
	EventDate time.Time
	Deleted   bool
}

// DeletionConfirmation is returned by a successful soft delete.
type DeletionConfirmation struct {
	OperationID id.OperationID
	Folio       folio.Folio
	DeletedAt   time.Time
	Reason      string
}
