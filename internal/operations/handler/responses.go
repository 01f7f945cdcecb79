package handler

import (
	"time"

	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	"amlcore/pkg/platform/audit"
)

// OperationResponse is the HTTP representation of an operation.
type OperationResponse struct {
	ID              string                `json:"id"`
	Folio           string                `json:"folio"`
	ClientID        string                `json:"client_id"`
	EventDate       string                `json:"event_date"`
	EventTime       string                `json:"event_time"`
	OperationType   string                `json:"operation_type"`
	Amount          string                `json:"amount"`
	Currency        string                `json:"currency"`
	AmountReporting string                `json:"amount_reporting"`
	ExchangeRate    string                `json:"exchange_rate"`
	RateProvenance  string                `json:"rate_provenance"`
	PaymentMethod   string                `json:"payment_method,omitempty"`
	Description     string                `json:"description,omitempty"`
	Reference       string                `json:"reference,omitempty"`
	Counterparty    *CounterpartyResponse `json:"counterparty,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	Classification  string                `json:"classification"`
	Alerts          []string              `json:"alerts"`
	HasAlerts       bool                  `json:"has_alerts"`
	Status          string                `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	DeletedAt       *time.Time            `json:"deleted_at,omitempty"`
}

type CounterpartyResponse struct {
	Name    string `json:"name,omitempty"`
	Account string `json:"account,omitempty"`
	Bank    string `json:"bank,omitempty"`
}

// ListResponse is the HTTP response for GET /operations.
type ListResponse struct {
	Operations []*OperationResponse `json:"operations"`
	Count      int                  `json:"count"`
}

// DeleteResponse confirms a soft delete.
type DeleteResponse struct {
	ID        string    `json:"id"`
	Folio     string    `json:"folio"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	DeletedAt time.Time `json:"deleted_at"`
}

// AuditEntryResponse is one entry of an operation's audit trail.
type AuditEntryResponse struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	ActorID     string    `json:"actor_id"`
	Reason      string    `json:"reason"`
	Folio       string    `json:"folio"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
	ClientIP    string    `json:"client_ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Device      string    `json:"device,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	ContentHash string    `json:"content_hash"`
	// Verified reports whether the stored hash still matches the entry.
	Verified bool `json:"verified"`
}

type AuditTrailResponse struct {
	OperationID string                `json:"operation_id"`
	Entries     []*AuditEntryResponse `json:"entries"`
}

// FromOperation converts a domain operation to its HTTP response.
func FromOperation(op *models.Operation) *OperationResponse {
	alerts := op.Alerts
	if alerts == nil {
		alerts = []string{}
	}
	resp := &OperationResponse{
		ID:              op.ID.String(),
		Folio:           op.Folio.String(),
		ClientID:        op.ClientID.String(),
		EventDate:       op.EventDate.Format(models.EventDateLayout),
		EventTime:       op.EventTime,
		OperationType:   op.OperationType,
		Amount:          op.Amount.StringFixed(2),
		Currency:        op.Currency,
		AmountReporting: op.AmountReporting.Truncate(2).StringFixed(2),
		ExchangeRate:    op.ExchangeRate.String(),
		RateProvenance:  string(op.RateProvenance),
		PaymentMethod:   op.PaymentMethod,
		Description:     op.Description,
		Reference:       op.Reference,
		Notes:           op.Notes,
		Classification:  string(op.Classification),
		Alerts:          alerts,
		HasAlerts:       op.HasAlerts(),
		Status:          string(op.Status()),
		CreatedAt:       op.CreatedAt,
		UpdatedAt:       op.UpdatedAt,
		DeletedAt:       op.DeletedAt,
	}
	if op.Counterparty != (models.Counterparty{}) {
		resp.Counterparty = &CounterpartyResponse{
			Name:    op.Counterparty.Name,
			Account: op.Counterparty.Account,
			Bank:    op.Counterparty.Bank,
		}
	}
	return resp
}

// FromOperations converts a page of operations.
func FromOperations(ops []*models.Operation) *ListResponse {
	out := make([]*OperationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, FromOperation(op))
	}
	return &ListResponse{Operations: out, Count: len(out)}
}

// FromConfirmation converts a soft-delete confirmation.
func FromConfirmation(c *models.DeletionConfirmation) *DeleteResponse {
	return &DeleteResponse{
		ID:        c.OperationID.String(),
		Folio:     c.Folio.String(),
		Status:    string(models.StatusDeleted),
		Reason:    c.Reason,
		DeletedAt: c.DeletedAt,
	}
}

// FromAuditTrail converts an operation's audit entries.
func FromAuditTrail(opID id.OperationID, entries []audit.Entry) *AuditTrailResponse {
	out := make([]*AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, &AuditEntryResponse{
			ID:          e.ID.String(),
			Action:      string(e.Action),
			ActorID:     e.ActorID.String(),
			Reason:      e.Reason,
			Folio:       e.Folio,
			Amount:      e.Amount.StringFixed(2),
			Currency:    e.Currency,
			Timestamp:   e.Timestamp,
			ClientIP:    e.ClientIP,
			UserAgent:   e.UserAgent,
			Device:      e.Device,
			RequestID:   e.RequestID,
			ContentHash: e.ContentHash,
			Verified:    audit.Verify(e),
		})
	}
	return &AuditTrailResponse{OperationID: opID.String(), Entries: out}
}
