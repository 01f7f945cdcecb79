package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
)

// Fail-fast size bounds; the service enforces the domain limits.
const (
	maxFieldLength = 2048
	maxReason      = 500
)

// OperationRequest is the HTTP body for POST /operations.
type OperationRequest struct {
	ClientID      string              `json:"client_id"`
	EventDate     string              `json:"event_date"`
	EventTime     string              `json:"event_time"`
	OperationType string              `json:"operation_type"`
	Amount        decimal.NullDecimal `json:"amount"`
	Currency      string              `json:"currency"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	Description   string              `json:"description,omitempty"`
	Reference     string              `json:"reference,omitempty"`
	Counterparty  CounterpartyRequest `json:"counterparty"`
	Notes         string              `json:"notes,omitempty"`

	// Populated by Validate
	parsed models.Fields
}

// CounterpartyRequest identifies the other side of the transaction.
type CounterpartyRequest struct {
	Name    string `json:"name,omitempty"`
	Account string `json:"account,omitempty"`
	Bank    string `json:"bank,omitempty"`
}

// Validate parses the typed fields. Implements httputil.Validatable.
func (r *OperationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	for _, v := range []string{r.ClientID, r.EventDate, r.EventTime, r.OperationType, r.Currency,
		r.PaymentMethod, r.Description, r.Reference, r.Notes,
		r.Counterparty.Name, r.Counterparty.Account, r.Counterparty.Bank} {
		if len(v) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, "field exceeds maximum length")
		}
	}

	clientID, err := id.ParseClientID(strings.TrimSpace(r.ClientID))
	if err != nil {
		return err
	}
	eventDate := strings.TrimSpace(r.EventDate)
	if eventDate == "" {
		return dErrors.New(dErrors.CodeValidation, "event_date is required")
	}
	date, err := time.Parse(models.EventDateLayout, eventDate)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "event_date must be YYYY-MM-DD")
	}
	if !r.Amount.Valid {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}

	r.parsed = models.Fields{
		ClientID:      clientID,
		EventDate:     date,
		EventTime:     r.EventTime,
		OperationType: r.OperationType,
		Amount:        r.Amount.Decimal,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		Description:   r.Description,
		Reference:     r.Reference,
		Counterparty: models.Counterparty{
			Name:    r.Counterparty.Name,
			Account: r.Counterparty.Account,
			Bank:    r.Counterparty.Bank,
		},
		Notes: r.Notes,
	}
	return nil
}

// Fields returns the parsed operation fields.
func (r *OperationRequest) Fields() models.Fields {
	return r.parsed
}

// EditRequest is the HTTP body for PUT /operations/{id}: the full field set
// plus an optional reason.
type EditRequest struct {
	OperationRequest
	Reason string `json:"reason,omitempty"`
}

func (r *EditRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > maxReason {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return r.OperationRequest.Validate()
}

// DeleteRequest is the HTTP body for DELETE /operations/{id}.
type DeleteRequest struct {
	Reason string `json:"reason"`
}

func (r *DeleteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReason {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}
