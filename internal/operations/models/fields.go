package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
)

// Field size limits.
const (
	maxTypeLength        = 64
	maxDescriptionLength = 1000
	maxNotesLength       = 2000
	maxReasonLength      = 500
)

// EventDateLayout is the wire format of an event date.
const EventDateLayout = "2006-01-02"

// EventTimeLayout is the wire format of an event time.
const EventTimeLayout = "15:04"

// Fields are the caller-supplied attributes of an operation, shared by
// create and edit.
type Fields struct {
	ClientID      id.ClientID
	EventDate     time.Time
	EventTime     string
	OperationType string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Description   string
	Reference     string
	Counterparty  Counterparty
	Notes         string
}

// Normalize trims free text and upper-cases the currency code.
func (f *Fields) Normalize() {
	f.EventTime = strings.TrimSpace(f.EventTime)
	f.OperationType = strings.TrimSpace(f.OperationType)
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	f.PaymentMethod = strings.TrimSpace(f.PaymentMethod)
	f.Description = strings.TrimSpace(f.Description)
	f.Reference = strings.TrimSpace(f.Reference)
	f.Counterparty.Name = strings.TrimSpace(f.Counterparty.Name)
	f.Counterparty.Account = strings.TrimSpace(f.Counterparty.Account)
	f.Counterparty.Bank = strings.TrimSpace(f.Counterparty.Bank)
	f.Notes = strings.TrimSpace(f.Notes)
	if !f.EventDate.IsZero() {
		f.EventDate = CivilDate(f.EventDate)
	}
}

// Validate checks required fields are present and well-typed. supported
// lists the accepted currency codes.
func (f *Fields) Validate(supported func(code string) bool) error {
	if f.ClientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	if f.EventDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "event_date is required")
	}
	if f.EventTime == "" {
		return dErrors.New(dErrors.CodeValidation, "event_time is required")
	}
	if _, err := time.Parse(EventTimeLayout, f.EventTime); err != nil {
		return dErrors.New(dErrors.CodeValidation, "event_time must be HH:MM")
	}
	if f.OperationType == "" {
		return dErrors.New(dErrors.CodeValidation, "operation_type is required")
	}
	if len(f.OperationType) > maxTypeLength || len(f.PaymentMethod) > maxTypeLength {
		return dErrors.New(dErrors.CodeValidation, "operation_type and payment_method must be at most 64 characters")
	}
	if !f.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	if !f.Amount.Equal(f.Amount.Round(2)) {
		return dErrors.New(dErrors.CodeValidation, "amount must have at most 2 decimal places")
	}
	if f.Currency == "" {
		return dErrors.New(dErrors.CodeValidation, "currency is required")
	}
	if supported != nil && !supported(f.Currency) {
		return dErrors.New(dErrors.CodeValidation, "currency "+f.Currency+" is not supported")
	}
	if len(f.Description) > maxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 1000 characters")
	}
	if len(f.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 2000 characters")
	}
	return nil
}

// ValidateReason checks a mutation reason. required rejects empty reasons.
func ValidateReason(reason string, required bool) (string, error) {
	reason = strings.TrimSpace(reason)
	if required && reason == "" {
		return "", dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(reason) > maxReasonLength {
		return "", dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return reason, nil
}

// CivilDate drops the clock part of t, keeping its calendar date in t's
// location, and returns that date at UTC midnight.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
