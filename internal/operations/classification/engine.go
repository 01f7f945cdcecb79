// Package classification evaluates an operation against the AML rules.
//
// Classify is pure: no I/O, no clock, no hidden state. The caller supplies the
// owner's history and "now"; identical inputs always yield identical output.
package classification

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"amlcore/internal/operations/models"
	dErrors "amlcore/pkg/domain-errors"
)

// Defaults for the rule parameters.
var DefaultRelevantThreshold = decimal.NewFromInt(17500)

const (
	DefaultWindowDays          = 30
	DefaultOccurrenceThreshold = 3
)

// Config holds the rule parameters.
type Config struct {
	ReportingCurrency   string
	RelevantThreshold   decimal.Decimal
	WindowDays          int
	OccurrenceThreshold int
	// Location defines "today" for the frequency window.
	Location *time.Location
}

// Engine applies the rule chain with a fixed configuration.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReportingCurrency == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reporting currency is required")
	}
	if !cfg.RelevantThreshold.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "relevant threshold must be positive")
	}
	if cfg.WindowDays < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "frequency window must be at least one day")
	}
	if cfg.OccurrenceThreshold < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "occurrence threshold must be at least one")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Window returns the civil-date range [from, to] the frequency rule counts
// for now. Callers use it to load the history Classify needs.
func (e *Engine) Window(now time.Time) (from, to time.Time) {
	to = models.CivilDate(now.In(e.cfg.Location))
	return to.AddDate(0, 0, -e.cfg.WindowDays), to
}

// Classify evaluates op against the owner's history.
//
// Rule order (first rule to set the tier wins, alerts accumulate):
//  1. Threshold: reporting amount >= threshold -> relevant
//  2. Frequency: Nth operation of the client inside the trailing window -> concerning
func (e *Engine) Classify(op *models.Operation, history []models.HistoryEntry, now time.Time) models.ClassificationResult {
	result := models.ClassificationResult{
		Classification: models.ClassificationNone,
		Alerts:         []string{},
	}
	set := func(c models.Classification) {
		if result.Classification == models.ClassificationNone {
			result.Classification = c
		}
	}

	// Rule 1: threshold
	if op.AmountReporting.GreaterThanOrEqual(e.cfg.RelevantThreshold) {
		set(models.ClassificationRelevant)
		result.Alerts = append(result.Alerts, e.thresholdAlert(op))
	}

	// Rule 2: frequency
	if n, ok := e.occurrences(op, history, now); ok && n >= e.cfg.OccurrenceThreshold {
		set(models.ClassificationConcerning)
		result.Alerts = append(result.Alerts, e.frequencyAlert(n))
	}

	return result
}

// occurrences counts the distinct, non-deleted operations of op's (owner,
// client) whose event date lies in [today-window, today], op included. ok is
// false when op itself lies outside the window.
func (e *Engine) occurrences(op *models.Operation, history []models.HistoryEntry, now time.Time) (int, bool) {
	start, today := e.Window(now)
	inWindow := func(d time.Time) bool {
		d = models.CivilDate(d)
		return !d.Before(start) && !d.After(today)
	}

	if !inWindow(op.EventDate) {
		return 0, false
	}

	count := 1
	seen := map[string]struct{}{op.ID.String(): {}}
	for _, h := range history {
		if h.Deleted || h.ClientID != op.ClientID {
			continue
		}
		key := h.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if inWindow(h.EventDate) {
			count++
		}
	}
	return count, true
}

func (e *Engine) thresholdAlert(op *models.Operation) string {
	return fmt.Sprintf("Amount %s %s (%s %s) meets or exceeds the relevant operation threshold of %s %s",
		formatAmount(op.Amount), op.Currency,
		formatAmount(op.AmountReporting), e.cfg.ReportingCurrency,
		formatAmount(e.cfg.RelevantThreshold), e.cfg.ReportingCurrency,
	)
}

func (e *Engine) frequencyAlert(n int) string {
	return fmt.Sprintf("%s operation in window: %d operations for this client within %d days (threshold %d)",
		humanize.Ordinal(n), n, e.cfg.WindowDays, e.cfg.OccurrenceThreshold,
	)
}

// formatAmount renders 20000 as "20,000.00". Display only; never parse it back.
func formatAmount(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.Truncate(2).InexactFloat64())
}
