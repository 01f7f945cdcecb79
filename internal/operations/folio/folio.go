// Package folio allocates the human-readable business identifier of an
// operation: PREFIX-YYYY-SEQ, unique and strictly increasing per (owner, year).
package folio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	dErrors "amlcore/pkg/domain-errors"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "OP"

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

// Folio is a parsed business identifier. The zero value means "not assigned".
type Folio struct {
	Prefix string
	Year   int
	Seq    int
}

// New builds a folio, rejecting malformed parts.
func New(prefix string, year, seq int) (Folio, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return Folio{}, err
	}
	if year < 1000 || year > 9999 {
		return Folio{}, dErrors.New(dErrors.CodeInvariantViolation, "folio year must have four digits")
	}
	if seq < 1 {
		return Folio{}, dErrors.New(dErrors.CodeInvariantViolation, "folio sequence starts at 1")
	}
	return Folio{Prefix: prefix, Year: year, Seq: seq}, nil
}

// ValidatePrefix checks a configured prefix.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return dErrors.New(dErrors.CodeValidation, "folio prefix must be 1-10 uppercase letters or digits starting with a letter")
	}
	return nil
}

// String renders the folio; the sequence is padded to three digits and grows past 999.
func (f Folio) String() string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s-%04d-%03d", f.Prefix, f.Year, f.Seq)
}

func (f Folio) IsZero() bool {
	return f == Folio{}
}

// Parse reads a rendered folio. Only the canonical rendering is accepted, so
// every parsed folio renders back to its input.
func Parse(s string) (Folio, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio must look like PREFIX-YYYY-SEQ")
	}
	if len(parts[1]) != 4 || len(parts[2]) < 3 {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio must look like PREFIX-YYYY-SEQ")
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio year is not numeric")
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio sequence is not numeric")
	}
	f, err := New(parts[0], year, seq)
	if err != nil {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio is malformed")
	}
	if f.String() != s {
		return Folio{}, dErrors.New(dErrors.CodeValidation, "folio is not in canonical form")
	}
	return f, nil
}
