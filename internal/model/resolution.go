package model

import (
	"time"

	"github.com/qjdesk/complaint-desk/internal/utils"
)

// Outcome is the canonical resolution verdict.
type Outcome string

const (
	OutcomeUpheld    Outcome = "upheld"
	OutcomeNotUpheld Outcome = "not_upheld"
)

// outcomeSpellings maps folded surface spellings sent by the different
// client generations to the canonical verdict.
var outcomeSpellings = map[string]Outcome{
	"upheld":         OutcomeUpheld,
	"procedente":     OutcomeUpheld,
	"favorable":      OutcomeUpheld,
	"si":             OutcomeUpheld,
	"yes":            OutcomeUpheld,
	"true":           OutcomeUpheld,
	"1":              OutcomeUpheld,
	"not upheld":     OutcomeNotUpheld,
	"notupheld":      OutcomeNotUpheld,
	"no procedente":  OutcomeNotUpheld,
	"improcedente":   OutcomeNotUpheld,
	"desfavorable":   OutcomeNotUpheld,
	"no favorable":   OutcomeNotUpheld,
	"no":             OutcomeNotUpheld,
	"false":          OutcomeNotUpheld,
	"0":              OutcomeNotUpheld,
}

// ParseOutcome normalizes raw into a canonical Outcome.  Matching is case,
// accent and separator insensitive; unknown spellings return false.
func ParseOutcome(raw string) (Outcome, bool) {
	o, ok := outcomeSpellings[utils.Fold(raw)]
	return o, ok
}

// Resolution mirrors the `resolutions` table.  At most one row exists
// per complaint (UNIQUE complaint_id).
type Resolution struct {
	ID          uint64    `json:"id"`
	ComplaintID uint64    `json:"complaint_id"`
	Narrative   string    `json:"narrative"`
	Outcome     Outcome   `json:"outcome"`
	ResolvedBy  uint64    `json:"resolved_by"`
	ResolvedAt  time.Time `json:"resolved_at"`
}
