// Package normalize converts raw adapter records into canonical
// opportunities: date and state normalization plus keyword/category
// filtering. Records that fail validation come back as explicit rejections
// so the orchestrator can count them.
package normalize

import (
	"strings"
	"time"

	"procurepulse/aggregator-service/internal/model"
)

// Rejection reasons reported per record.
const (
	RejectMissingTitle = "missing_title"
	RejectState        = "unrecognized_state"
	RejectFiltered     = "filtered_out"
)

// defaultKeywords is the built-in allow-list applied to title+description.
// A record survives when any keyword matches (case-insensitive) or its
// classification code is on the category allow-list.
var defaultKeywords = []string{
	"janitorial",
	"custodial",
	"cleaning",
	"housekeeping",
	"floor care",
	"carpet",
	"window washing",
	"porter service",
	"sanitation",
	"disinfect",
}

// defaultClassCodes are NIGP class codes for custodial/janitorial services.
var defaultClassCodes = []string{
	"910", // building maintenance
	"910-39",
	"910-42",
	"958-29",
	"962-46",
}

// Normalizer applies state, date, and relevance rules to raw records.
type Normalizer struct {
	keywords   []string // pre-lowered
	classCodes map[string]bool
	states     map[string]bool // allow-list; empty means all states
}

// New builds a Normalizer. Empty keyword/code slices fall back to the
// built-in defaults; an empty state list admits every state.
func New(keywords, classCodes, states []string) *Normalizer {
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	if len(classCodes) == 0 {
		classCodes = defaultClassCodes
	}

	n := &Normalizer{
		keywords:   make([]string, 0, len(keywords)),
		classCodes: make(map[string]bool, len(classCodes)),
		states:     make(map[string]bool, len(states)),
	}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			n.keywords = append(n.keywords, strings.ToLower(k))
		}
	}
	for _, c := range classCodes {
		if c = strings.TrimSpace(c); c != "" {
			n.classCodes[c] = true
		}
	}
	for _, s := range states {
		n.states[strings.ToUpper(s)] = true
	}
	return n
}

// Normalize maps one raw record to a canonical Opportunity. The second
// return value is a rejection reason; it is empty exactly when the record
// was accepted.
func (n *Normalizer) Normalize(raw model.RawRecord, source string, scrapedAt time.Time) (*model.Opportunity, string) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, RejectMissingTitle
	}

	state, ok := NormalizeState(raw.State)
	if !ok {
		return nil, RejectState
	}
	if len(n.states) > 0 && !n.states[state] {
		return nil, RejectFiltered
	}

	if !n.relevant(raw) {
		return nil, RejectFiltered
	}

	opp := &model.Opportunity{
		State:              state,
		Title:              title,
		SolicitationNumber: strings.TrimSpace(raw.SolicitationNumber),
		DueDate:            NormalizeDate(raw.DueDateRaw),
		Link:               optional(raw.Link),
		Agency:             optional(raw.Agency),
		Source:             source,
		ScrapedAt:          scrapedAt,
		Description:        optional(raw.Description),
		OrganizationType:   optional(raw.OrganizationType),
	}
	return opp, ""
}

// relevant returns true when the record matches the keyword allow-list or
// its classification code is explicitly allowed. Matching is
// case-insensitive and never mutates the stored text.
func (n *Normalizer) relevant(raw model.RawRecord) bool {
	if code := strings.TrimSpace(raw.ClassificationCode); code != "" {
		if n.classCodes[code] {
			return true
		}
		// Codes like "910-39" also match on their class prefix.
		if i := strings.IndexByte(code, '-'); i > 0 && n.classCodes[code[:i]] {
			return true
		}
	}

	haystack := strings.ToLower(raw.Title + " " + raw.Description)
	for _, kw := range n.keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
