// Package adapter implements the source adapters that pull procurement
// postings from remote platforms. Every platform — RSS feed, JSON API, or
// HTML portal — sits behind the same Adapter contract; they differ only in
// transport and parsing, never in failure semantics: all per-request and
// per-item errors are contained inside the adapter and surfaced as counts
// on the AdapterReport.
package adapter

import (
	"context"

	"procurepulse/aggregator-service/internal/model"
)

// Adapter fetches raw postings from exactly one remote platform.
// Fetch never returns an error: a broken source yields an empty (or
// partial) record list and a report with non-zero error counts.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, filter Filter) ([]model.RawRecord, model.AdapterReport)
}

// Filter optionally restricts a fetch by jurisdiction.
type Filter struct {
	States map[string]bool // 2-letter codes; nil or empty admits all
}

// NewFilter builds a Filter from a state code list.
func NewFilter(states []string) Filter {
	if len(states) == 0 {
		return Filter{}
	}
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return Filter{States: m}
}

// Allows reports whether the given state code passes the filter. Adapters
// whose endpoints are per-state call this to skip out-of-scope requests;
// multi-state sources leave filtering to the normalizer.
func (f Filter) Allows(state string) bool {
	if len(f.States) == 0 {
		return true
	}
	return f.States[state]
}
