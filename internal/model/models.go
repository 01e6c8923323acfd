// Package model defines shared data structures for the aggregator service.
package model

import "time"

// RawRecord is a loosely-structured posting as a source adapter sees it.
// All fields are raw strings straight from the remote platform; the
// normalizer is responsible for making sense of them. Any field except
// Title may be empty.
type RawRecord struct {
	Title              string
	Description        string
	State              string // full name or 2-letter code, adapter-dependent
	Agency             string
	SolicitationNumber string
	DueDateRaw         string // whatever date string the source emits
	Link               string
	OrganizationType   string // city, county, school district, …
	ClassificationCode string // NIGP/NAICS-style category code, if the source has one
}

// Opportunity is the canonical record persisted to the opportunities table.
type Opportunity struct {
	State              string     `json:"state"`
	Title              string     `json:"title"`
	SolicitationNumber string     `json:"solicitation_number,omitempty"`
	DueDate            *time.Time `json:"due_date"`
	Link               *string    `json:"link"`
	Agency             *string    `json:"agency"`
	Source             string     `json:"source"`
	ScrapedAt          time.Time  `json:"scraped_at"`
	Description        *string    `json:"description"`
	OrganizationType   *string    `json:"organization_type"`
}

// AdapterReport carries per-request telemetry out of a single adapter run.
// Errors is keyed by category: "network", "http_status", "parse".
type AdapterReport struct {
	Fetched int
	Errors  map[string]int
	Elapsed time.Duration
}

// NewAdapterReport returns a report with the error map initialised.
func NewAdapterReport() AdapterReport {
	return AdapterReport{Errors: make(map[string]int)}
}

// AddError increments the count for an error category.
func (r *AdapterReport) AddError(category string) {
	if r.Errors == nil {
		r.Errors = make(map[string]int)
	}
	r.Errors[category]++
}

// ErrorTotal returns the sum of all error counts.
func (r *AdapterReport) ErrorTotal() int {
	total := 0
	for _, n := range r.Errors {
		total += n
	}
	return total
}

// SourceReport is the per-adapter slice of a run report.
type SourceReport struct {
	Source           string         `json:"source"`
	Fetched          int            `json:"fetched"`
	Rejected         int            `json:"rejected"`
	Deduplicated     int            `json:"deduplicated"`
	Inserted         int            `json:"inserted"`
	Updated          int            `json:"updated"`
	ErrorsByCategory map[string]int `json:"errors_by_category"`
	ZeroResults      bool           `json:"zero_results"`
	ElapsedMs        int64          `json:"elapsed_ms"`
}

// RunReport aggregates one full orchestrator run.
type RunReport struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	PerSource     []SourceReport `json:"per_source"`
	TotalInserted int            `json:"total_inserted"`
	TotalUpdated  int            `json:"total_updated"`
	TotalErrors   int            `json:"total_errors"`
}

// RunStatus is the process-owned scheduler state, persisted in Redis and
// queryable without triggering a run.
type RunStatus struct {
	LastRunAt  *time.Time `json:"last_run_at"`
	NextRunAt  *time.Time `json:"next_run_at"`
	LastReport *RunReport `json:"last_report"`
}
