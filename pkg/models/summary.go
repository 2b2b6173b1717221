package models

import "time"

// RunSummary is the required end-of-run report
type RunSummary struct {
	RunID            string                             `yaml:"run_id" json:"run_id"`
	BaseURL          string                             `yaml:"base_url" json:"base_url"`
	StartedAt        time.Time                          `yaml:"started_at" json:"started_at"`
	FinishedAt       time.Time                          `yaml:"finished_at" json:"finished_at"`
	Aborted          string                             `yaml:"aborted,omitempty" json:"aborted,omitempty"`
	PhasesExecuted   []Phase                            `yaml:"phases_executed" json:"phases_executed"`
	MaxTotalPages    int                                `yaml:"max_total_pages" json:"max_total_pages"`
	PagesFetched     int                                `yaml:"pages_fetched" json:"pages_fetched"`
	Documents        int                                `yaml:"documents" json:"documents"`
	RetriesAttempted int                                `yaml:"retries_attempted" json:"retries_attempted"`
	RetriesRecovered int                                `yaml:"retries_recovered" json:"retries_recovered"`
	ByStatus         map[OutcomeStatus]int              `yaml:"by_status" json:"by_status"`
	ByHTTPCode       map[int]int                        `yaml:"by_http_code,omitempty" json:"by_http_code,omitempty"`
	DocsByCategory   map[Category]int                   `yaml:"documents_by_category" json:"documents_by_category"`
	FailuresByCat    map[Category]map[OutcomeStatus]int `yaml:"failures_by_category,omitempty" json:"failures_by_category,omitempty"`
	FrontierBySource map[Source]int                     `yaml:"frontier_by_source" json:"frontier_by_source"`
	FrontierSize     int                                `yaml:"frontier_size" json:"frontier_size"`
	QualityCounts    map[Quality]int                    `yaml:"quality" json:"quality"`
	AverageLength    int                                `yaml:"average_length" json:"average_length"`
	SuccessRate      float64                            `yaml:"success_rate" json:"success_rate"`
	Coverage         float64                            `yaml:"coverage" json:"coverage"`
}

// NewRunSummary returns a summary with initialized maps
func NewRunSummary(runID, baseURL string, maxPages int) *RunSummary {
	return &RunSummary{
		RunID:            runID,
		BaseURL:          baseURL,
		StartedAt:        time.Now().UTC(),
		MaxTotalPages:    maxPages,
		ByStatus:         make(map[OutcomeStatus]int),
		ByHTTPCode:       make(map[int]int),
		DocsByCategory:   make(map[Category]int),
		FailuresByCat:    make(map[Category]map[OutcomeStatus]int),
		FrontierBySource: make(map[Source]int),
		QualityCounts:    make(map[Quality]int),
	}
}

// Failures returns the total number of failed attempts
func (s *RunSummary) Failures() int {
	total := 0
	for status, n := range s.ByStatus {
		if status != StatusSuccess {
			total += n
		}
	}
	return total
}
