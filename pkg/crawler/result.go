package crawler

import (
	"sort"

	"portal-harvester/pkg/models"
)

// RunResult is everything the scheduler produced in one run
type RunResult struct {
	Documents        []*models.Document
	Attempts         []models.AttemptRecord
	Phases           []models.Phase
	PagesFetched     int
	RetriesAttempted int
	RetriesRecovered int
	ByStatus         map[models.OutcomeStatus]int
	ByHTTPCode       map[int]int
	DocsByCategory   map[models.Category]int
	FailuresByCat    map[models.Category]map[models.OutcomeStatus]int
}

func newRunResult() *RunResult {
	return &RunResult{
		ByStatus:       make(map[models.OutcomeStatus]int),
		ByHTTPCode:     make(map[int]int),
		DocsByCategory: make(map[models.Category]int),
		FailuresByCat:  make(map[models.Category]map[models.OutcomeStatus]int),
	}
}

func (r *RunResult) record(rec models.AttemptRecord, doc *models.Document) {
	r.Attempts = append(r.Attempts, rec)
	r.PagesFetched++
	r.ByStatus[rec.Status]++
	if rec.Status == models.StatusHTTPError {
		r.ByHTTPCode[rec.HTTPCode]++
	}
	if doc != nil {
		r.Documents = append(r.Documents, doc)
		r.DocsByCategory[doc.Category]++
		return
	}
	byStatus, ok := r.FailuresByCat[rec.Category]
	if !ok {
		byStatus = make(map[models.OutcomeStatus]int)
		r.FailuresByCat[rec.Category] = byStatus
	}
	byStatus[rec.Status]++
}

// Fill copies the crawl statistics into a run summary, including the derived quality figures
func (r *RunResult) Fill(s *models.RunSummary) {
	s.PhasesExecuted = append([]models.Phase(nil), r.Phases...)
	s.PagesFetched = r.PagesFetched
	s.Documents = len(r.Documents)
	s.RetriesAttempted = r.RetriesAttempted
	s.RetriesRecovered = r.RetriesRecovered
	for k, v := range r.ByStatus {
		s.ByStatus[k] = v
	}
	for k, v := range r.ByHTTPCode {
		s.ByHTTPCode[k] = v
	}
	for k, v := range r.DocsByCategory {
		s.DocsByCategory[k] = v
	}
	for cat, byStatus := range r.FailuresByCat {
		cp := make(map[models.OutcomeStatus]int, len(byStatus))
		for k, v := range byStatus {
			cp[k] = v
		}
		s.FailuresByCat[cat] = cp
	}

	total := 0
	for _, d := range r.Documents {
		s.QualityCounts[d.Quality]++
		total += d.Length
	}
	if len(r.Documents) > 0 {
		s.AverageLength = total / len(r.Documents)
	}
	if r.PagesFetched > 0 {
		s.SuccessRate = float64(len(r.Documents)) / float64(r.PagesFetched)
	}
	if s.FrontierSize > 0 {
		s.Coverage = float64(len(r.Documents)) / float64(s.FrontierSize)
	}
}

// TopCategories returns document categories by count descending, then name
func (r *RunResult) TopCategories() []models.Category {
	cats := make([]models.Category, 0, len(r.DocsByCategory))
	for c := range r.DocsByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if r.DocsByCategory[cats[i]] != r.DocsByCategory[cats[j]] {
			return r.DocsByCategory[cats[i]] > r.DocsByCategory[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats
}
