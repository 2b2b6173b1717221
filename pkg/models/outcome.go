package models

import (
	"fmt"
	"time"

	"portal-harvester/pkg/utils"
)

// FetchOutcome is the result of one page fetch. Exactly one Status applies;
// Document is set only for StatusSuccess and HTTPCode only for StatusHTTPError.
type FetchOutcome struct {
	URL      string
	Status   OutcomeStatus
	HTTPCode int
	Document *Document
	Links    []string
	Err      error
	Depth    int
	Elapsed  time.Duration
}

// SuccessOutcome wraps a materialized document
func SuccessOutcome(url string, depth int, doc *Document, links []string) FetchOutcome {
	return FetchOutcome{URL: url, Status: StatusSuccess, Document: doc, Links: links, Depth: depth}
}

// HTTPErrorOutcome records a non-2xx final status
func HTTPErrorOutcome(url string, depth, code int) FetchOutcome {
	class := utils.ErrOtherHTTPError
	switch {
	case code >= 500:
		class = utils.ErrServerHTTPError
	case code >= 400:
		class = utils.ErrClientHTTPError
	}
	return FetchOutcome{
		URL:      url,
		Status:   StatusHTTPError,
		HTTPCode: code,
		Err:      fmt.Errorf("%w: status %d", class, code),
		Depth:    depth,
	}
}

// FailureOutcome records a timeout, connection, parse or too-short failure.
// Links may still be set for too-short pages so discovery can proceed.
func FailureOutcome(url string, depth int, status OutcomeStatus, err error) FetchOutcome {
	if status == StatusSuccess || status == StatusHTTPError {
		panic(fmt.Sprintf("FailureOutcome called with status %s", status))
	}
	return FetchOutcome{URL: url, Status: status, Err: err, Depth: depth}
}

// Succeeded reports whether the outcome produced a document
func (o FetchOutcome) Succeeded() bool {
	return o.Status == StatusSuccess && o.Document != nil
}
