package models

// OutcomeStatus is the closed set of page fetch results
type OutcomeStatus string

const (
	StatusSuccess         OutcomeStatus = "success"
	StatusHTTPError       OutcomeStatus = "http_error"
	StatusTimeout         OutcomeStatus = "timeout"
	StatusConnectionError OutcomeStatus = "connection_error"
	StatusParseError      OutcomeStatus = "parse_error"
	StatusTooShort        OutcomeStatus = "too_short"
)

// AllOutcomeStatuses lists every status in reporting order
var AllOutcomeStatuses = []OutcomeStatus{
	StatusSuccess, StatusHTTPError, StatusTimeout, StatusConnectionError, StatusParseError, StatusTooShort,
}

// String implements fmt.Stringer for logging
func (s OutcomeStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is one of the known outcomes
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case StatusSuccess, StatusHTTPError, StatusTimeout, StatusConnectionError, StatusParseError, StatusTooShort:
		return true
	}
	return false
}

// IsTransient reports network failures (timeout, connection error)
func (s OutcomeStatus) IsTransient() bool {
	return s == StatusTimeout || s == StatusConnectionError
}

// IsContentError reports soft content failures (parse error, too short)
func (s OutcomeStatus) IsContentError() bool {
	return s == StatusParseError || s == StatusTooShort
}

// Phase is a state of the fetch scheduler
type Phase string

const (
	PhasePriority        Phase = "PRIORITY"
	PhaseDiscovery       Phase = "DISCOVERY"
	PhaseSecondary       Phase = "SECONDARY"
	PhaseRetry           Phase = "RETRY"
	PhaseProgressiveFill Phase = "PROGRESSIVE_FILL"
	PhaseDone            Phase = "DONE"
)

// PhaseOrder is the strict transition sequence
var PhaseOrder = []Phase{PhasePriority, PhaseDiscovery, PhaseSecondary, PhaseRetry, PhaseProgressiveFill, PhaseDone}

// String implements fmt.Stringer for logging
func (p Phase) String() string {
	if p == "" {
		return "unset"
	}
	return string(p)
}

// OtherTier sub-prioritizes uncategorized URLs
type OtherTier string

const (
	TierImportant OtherTier = "important"
	TierData      OtherTier = "data"
	TierRest      OtherTier = "rest"
)
