package model

// Core domain types shared by the API, store, and assignment core.

// MileageRecord is one observed (evaluator, customer) distance/cost row.
// Optional numeric fields are pointers: a nil value means the source cell
// was missing or non-numeric and contributes zero cost downstream.
type MileageRecord struct {
	Evaluator      string   `json:"evaluator"`
	Customer       string   `json:"customer"`
	OneWayMiles    *float64 `json:"oneWayMiles,omitempty"`
	RoundTripMiles *float64 `json:"roundTripMiles,omitempty"`
	DriveTimeMin   *float64 `json:"driveTimeMin,omitempty"`
	BaseCost       *float64 `json:"baseCost,omitempty"`
}

// Job is one work order from the uploaded job file.
type Job struct {
	Number    string `json:"number"`
	Customer  string `json:"customer"`            // free text as uploaded
	Assignees string `json:"assignees,omitempty"` // comma-separated or empty
}

// JobSlot is one evaluator-sized replica of a resolved job.
type JobSlot struct {
	JobNumber string `json:"jobNumber"`
	Ordinal   int    `json:"ordinal"`
	Customer  string `json:"customer"` // resolved canonical name
}

// AssignmentRow is one line of the final assignment table.
type AssignmentRow struct {
	JobNumber      string   `json:"jobNumber"`
	Customer       string   `json:"customer"`
	RawCustomer    string   `json:"rawCustomer,omitempty"`
	Evaluator      string   `json:"evaluator"`
	RoundTripMiles *float64 `json:"roundTripMiles,omitempty"`
	BaseCost       float64  `json:"baseCost"`
	PerDiem        float64  `json:"perDiem"`
	MileageBonus   float64  `json:"mileageBonus"`
	TotalCost      float64  `json:"totalCost"`
	Status         string   `json:"status"` // full_time or contract
	Tier           string   `json:"tier"`   // primary or last_resort_manager
}

// UnresolvedJob identifies a job whose customer name could not be matched.
type UnresolvedJob struct {
	JobNumber string `json:"jobNumber"`
	Customer  string `json:"customer"`
}

// UnfillableSlot identifies a slot with no eligible evaluator.
type UnfillableSlot struct {
	JobNumber string `json:"jobNumber"`
	Ordinal   int    `json:"ordinal"`
	Customer  string `json:"customer"`
}

// Diagnostics is the non-fatal issue channel of one assignment run.
type Diagnostics struct {
	Unresolved []UnresolvedJob  `json:"unresolved,omitempty"`
	Unfillable []UnfillableSlot `json:"unfillable,omitempty"`
}

// RunResult is the terminal output of one assignment computation.
type RunResult struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Mode        string          `json:"mode"`   // auto or manual
	Status      string          `json:"status"` // optimal, infeasible, empty
	Rows        []AssignmentRow `json:"rows"`
	GrandTotal  float64         `json:"grandTotal"`
	SlotCount   int             `json:"slotCount"`
	FilledCount int             `json:"filledCount"`
	Diagnostics Diagnostics     `json:"diagnostics"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// AssignRequest triggers a solver run over the tenant's current datasets.
type AssignRequest struct {
	TenantID            string   `json:"tenantId"`
	AvailableEvaluators []string `json:"availableEvaluators,omitempty"` // empty means all
	Threshold           float64  `json:"threshold,omitempty"`
	Metric              string   `json:"metric,omitempty"`
	TopK                int      `json:"topK,omitempty"`
}

// ShortlistRequest asks for ranked candidates for one job, excluding
// evaluators already picked earlier in the same manual session.
type ShortlistRequest struct {
	TenantID  string   `json:"tenantId"`
	JobNumber string   `json:"jobNumber"`
	Used      []string `json:"used,omitempty"`
	TopK      int      `json:"topK,omitempty"`
}

// ShortlistCandidate is one ranked manual-mode option.
type ShortlistCandidate struct {
	Evaluator      string   `json:"evaluator"`
	RoundTripMiles *float64 `json:"roundTripMiles,omitempty"`
	BaseCost       float64  `json:"baseCost"`
	TotalCost      float64  `json:"totalCost"`
	Status         string   `json:"status"`
	LastResort     bool     `json:"lastResort"`
}

// SubscriptionRequest registers a webhook for run events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
