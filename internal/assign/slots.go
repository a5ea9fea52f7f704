package assign

import (
	"strings"

	"evalassign/internal/model"
)

// AssigneeCount infers how many evaluators a job needs from its free-text
// assignee field: one per comma-separated token, minimum 1, blank field 1.
func AssigneeCount(assignees string) int {
	if strings.TrimSpace(assignees) == "" {
		return 1
	}
	n := 0
	for _, tok := range strings.Split(assignees, ",") {
		if strings.TrimSpace(tok) != "" {
			n++
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ExpandSlots turns resolved jobs into per-evaluator slots. resolved maps
// job number to its canonical customer; jobs missing from it are skipped
// (the caller reports them as unresolved). Pure expansion, input order kept.
func ExpandSlots(jobs []model.Job, resolved map[string]string) []model.JobSlot {
	var slots []model.JobSlot
	for _, j := range jobs {
		customer, ok := resolved[j.Number]
		if !ok {
			continue
		}
		n := AssigneeCount(j.Assignees)
		for i := 0; i < n; i++ {
			slots = append(slots, model.JobSlot{JobNumber: j.Number, Ordinal: i, Customer: customer})
		}
	}
	return slots
}
