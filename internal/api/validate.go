package api

import (
	"fmt"

	"evalassign/internal/model"
)

var knownMetrics = map[string]struct{}{"levenshtein": {}, "jaro-winkler": {}, "sorensen-dice": {}}

func validateAssignRequest(req *model.AssignRequest) error {
	if req.Threshold != 0 && (req.Threshold <= 0 || req.Threshold > 1) {
		return fmt.Errorf("threshold must be in (0,1]")
	}
	if req.Metric != "" {
		if _, ok := knownMetrics[req.Metric]; !ok {
			return fmt.Errorf("unknown metric: %s (allowed: levenshtein,jaro-winkler,sorensen-dice)", req.Metric)
		}
	}
	if req.TopK < 0 {
		return fmt.Errorf("topK must be >= 0")
	}
	return nil
}

func validateShortlistRequest(req *model.ShortlistRequest) error {
	if req.JobNumber == "" {
		return fmt.Errorf("jobNumber is required")
	}
	if req.TopK < 0 {
		return fmt.Errorf("topK must be >= 0")
	}
	return nil
}
