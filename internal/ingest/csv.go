// Package ingest parses the flat input tables consumed by the assignment
// core: the evaluator/customer mileage table, the full-time roster, and the
// job file. Parsing is lenient about real-world spreadsheet exports:
// header whitespace and casing vary, cost columns come in several shapes,
// and numeric cells may hold junk. Junk degrades to nil, not errors.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"evalassign/internal/model"
)

// header aliases seen across historical exports
var (
	costHeaders  = []string{"cost ($)", "2026 cost", "cost", "base cost"}
	milesHeaders = []string{"round-trip miles", "round trip miles"}
)

func readAll(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// headerIndex maps normalized header names to column positions.
func headerIndex(row []string) map[string]int {
	idx := map[string]int{}
	for i, h := range row {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func firstIndex(idx map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseFloat turns a spreadsheet cell into a float pointer. Missing or
// non-numeric values come back nil; currency formatting is tolerated.
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseMileage reads the distance/cost table. Requires Evaluator and
// Customer columns; the base cost column is optional because it may be
// derived from miles downstream.
func ParseMileage(r io.Reader) ([]model.MileageRecord, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("mileage csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("mileage csv: empty file")
	}
	idx := headerIndex(rows[0])
	evalCol, ok := idx["evaluator"]
	if !ok {
		return nil, fmt.Errorf("mileage csv: missing Evaluator column")
	}
	custCol, ok := idx["customer"]
	if !ok {
		return nil, fmt.Errorf("mileage csv: missing Customer column")
	}
	milesCol, hasMiles := firstIndex(idx, milesHeaders...)
	costCol, hasCost := firstIndex(idx, costHeaders...)
	oneWayCol, hasOneWay := idx["one-way miles"]
	driveCol, hasDrive := firstIndex(idx, "drive time (min)", "drive time")

	var out []model.MileageRecord
	for _, row := range rows[1:] {
		rec := model.MileageRecord{
			Evaluator: cell(row, evalCol),
			Customer:  cell(row, custCol),
		}
		if rec.Evaluator == "" || rec.Customer == "" {
			continue
		}
		if hasMiles {
			rec.RoundTripMiles = parseFloat(cell(row, milesCol))
		}
		if hasCost {
			rec.BaseCost = parseFloat(cell(row, costCol))
		}
		if hasOneWay {
			rec.OneWayMiles = parseFloat(cell(row, oneWayCol))
		}
		if hasDrive {
			rec.DriveTimeMin = parseFloat(cell(row, driveCol))
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseRoster reads the full-time evaluator roster: a single Last Name
// column, or a headerless single-column list.
func ParseRoster(r io.Reader) ([]string, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("roster csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	col := 0
	start := 0
	if i, ok := firstIndex(headerIndex(rows[0]), "last name", "evaluator", "name"); ok {
		col = i
		start = 1
	}
	var names []string
	for _, row := range rows[start:] {
		if n := cell(row, col); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// ParseJobs reads the uploaded job file. Job number must be unique;
// duplicates keep the first occurrence and are reported in the returned
// count so the caller can log them.
func ParseJobs(r io.Reader) (jobs []model.Job, duplicates int, err error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("jobs csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("jobs csv: empty file")
	}
	idx := headerIndex(rows[0])
	numCol, ok := firstIndex(idx, "job number", "job #", "job")
	if !ok {
		return nil, 0, fmt.Errorf("jobs csv: missing Job number column")
	}
	custCol, ok := firstIndex(idx, "customer company", "customer")
	if !ok {
		return nil, 0, fmt.Errorf("jobs csv: missing Customer Company column")
	}
	assigneeCol, hasAssignee := firstIndex(idx, "assignee(s)", "assignees", "assignee")

	seen := map[string]bool{}
	for _, row := range rows[1:] {
		num := cell(row, numCol)
		if num == "" {
			continue
		}
		if seen[num] {
			duplicates++
			continue
		}
		seen[num] = true
		j := model.Job{Number: num, Customer: cell(row, custCol)}
		if hasAssignee {
			j.Assignees = cell(row, assigneeCol)
		}
		jobs = append(jobs, j)
	}
	return jobs, duplicates, nil
}
