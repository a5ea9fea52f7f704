package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"evalassign/internal/model"
)

// Snapshot is one complete pull of the three input tables from a Source.
type Snapshot struct {
	Mileage []model.MileageRecord
	Roster  []string
	Jobs    []model.Job
}

// Source pulls the input tables from somewhere other than an HTTP upload,
// e.g. a drop directory populated by a nightly export.
type Source interface {
	Name() string
	Fetch() (Snapshot, error)
}

// FileSource reads mileage.csv, roster.csv and jobs.csv from a directory.
// Missing files are skipped so a partial drop still seeds what it has.
type FileSource struct {
	Dir string
}

func (f FileSource) Name() string { return "file:" + f.Dir }

func (f FileSource) Fetch() (Snapshot, error) {
	var snap Snapshot
	if r, ok, err := f.open("mileage.csv"); err != nil {
		return snap, err
	} else if ok {
		defer r.Close()
		snap.Mileage, err = ParseMileage(r)
		if err != nil {
			return snap, fmt.Errorf("mileage.csv: %w", err)
		}
	}
	if r, ok, err := f.open("roster.csv"); err != nil {
		return snap, err
	} else if ok {
		defer r.Close()
		snap.Roster, err = ParseRoster(r)
		if err != nil {
			return snap, fmt.Errorf("roster.csv: %w", err)
		}
	}
	if r, ok, err := f.open("jobs.csv"); err != nil {
		return snap, err
	} else if ok {
		defer r.Close()
		snap.Jobs, _, err = ParseJobs(r)
		if err != nil {
			return snap, fmt.Errorf("jobs.csv: %w", err)
		}
	}
	return snap, nil
}

func (f FileSource) open(name string) (*os.File, bool, error) {
	r, err := os.Open(filepath.Join(f.Dir, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}
