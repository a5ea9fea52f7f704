package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceFetch(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("mileage.csv", "Evaluator,Customer,Round Trip Miles\nSmith,Acme Power,120\n")
	write("roster.csv", "Last Name\nSmith\n")
	write("jobs.csv", "Job #,Customer Company,Assignee(s)\nJ-1,Acme Power,TBD\n")

	src := FileSource{Dir: dir}
	if src.Name() != "file:"+dir {
		t.Fatalf("name: %q", src.Name())
	}
	snap, err := src.Fetch()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Mileage) != 1 || snap.Mileage[0].Evaluator != "Smith" {
		t.Fatalf("mileage: %+v", snap.Mileage)
	}
	if len(snap.Roster) != 1 || len(snap.Jobs) != 1 {
		t.Fatalf("roster=%d jobs=%d", len(snap.Roster), len(snap.Jobs))
	}
}

func TestFileSourcePartialDrop(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "roster.csv"), []byte("Smith\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := FileSource{Dir: dir}.Fetch()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Mileage) != 0 || len(snap.Jobs) != 0 || len(snap.Roster) != 1 {
		t.Fatalf("partial drop: %+v", snap)
	}
}

func TestFileSourceBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "jobs.csv"), []byte("not,a,job,sheet\nx,y,z,w\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (FileSource{Dir: dir}).Fetch(); err == nil {
		t.Fatal("expected error for unrecognized jobs headers")
	}
}
