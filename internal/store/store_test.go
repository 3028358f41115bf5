package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordAndListRuns(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	set := params.Set{E0f: 0.2, ConcT: 1, DElectrode: 1e-5, DX: 1e-9, DA: 1, DB: 2, DC: 3}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	outcomes := []types.Outcome{
		{Kind: types.OutcomeWritten, Input: "a.csv", Output: "a-Dimensionless.csv"},
		{Kind: types.OutcomeUnsupported, Input: "b.txt", Ext: ".txt", Err: errors.New("unsupported")},
	}
	id, err := st.RecordRun(ctx, RunRecord{
		JobID:     "job-1",
		StartedAt: start,
		EndedAt:   start.Add(time.Second),
		Direction: types.ToDimensionless.String(),
		Params:    set,
	}, outcomes)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	if _, err := st.RecordRun(ctx, RunRecord{
		JobID:     "job-2",
		StartedAt: start.Add(time.Hour),
		EndedAt:   start.Add(time.Hour + time.Second),
		Direction: types.ToDimensional.String(),
		Params:    set,
	}, outcomes[:1]); err != nil {
		t.Fatal(err)
	}

	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].JobID != "job-2" {
		t.Errorf("expected newest run first, got %s", runs[0].JobID)
	}
	if runs[1].Files != 2 || runs[1].Failed != 1 {
		t.Errorf("unexpected counts: %+v", runs[1])
	}
	if runs[1].Params != set {
		t.Errorf("Params = %+v; want %+v", runs[1].Params, set)
	}
	if !runs[1].StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v; want %v", runs[1].StartedAt, start)
	}

	limited, err := st.ListRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}

	files, err := st.ListRunFiles(ctx, id)
	if err != nil {
		t.Fatalf("ListRunFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Outcome != "written" || files[1].Outcome != "unsupported" || files[1].Error != "unsupported" {
		t.Errorf("unexpected files: %+v", files)
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.RecordRun(context.Background(), RunRecord{JobID: "x", StartedAt: time.Now(), EndedAt: time.Now()}, nil); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run after reopen, got %d", len(runs))
	}
}

func TestListRunsOrdersByInstant(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	set := params.Set{E0f: 0, ConcT: 1, DElectrode: 1e-5, DX: 1e-9}
	plusFive := time.FixedZone("UTC+5", 5*60*60)

	// Inserted newest first so id order cannot hide a wrong sort.
	records := []RunRecord{
		{JobID: "latest", EndedAt: time.Date(2024, 3, 1, 10, 0, 5, 100_000_000, time.UTC)},
		{JobID: "whole-second", EndedAt: time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC)},
		{JobID: "offset", EndedAt: time.Date(2024, 3, 1, 14, 0, 0, 0, plusFive)},
	}
	for _, rec := range records {
		rec.StartedAt = rec.EndedAt.Add(-time.Second)
		rec.Direction = types.ToDimensionless.String()
		rec.Params = set
		if _, err := st.RecordRun(ctx, rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := st.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"latest", "whole-second", "offset"}
	if len(runs) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(runs))
	}
	for i, job := range want {
		if runs[i].JobID != job {
			t.Errorf("runs[%d] = %s; want %s", i, runs[i].JobID, job)
		}
	}
	if !runs[2].EndedAt.Equal(records[2].EndedAt) {
		t.Errorf("EndedAt = %v; want %v", runs[2].EndedAt, records[2].EndedAt)
	}
}
