package store

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cwbudde/robustopt/internal/cuts"
)

func TestTraceWriteRead(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "run-1")
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		tw.Record(cuts.Iteration{Iter: i, Objective: 25 - float64(i), Feasible: i - 1, Total: 2, Cuts: i + 1})
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !strings.HasSuffix(tw.Path(), "trace.jsonl") {
		t.Errorf("Unexpected path %s", tw.Path())
	}

	entries, err := ReadTrace(dir, "run-1")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	last := entries[2]
	if last.Iter != 3 || last.Objective != 22 || last.Feasible != 2 || last.Cuts != 4 {
		t.Errorf("Unexpected last entry: %+v", last)
	}
	if last.Timestamp.IsZero() {
		t.Error("Entry should carry a timestamp")
	}
}

func TestTraceTruncatesOnCreate(t *testing.T) {
	dir := t.TempDir()
	for round := 0; round < 2; round++ {
		tw, err := NewTraceWriter(dir, "run-2")
		if err != nil {
			t.Fatal(err)
		}
		tw.Record(cuts.Iteration{Iter: 1})
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ReadTrace(dir, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after recreate, got %d", len(entries))
	}
}

func TestTraceConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "run-3")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				tw.Record(cuts.Iteration{Iter: g*100 + i})
			}
		}(g)
	}
	wg.Wait()
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadTrace(dir, "run-3")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 100 {
		t.Errorf("Expected 100 entries, got %d", len(entries))
	}
}

func TestReadTraceErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadTrace(dir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tw, err := NewTraceWriter(dir, "bad")
	if err != nil {
		t.Fatal(err)
	}
	tw.Close()
	if err := os.WriteFile(tw.Path(), []byte("{\"iter\":1}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTrace(dir, "bad"); err == nil {
		t.Error("Expected error for malformed line")
	}
}
