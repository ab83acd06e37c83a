package store

import (
	"testing"
	"time"
)

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Run)
		wantErr string
	}{
		{"valid", func(*Run) {}, ""},
		{"empty id", func(r *Run) { r.ID = "" }, "ID"},
		{"malformed id", func(r *Run) { r.ID = "run-1" }, "ID"},
		{"empty example", func(r *Run) { r.Example = "" }, "Example"},
		{"empty method", func(r *Run) { r.Method = "" }, "Method"},
		{"negative iterations", func(r *Run) { r.Iterations = -1 }, "Iterations"},
		{"zero timestamp", func(r *Run) { r.Timestamp = time.Time{} }, "Timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := createTestRun()
			tt.mutate(run)
			err := run.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Expected ValidationError, got %T: %v", err, err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Expected field %s, got %s", tt.wantErr, verr.Field)
			}
		})
	}
}

func TestNewRunIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRun("knapsack", "", "romodel.nominal", nil).ID
		if seen[id] {
			t.Fatalf("Duplicate run ID %s", id)
		}
		seen[id] = true
	}
}

func TestToInfo(t *testing.T) {
	run := createTestRun()
	info := run.ToInfo()
	if info.ID != run.ID || info.Objective != run.Objective || info.Set != "P" || info.Status != "optimal" {
		t.Errorf("Unexpected info: %+v", info)
	}
}
