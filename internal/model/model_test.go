package model

import (
	"strings"
	"testing"
)

func TestDuplicateNamePanics(t *testing.T) {
	tests := []struct {
		name string
		add  func(m *Model)
	}{
		{"var", func(m *Model) { m.AddVar("x") }},
		{"vars", func(m *Model) { m.AddVars("x", 2) }},
		{"constraint", func(m *Model) { m.AddConstraint("x", Leq(C(0), C(1))) }},
		{"objective", func(m *Model) { m.AddObjective("x", C(0), Minimize) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New("dup")
			m.AddVar("x")
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("Expected a panic on the duplicate name")
				}
				if msg, ok := r.(string); !ok || !strings.Contains(msg, `"x" already exists`) {
					t.Errorf("Unexpected panic value %v", r)
				}
			}()
			tt.add(m)
		})
	}
}

func TestUniqueNameAvoidsTakenNames(t *testing.T) {
	m := New("names")
	if m.Has("c") {
		t.Fatal("Empty model should not have c")
	}
	m.AddConstraint("c", Leq(C(0), C(1)))
	m.AddConstraint("c_2", Leq(C(0), C(1)))
	if !m.Has("c") {
		t.Error("Has(c) = false after AddConstraint")
	}
	if got := m.UniqueName("c"); got != "c_3" {
		t.Errorf("UniqueName(c) = %q, want c_3", got)
	}
	m.AddConstraint(m.UniqueName("c"), Leq(C(0), C(1)))
	if !m.Has("c_3") {
		t.Error("Has(c_3) = false after adding the generated name")
	}
}
