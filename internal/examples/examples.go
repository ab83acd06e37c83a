// Package examples builds the robust model instances shipped with the CLI.
package examples

import (
	"fmt"
	"sort"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Instance is a model together with the alternative uncertainty sets its
// parameter can be attached to.
type Instance struct {
	Model *model.Model
	Param *model.VarSet
	Sets  map[string]*uncset.Set
	// Default is the set attached at construction.
	Default string
	// Solver names the master solver the robust counterpart needs when the
	// default one cannot handle it.
	Solver string
}

// Use attaches the named set to the instance parameter.
func (in *Instance) Use(name string) error {
	if name == "" {
		name = in.Default
	}
	s, ok := in.Sets[name]
	if !ok {
		return fmt.Errorf("instance %s has no uncertainty set %q (available: %v)", in.Model.Name, name, in.SetNames())
	}
	in.Model.RegisterUncertaintySet(s)
	in.Param.UncSet = s.Name()
	return nil
}

// SetNames lists the alternative sets in sorted order.
func (in *Instance) SetNames() []string {
	names := make([]string, 0, len(in.Sets))
	for n := range in.Sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builder creates a fresh instance.
type Builder func() (*Instance, error)

// Catalog maps instance names to builders.
var Catalog = map[string]Builder{
	"knapsack":  Knapsack,
	"portfolio": Portfolio,
	"facility":  Facility,
	"planning":  Planning,
}

// Names lists the catalog in sorted order.
func Names() []string {
	names := make([]string, 0, len(Catalog))
	for n := range Catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the named instance with the named set attached. An empty
// set name keeps the default.
func Build(name, set string) (*Instance, error) {
	b, ok := Catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown example %q (available: %v)", name, Names())
	}
	in, err := b()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	if err := in.Use(set); err != nil {
		return nil, err
	}
	return in, nil
}
