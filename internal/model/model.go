package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Sense is the optimization direction. The numeric values allow writing
// det + sense*padding for worst-case objectives.
type Sense int

const (
	Minimize Sense = 1
	Maximize Sense = -1
)

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// UncertaintySet is the part of an uncertainty set the model needs: a name to
// look it up by.
type UncertaintySet interface {
	Name() string
}

// Relation is lower <= body <= upper; an infinite bound is absent.
type Relation struct {
	Lower float64
	Body  Expr
	Upper float64
}

// Leq builds lhs <= rhs.
func Leq(lhs, rhs Expr) Relation {
	if c, ok := IsConst(rhs); ok {
		return Relation{Lower: math.Inf(-1), Body: lhs, Upper: c}
	}
	if c, ok := IsConst(lhs); ok {
		return Relation{Lower: c, Body: rhs, Upper: math.Inf(1)}
	}
	return Relation{Lower: math.Inf(-1), Body: Sub(lhs, rhs), Upper: 0}
}

// Geq builds lhs >= rhs.
func Geq(lhs, rhs Expr) Relation { return Leq(rhs, lhs) }

// Eq builds lhs == rhs.
func Eq(lhs, rhs Expr) Relation {
	if c, ok := IsConst(rhs); ok {
		return Relation{Lower: c, Body: lhs, Upper: c}
	}
	if c, ok := IsConst(lhs); ok {
		return Relation{Lower: c, Body: rhs, Upper: c}
	}
	return Relation{Lower: 0, Body: Sub(lhs, rhs), Upper: 0}
}

// Range builds lower <= body <= upper.
func Range(lower float64, body Expr, upper float64) Relation {
	return Relation{Lower: lower, Body: body, Upper: upper}
}

// Constraint is a named relation that can be deactivated.
type Constraint struct {
	Name string
	Relation

	active bool
}

// NewConstraint creates an active constraint that belongs to no model, for
// example one of the relations defining an uncertainty set.
func NewConstraint(name string, r Relation) *Constraint {
	return &Constraint{Name: name, Relation: r, active: true}
}

// HasLower reports whether the lower bound is finite.
func (c *Constraint) HasLower() bool { return !math.IsInf(c.Lower, -1) }

// HasUpper reports whether the upper bound is finite.
func (c *Constraint) HasUpper() bool { return !math.IsInf(c.Upper, 1) }

// IsEquality reports whether lower and upper coincide.
func (c *Constraint) IsEquality() bool { return c.Lower == c.Upper }

// Active reports whether the constraint participates in solves.
func (c *Constraint) Active() bool { return c.active }

// Deactivate removes the constraint from solves without deleting it.
func (c *Constraint) Deactivate() { c.active = false }

// Activate puts a deactivated constraint back.
func (c *Constraint) Activate() { c.active = true }

// Violation returns how far the current values are outside the bounds.
func (c *Constraint) Violation() float64 {
	v := c.Body.Eval()
	return math.Max(0, math.Max(c.Lower-v, v-c.Upper))
}

func (c *Constraint) String() string {
	switch {
	case c.IsEquality():
		return fmt.Sprintf("%s: %s == %g", c.Name, c.Body, c.Upper)
	case c.HasLower() && c.HasUpper():
		return fmt.Sprintf("%s: %g <= %s <= %g", c.Name, c.Lower, c.Body, c.Upper)
	case c.HasUpper():
		return fmt.Sprintf("%s: %s <= %g", c.Name, c.Body, c.Upper)
	default:
		return fmt.Sprintf("%s: %s >= %g", c.Name, c.Body, c.Lower)
	}
}

// Objective is a named expression with a sense.
type Objective struct {
	Name  string
	Expr  Expr
	Sense Sense

	active bool
}

// Active reports whether the objective participates in solves.
func (o *Objective) Active() bool { return o.active }

// Deactivate disables the objective.
func (o *Objective) Deactivate() { o.active = false }

// Activate enables the objective.
func (o *Objective) Activate() { o.active = true }

// Model owns vars, uncertainty sets, constraints and objectives.
type Model struct {
	Name string

	sets    []*VarSet
	uncsets map[string]UncertaintySet
	cons    []*Constraint
	objs    []*Objective
	names   map[string]bool
}

// New creates an empty model.
func New(name string) *Model {
	return &Model{
		Name:    name,
		uncsets: make(map[string]UncertaintySet),
		names:   make(map[string]bool),
	}
}

// Has reports whether name is taken by a var collection, constraint or
// objective of m.
func (m *Model) Has(name string) bool { return m.names[name] }

// claim reserves name in the namespace shared by all components. Generated
// names go through UniqueName.
func (m *Model) claim(name string) {
	if m.names[name] {
		panic(fmt.Sprintf("model %s: component %q already exists", m.Name, name))
	}
	m.names[name] = true
}

// UniqueName returns base if unused, otherwise base_2, base_3, ...
func (m *Model) UniqueName(base string) string {
	if !m.names[base] {
		return base
	}
	for i := 2; ; i++ {
		n := base + "_" + strconv.Itoa(i)
		if !m.names[n] {
			return n
		}
	}
}

func (m *Model) addSet(s *VarSet, opts []VarOption) *VarSet {
	m.claim(s.Name)
	for _, opt := range opts {
		opt(s)
	}
	m.sets = append(m.sets, s)
	return s
}

// AddVar adds a scalar decision var. Like every Add method it panics when
// name is already taken.
func (m *Model) AddVar(name string, opts ...VarOption) *Var {
	return m.addSet(newVarSet(name, 1, Decision, true), opts).At(0)
}

// AddVars adds an indexed decision collection of length n.
func (m *Model) AddVars(name string, n int, opts ...VarOption) *VarSet {
	return m.addSet(newVarSet(name, n, Decision, false), opts)
}

// AddUncParam adds an uncertain parameter collection whose realizations lie
// in set. Values start at the nominal values.
func (m *Model) AddUncParam(name string, set UncertaintySet, nominal []float64, opts ...VarOption) *VarSet {
	s := newVarSet(name, len(nominal), Uncertain, false)
	for i, v := range s.Vars {
		v.Nominal = nominal[i]
		v.Value = nominal[i]
	}
	if set != nil {
		m.RegisterUncertaintySet(set)
		s.UncSet = set.Name()
	}
	return m.addSet(s, opts)
}

// AddAdjustable adds a wait-and-see collection that depends on the given
// uncertain collections.
func (m *Model) AddAdjustable(name string, n int, uncparams []*VarSet, opts ...VarOption) *VarSet {
	s := newVarSet(name, n, Adjustable, false)
	for _, p := range uncparams {
		s.UncParams = append(s.UncParams, p.Name)
	}
	return m.addSet(s, opts)
}

// RegisterUncertaintySet makes set available for lookup by name. Registering
// a different set under an existing name panics.
func (m *Model) RegisterUncertaintySet(set UncertaintySet) {
	if cur, ok := m.uncsets[set.Name()]; ok {
		if cur != set {
			panic(fmt.Sprintf("model %s: uncertainty set %q already registered", m.Name, set.Name()))
		}
		return
	}
	m.uncsets[set.Name()] = set
}

// UncertaintySet looks up a set by name.
func (m *Model) UncertaintySet(name string) (UncertaintySet, bool) {
	s, ok := m.uncsets[name]
	return s, ok
}

// UncertaintySetOf returns the set of an uncertain collection.
func (m *Model) UncertaintySetOf(param *VarSet) (UncertaintySet, error) {
	if param.Kind != Uncertain {
		return nil, fmt.Errorf("%s is not an uncertain parameter", param.Name)
	}
	if param.UncSet == "" {
		return nil, fmt.Errorf("no uncertainty set provided for uncertain parameter %s", param.Name)
	}
	s, ok := m.uncsets[param.UncSet]
	if !ok {
		return nil, fmt.Errorf("uncertainty set %s of parameter %s is not registered", param.UncSet, param.Name)
	}
	return s, nil
}

// AddConstraint adds an active constraint. It panics when name is already
// taken.
func (m *Model) AddConstraint(name string, r Relation) *Constraint {
	m.claim(name)
	c := NewConstraint(name, r)
	m.cons = append(m.cons, c)
	return c
}

// AddObjective adds an active objective. It panics when name is already
// taken.
func (m *Model) AddObjective(name string, e Expr, sense Sense) *Objective {
	m.claim(name)
	o := &Objective{Name: name, Expr: e, Sense: sense, active: true}
	m.objs = append(m.objs, o)
	return o
}

// VarSets returns all collections in creation order.
func (m *Model) VarSets() []*VarSet { return m.sets }

// VarSet looks up a collection by name.
func (m *Model) VarSet(name string) *VarSet {
	for _, s := range m.sets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Vars returns every var of every collection.
func (m *Model) Vars() []*Var {
	var out []*Var
	for _, s := range m.sets {
		out = append(out, s.Vars...)
	}
	return out
}

// Constraints returns all constraints, active or not.
func (m *Model) Constraints() []*Constraint { return m.cons }

// Constraint looks up a constraint by name.
func (m *Model) Constraint(name string) *Constraint {
	for _, c := range m.cons {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ActiveConstraints returns the constraints that take part in solves. The
// returned slice is a snapshot; adding constraints while iterating is safe.
func (m *Model) ActiveConstraints() []*Constraint {
	var out []*Constraint
	for _, c := range m.cons {
		if c.active {
			out = append(out, c)
		}
	}
	return out
}

// Objectives returns all objectives.
func (m *Model) Objectives() []*Objective { return m.objs }

// ActiveObjectives returns a snapshot of the active objectives.
func (m *Model) ActiveObjectives() []*Objective {
	var out []*Objective
	for _, o := range m.objs {
		if o.active {
			out = append(out, o)
		}
	}
	return out
}

// ErrNoObjective is returned when a model has no active objective.
var ErrNoObjective = errors.New("model has no active objective")

// Objective returns the single active objective.
func (m *Model) Objective() (*Objective, error) {
	active := m.ActiveObjectives()
	switch len(active) {
	case 0:
		return nil, ErrNoObjective
	case 1:
		return active[0], nil
	}
	return nil, fmt.Errorf("model %s has %d active objectives", m.Name, len(active))
}

// DeleteConstraint removes c from the model.
func (m *Model) DeleteConstraint(c *Constraint) {
	for i, cur := range m.cons {
		if cur == c {
			m.cons = append(m.cons[:i], m.cons[i+1:]...)
			delete(m.names, c.Name)
			return
		}
	}
}

// DeleteObjective removes o from the model.
func (m *Model) DeleteObjective(o *Objective) {
	for i, cur := range m.objs {
		if cur == o {
			m.objs = append(m.objs[:i], m.objs[i+1:]...)
			delete(m.names, o.Name)
			return
		}
	}
}

// DeleteVarSet removes a collection from the model. Expressions that still
// reference its vars keep working but the vars are no longer enumerated.
func (m *Model) DeleteVarSet(s *VarSet) {
	for i, cur := range m.sets {
		if cur == s {
			m.sets = append(m.sets[:i], m.sets[i+1:]...)
			delete(m.names, s.Name)
			return
		}
	}
}

// Statistics summarises the active part of a model.
type Statistics struct {
	Constraints int `json:"constraints"`
	Variables   int `json:"variables"`
	Binary      int `json:"binary"`
	Integer     int `json:"integer"`
	Continuous  int `json:"continuous"`
	Objectives  int `json:"objectives"`
}

// Stats counts the vars referenced by active relations.
func (m *Model) Stats() Statistics {
	st := Statistics{}
	seen := make(map[*Var]bool)
	count := func(e Expr) {
		for _, v := range Vars(e) {
			if seen[v] {
				continue
			}
			seen[v] = true
			st.Variables++
			switch v.Domain {
			case Binary:
				st.Binary++
			case Integers:
				st.Integer++
			default:
				st.Continuous++
			}
		}
	}
	for _, c := range m.ActiveConstraints() {
		st.Constraints++
		count(c.Body)
	}
	for _, o := range m.ActiveObjectives() {
		st.Objectives++
		count(o.Expr)
	}
	return st
}
