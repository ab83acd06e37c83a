package solver

import (
	"fmt"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
)

// RowKind classifies the body of a compiled row.
type RowKind int

const (
	Linear RowKind = iota
	Quadratic
	Nonlinear
)

// Row is a compiled constraint Lower <= body <= Upper over problem columns.
type Row struct {
	Name  string
	Kind  RowKind
	Lower float64
	Upper float64

	// Coefs maps column index to linear coefficient; Const is the constant
	// term. Both are set for Linear and Quadratic rows.
	Coefs map[int]float64
	Const float64
	// Quad holds quadratic coefficients keyed by column pair with i <= j.
	Quad map[[2]int]float64
	// Body is the frozen expression, used for Nonlinear rows.
	Body model.Expr
	// Cols lists the columns the row depends on.
	Cols []int
}

// Problem is a model compiled against its unfixed decision vars. Fixed
// vars have been replaced by their values.
type Problem struct {
	Vars  []*model.Var
	Lower []float64
	Upper []float64
	Int   []bool

	Rows      []Row
	Objective Row
	Sense     model.Sense

	index map[*model.Var]int
}

// Compile turns the active part of m into a Problem. Uncertain parameters
// must have been transformed away.
func Compile(m *model.Model) (*Problem, error) {
	obj, err := m.Objective()
	if err != nil {
		return nil, err
	}
	p := &Problem{Sense: obj.Sense, index: make(map[*model.Var]int)}

	collect := func(e model.Expr) error {
		for _, v := range model.Vars(e) {
			if v.Fixed() {
				continue
			}
			if v.Kind() == model.Uncertain {
				return fmt.Errorf("model %s references uncertain parameter %s; apply a robust transformation first", m.Name, v.Name())
			}
			if _, ok := p.index[v]; ok {
				continue
			}
			lo, hi := v.EffectiveBounds()
			p.index[v] = len(p.Vars)
			p.Vars = append(p.Vars, v)
			p.Lower = append(p.Lower, lo)
			p.Upper = append(p.Upper, hi)
			p.Int = append(p.Int, v.Domain.IsDiscrete())
		}
		return nil
	}

	cons := m.ActiveConstraints()
	for _, c := range cons {
		if err := collect(c.Body); err != nil {
			return nil, err
		}
	}
	if err := collect(obj.Expr); err != nil {
		return nil, err
	}

	for _, c := range cons {
		row, err := p.compileRow(c.Name, c.Body, c.Lower, c.Upper)
		if err != nil {
			return nil, err
		}
		p.Rows = append(p.Rows, row)
	}
	p.Objective, err = p.compileRow(obj.Name, obj.Expr, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Problem) compileRow(name string, body model.Expr, lower, upper float64) (Row, error) {
	body = model.Freeze(body)
	row := Row{Name: name, Lower: lower, Upper: upper, Body: body}
	seen := make(map[int]bool)
	for _, v := range model.Vars(body) {
		j := p.index[v]
		if !seen[j] {
			seen[j] = true
			row.Cols = append(row.Cols, j)
		}
	}

	r := model.StandardRepn(body)
	if r.Nonlinear != nil {
		row.Kind = Nonlinear
		return row, nil
	}
	row.Coefs = make(map[int]float64, len(r.Linear))
	for _, t := range r.Linear {
		row.Coefs[p.index[t.Var]] += t.Coef.Eval()
	}
	row.Const = r.Constant.Eval()
	if len(r.Quadratic) == 0 {
		row.Kind = Linear
		return row, nil
	}
	row.Kind = Quadratic
	row.Quad = make(map[[2]int]float64, len(r.Quadratic))
	for _, t := range r.Quadratic {
		i, j := p.index[t.Var1], p.index[t.Var2]
		if i > j {
			i, j = j, i
		}
		row.Quad[[2]int{i, j}] += t.Coef.Eval()
	}
	return row, nil
}

// Index returns the column of v, or -1.
func (p *Problem) Index(v *model.Var) int {
	if j, ok := p.index[v]; ok {
		return j
	}
	return -1
}

// Set writes x into the var values.
func (p *Problem) Set(x []float64) {
	for j, v := range p.Vars {
		v.Value = x[j]
	}
}

// Values reads the current var values.
func (p *Problem) Values() []float64 {
	x := make([]float64, len(p.Vars))
	for j, v := range p.Vars {
		x[j] = v.Value
	}
	return x
}

// Eval computes the body of row at x. Nonlinear rows read the var values,
// which must have been set with Set.
func (r *Row) Eval(x []float64) float64 {
	switch r.Kind {
	case Linear, Quadratic:
		v := r.Const
		for j, a := range r.Coefs {
			v += a * x[j]
		}
		for k, q := range r.Quad {
			v += q * x[k[0]] * x[k[1]]
		}
		return v
	}
	return r.Body.Eval()
}

// Violation returns how far row is outside its bounds at x.
func (r *Row) Violation(x []float64) float64 {
	v := r.Eval(x)
	return math.Max(0, math.Max(r.Lower-v, v-r.Upper))
}

// Load writes a solution into the model and builds the value map.
func (p *Problem) Load(x []float64) map[*model.Var]float64 {
	values := make(map[*model.Var]float64, len(p.Vars))
	for j, v := range p.Vars {
		val := x[j]
		if p.Int[j] {
			val = math.Round(val)
		}
		v.Value = val
		values[v] = val
	}
	return values
}
