package reformulate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Transformation rewrites a model in place. Transformations only look at
// active relations, so applying one twice is a no-op.
type Transformation interface {
	Name() string
	Apply(m *model.Model) error
}

// Registry maps transformation names to instances. It is built explicitly
// and handed to the meta-solvers.
type Registry struct {
	mu     sync.RWMutex
	xforms map[string]Transformation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{xforms: make(map[string]Transformation)}
}

// Register adds or replaces t under its name.
func (r *Registry) Register(t Transformation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xforms[t.Name()] = t
}

// Get returns the transformation registered under name.
func (r *Registry) Get(name string) (Transformation, error) {
	r.mu.RLock()
	t, ok := r.xforms[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transformation %q (available: %v)", name, r.Names())
	}
	return t, nil
}

// Apply runs the named transformation on m.
func (r *Registry) Apply(name string, m *model.Model) error {
	t, err := r.Get(name)
	if err != nil {
		return err
	}
	return t.Apply(m)
}

// Names lists registered transformations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.xforms))
	for n := range r.xforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Options select between the variants of the counterpart transformations.
type Options struct {
	// Root writes ellipsoidal counterparts with an explicit square root
	// instead of a padding variable.
	Root bool
	// GenericDual derives polyhedral duals from the set relations instead of
	// the cached matrix.
	GenericDual bool
	// InitializeWolfe starts warped GP multipliers at a consistent value.
	InitializeWolfe bool
}

// Transformation names.
const (
	NamePolyhedral  = "romodel.polyhedral"
	NameEllipsoidal = "romodel.ellipsoidal"
	NameGP          = "romodel.gp"
	NameWarpedGP    = "romodel.warpedgp"
	NameNominal     = "romodel.nominal"
	NameUnknown     = "romodel.unknown"
)

// Register adds the counterpart transformations configured by opts to r.
func (o Options) Register(r *Registry) {
	r.Register(&Polyhedral{Generic: o.GenericDual})
	r.Register(&Ellipsoidal{Root: o.Root})
	r.Register(&GP{})
	r.Register(&WarpedGP{InitializeWolfe: o.InitializeWolfe})
	r.Register(&Nominal{})
	r.Register(&Unknown{})
}

// Counterparts is the order in which the reformulation path applies the
// geometry-specific transformations.
var Counterparts = []string{NameEllipsoidal, NamePolyhedral, NameGP, NameWarpedGP, NameUnknown}

// each applies fn to every target whose geometry match accepts. The target
// list is computed up front, so relations created by fn are not revisited.
func each(m *model.Model, match func(uncset.Geometry) bool, fn func(*Target, uncset.Geometry) error) error {
	targets, err := Targets(m)
	if err != nil {
		return err
	}
	for _, t := range targets {
		g, err := t.Geometry()
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		if !match(g) {
			continue
		}
		if err := CheckConstraint(t); err != nil {
			return err
		}
		if err := fn(t, g); err != nil {
			return err
		}
		t.Deactivate()
	}
	return nil
}
