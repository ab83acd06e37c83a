package model

// FixGuard temporarily changes the fixed state of a group of vars and puts the
// previous state back on Restore. Use it with defer so that every exit path,
// including a failed extraction, leaves the model untouched.
type FixGuard struct {
	saved    []savedFix
	restored bool
}

type savedFix struct {
	v     *Var
	fixed bool
}

// FixAllExcept fixes every var for which free returns false and unfixes the
// others.
func FixAllExcept(vars []*Var, free func(*Var) bool) *FixGuard {
	g := &FixGuard{saved: make([]savedFix, 0, len(vars))}
	for _, v := range vars {
		g.saved = append(g.saved, savedFix{v: v, fixed: v.fixed})
		v.fixed = !free(v)
	}
	return g
}

// Restore puts back the fixed state recorded at construction. Calling it more
// than once is a no-op.
func (g *FixGuard) Restore() {
	if g.restored {
		return
	}
	for i := len(g.saved) - 1; i >= 0; i-- {
		g.saved[i].v.fixed = g.saved[i].fixed
	}
	g.restored = true
}
