package model

import "errors"

// Errors raised while reformulating uncertain relations. They are wrapped
// with context, use errors.Is to test for them.
var (
	ErrNonLinearInUncertainty                = errors.New("relation is not linear in its uncertain parameters")
	ErrMultipleUncertainParameterCollections = errors.New("relation references more than one uncertain parameter collection")
	ErrUnsupportedEquality                   = errors.New("uncertain parameters cannot appear in equality constraints unless the constraint also contains adjustable variables")
	ErrUnsupportedBothBounds                 = errors.New("uncertain relation has both an upper and a lower bound")
	ErrEmptyUncertaintySet                   = errors.New("uncertainty set does not have any constraints")
	ErrUnknownGeometry                       = errors.New("Cannot reformulate UncSet with unknown geometry")
	ErrNonVanishingConstant                  = errors.New("decision rule leaves a non-zero numeric constant")
	ErrSeparationFailed                      = errors.New("separation problem did not terminate optimally")
)
