package personality

import (
	"fmt"
	"math"
	"sort"

	"github.com/dotsetgreg/dotpersona/pkg/config"
)

// Dimension names one axis of the personality vector.
type Dimension string

const (
	Formality      Dimension = "formality"
	Enthusiasm     Dimension = "enthusiasm"
	Humor          Dimension = "humor"
	TechnicalDepth Dimension = "technical_depth"
	Empathy        Dimension = "empathy"
	Verbosity      Dimension = "verbosity"
)

// Dimensions is the closed dimension set in canonical order.
var Dimensions = []Dimension{Formality, Enthusiasm, Humor, TechnicalDepth, Empathy, Verbosity}

// DefaultValue is the starting value of every dimension.
const DefaultValue = 0.5

func IsDimension(name string) bool {
	for _, d := range Dimensions {
		if string(d) == name {
			return true
		}
	}
	return false
}

type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bound) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return b.Min
	}
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Bounds holds per-dimension limits. Missing dimensions use [0,1].
type Bounds map[Dimension]Bound

func DefaultBounds() Bounds {
	out := make(Bounds, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = Bound{Min: 0, Max: 1}
	}
	return out
}

func (b Bounds) For(d Dimension) Bound {
	if bound, ok := b[d]; ok {
		return bound
	}
	return Bound{Min: 0, Max: 1}
}

// BoundsFromConfig converts string-keyed config bounds, rejecting unknown names.
func BoundsFromConfig(raw map[string]config.Bounds) (Bounds, error) {
	out := DefaultBounds()
	for name, b := range raw {
		if !IsDimension(name) {
			return nil, fmt.Errorf("unknown personality dimension %q", name)
		}
		out[Dimension(name)] = Bound{Min: b.Min, Max: b.Max}
	}
	return out, nil
}

// Vector maps every dimension to a value inside its bounds.
type Vector map[Dimension]float64

func DefaultVector() Vector {
	v := make(Vector, len(Dimensions))
	for _, d := range Dimensions {
		v[d] = DefaultValue
	}
	return v
}

// Normalize fills missing dimensions, drops unknown ones, and clamps values.
func (v Vector) Normalize(bounds Bounds) Vector {
	out := make(Vector, len(Dimensions))
	for _, d := range Dimensions {
		val, ok := v[d]
		if !ok {
			val = DefaultValue
		}
		out[d] = bounds.For(d).Clamp(val)
	}
	return out
}

func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Get returns the value of d, or DefaultValue when absent.
func (v Vector) Get(d Dimension) float64 {
	if val, ok := v[d]; ok {
		return val
	}
	return DefaultValue
}

// Deltas maps a dimension to the change applied on one turn. Only changes
// above the dead-band are present.
type Deltas map[Dimension]float64

// Magnitude is the L1 norm of the deltas.
func (d Deltas) Magnitude() float64 {
	total := 0.0
	for _, val := range d {
		total += math.Abs(val)
	}
	return total
}

func (d Deltas) Clone() Deltas {
	out := make(Deltas, len(d))
	for k, val := range d {
		out[k] = val
	}
	return out
}

// Sorted returns dimensions with a delta, in canonical order.
func (d Deltas) Sorted() []Dimension {
	out := make([]Dimension, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	order := map[Dimension]int{}
	for i, dim := range Dimensions {
		order[dim] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
