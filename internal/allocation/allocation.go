package allocation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Epsilon is the tolerance applied when checking that weights sum to 1.
const Epsilon = 1e-6

// Role tells which family of agents issues an operation.
type Role int

const (
	// RoleRead marks aggregation (query) operations.
	RoleRead Role = iota
	// RoleWrite marks editorial (insert/update/delete) operations.
	RoleWrite
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "aggregation"
	case RoleWrite:
		return "editorial"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Kind identifies one configured operation type.
type Kind struct {
	Index int
	Name  string
	Role  Role
}

func (k Kind) String() string {
	return k.Name
}

// Table is an immutable weighted distribution over operation kinds.
// It holds no mutable state, so a single Table can be shared by any number of agents.
type Table struct {
	role       Role
	kinds      []Kind
	weights    []float64
	cumulative []float64
}

// NewTable builds a table from parallel slices of kind names and weights.
func NewTable(role Role, names []string, weights []float64) (*Table, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("%s allocation: no operation kinds", role)
	}
	if len(names) != len(weights) {
		return nil, errors.Errorf("%s allocation: %d kinds but %d weights", role, len(names), len(weights))
	}

	t := &Table{
		role:       role,
		kinds:      make([]Kind, len(names)),
		weights:    make([]float64, len(weights)),
		cumulative: make([]float64, len(weights)),
	}

	sum := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.Errorf("%s allocation: invalid weight %v for %s", role, w, names[i])
		}
		sum += w
		t.kinds[i] = Kind{Index: i, Name: names[i], Role: role}
		t.weights[i] = w
		t.cumulative[i] = sum
	}
	if math.Abs(sum-1.0) > Epsilon {
		return nil, errors.Errorf("%s allocation: weights sum to %.6f, expected 1.0", role, sum)
	}
	return t, nil
}

// Parse reads the comma separated weights format used by definition files,
// e.g. "0.8,0.1,0.1".
func Parse(role Role, names []string, weights string) (*Table, error) {
	parts := strings.Split(weights, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s allocation: parsing weight %q", role, p)
		}
		values = append(values, v)
	}
	return NewTable(role, names, values)
}

// Role returns the role shared by every kind in the table.
func (t *Table) Role() Role {
	return t.role
}

// Kinds returns the kinds in table order.
func (t *Table) Kinds() []Kind {
	out := make([]Kind, len(t.kinds))
	copy(out, t.kinds)
	return out
}

// Weight returns the configured weight of the kind at index i.
func (t *Table) Weight(i int) float64 {
	return t.weights[i]
}

// Lookup finds a kind by name.
func (t *Table) Lookup(name string) (Kind, bool) {
	for _, k := range t.kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// Allocate draws a kind using the package level random source, which is safe for
// concurrent use.
func (t *Table) Allocate() Kind {
	return t.pick(rand.Float64())
}

// AllocateWith draws a kind using the caller's random source. The source is not
// shared, so agents pass their own.
func (t *Table) AllocateWith(r *rand.Rand) Kind {
	return t.pick(r.Float64())
}

func (t *Table) pick(u float64) Kind {
	i := sort.Search(len(t.cumulative), func(i int) bool {
		return t.cumulative[i] > u
	})
	if i == len(t.kinds) {
		// u landed in the rounding gap above the last breakpoint
		i = len(t.kinds) - 1
	}
	return t.kinds[i]
}
