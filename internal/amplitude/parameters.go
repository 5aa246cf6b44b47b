package amplitude

import (
	"encoding/json"
	"fmt"
	"math"
)

// Bounds is a closed interval for a free parameter. Infinite ends mean unbounded.
type Bounds struct {
	Lower float64
	Upper float64
}

// Unbounded is the default for every parameter.
var Unbounded = Bounds{Lower: math.Inf(-1), Upper: math.Inf(1)}

// MarshalJSON encodes bounds as a two-element array with null for infinite ends.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*float64{finiteOrNil(b.Lower), finiteOrNil(b.Upper)})
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var raw [2]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Unbounded
	if raw[0] != nil {
		b.Lower = *raw[0]
	}
	if raw[1] != nil {
		b.Upper = *raw[1]
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Parameter describes one (amplitude, parameter) pair.
// Index is the free slot (-1 when fixed); FixedIndex numbers fixed groups (-1 when free).
// For a fixed parameter Initial is the value passed to the node.
type Parameter struct {
	Amplitude  string  `json:"amplitude"`
	Name       string  `json:"name"`
	Index      int     `json:"index"`
	FixedIndex int     `json:"fixed_index"`
	Free       bool    `json:"free"`
	Fixed      bool    `json:"fixed"`
	Initial    float64 `json:"initial"`
	Bounds     Bounds  `json:"bounds"`
}

type paramKey struct{ amp, name string }

type classState struct {
	fixed   bool
	initial float64
	bounds  Bounds
}

// parameterTable is a disjoint-set forest over (amplitude, parameter) pairs.
// Every class has one state held at its root, and the root is always the
// lowest-registered member. root, slot and fixedSlot are recomputed after each
// mutation so readers never touch the forest.
type parameterTable struct {
	keys   []paramKey
	lookup map[paramKey]int
	parent []int
	state  map[int]*classState

	root      []int
	slot      []int
	fixedSlot []int
	nFree     int
	nFixed    int
	// free slot -> representative entry
	freeRep  []int
	fixedRep []int
}

func newParameterTable(amps []entry) *parameterTable {
	t := &parameterTable{
		lookup: make(map[paramKey]int),
		state:  make(map[int]*classState),
	}
	for _, a := range amps {
		for _, p := range a.params {
			k := paramKey{amp: a.name, name: p}
			i := len(t.keys)
			t.keys = append(t.keys, k)
			t.lookup[k] = i
			t.parent = append(t.parent, i)
			t.state[i] = &classState{bounds: Unbounded}
		}
	}
	t.reindex()
	return t
}

func (t *parameterTable) find(i int) int {
	for t.parent[i] != i {
		t.parent[i] = t.parent[t.parent[i]]
		i = t.parent[i]
	}
	return i
}

func (t *parameterTable) get(amp, name string) (int, error) {
	i, ok := t.lookup[paramKey{amp: amp, name: name}]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrParameterNotFound, amp, name)
	}
	return i, nil
}

func (t *parameterTable) class(i int) *classState { return t.state[t.root[i]] }

// union merges the classes of i and j. When exactly one class is fixed the
// merged class stays fixed at that value; otherwise the state of the class
// with the lower-registered root is kept.
func (t *parameterTable) union(i, j int) {
	ri, rj := t.find(i), t.find(j)
	if ri == rj {
		return
	}
	lo, hi := ri, rj
	if hi < lo {
		lo, hi = hi, lo
	}
	if t.state[hi].fixed && !t.state[lo].fixed {
		t.state[lo] = t.state[hi]
	}
	t.parent[hi] = lo
	delete(t.state, hi)
	t.reindex()
}

// reindex assigns free slots and fixed indices in order of each class's
// lowest-registered member.
func (t *parameterTable) reindex() {
	n := len(t.keys)
	t.root = make([]int, n)
	t.slot = make([]int, n)
	t.fixedSlot = make([]int, n)
	t.freeRep = t.freeRep[:0]
	t.fixedRep = t.fixedRep[:0]
	assigned := make(map[int]int)
	for i := 0; i < n; i++ {
		r := t.find(i)
		t.root[i] = r
		s, ok := assigned[r]
		if !ok {
			if t.state[r].fixed {
				s = len(t.fixedRep)
				t.fixedRep = append(t.fixedRep, i)
			} else {
				s = len(t.freeRep)
				t.freeRep = append(t.freeRep, i)
			}
			assigned[r] = s
		}
		if t.state[r].fixed {
			t.slot[i], t.fixedSlot[i] = -1, s
		} else {
			t.slot[i], t.fixedSlot[i] = s, -1
		}
	}
	t.nFree = len(t.freeRep)
	t.nFixed = len(t.fixedRep)
}

func (t *parameterTable) describe(i int) Parameter {
	st := t.class(i)
	return Parameter{
		Amplitude:  t.keys[i].amp,
		Name:       t.keys[i].name,
		Index:      t.slot[i],
		FixedIndex: t.fixedSlot[i],
		Free:       !st.fixed,
		Fixed:      st.fixed,
		Initial:    st.initial,
		Bounds:     st.bounds,
	}
}

// expand maps a free vector onto one value per registered parameter.
func (t *parameterTable) expand(free, out []float64) {
	for i := range t.keys {
		if s := t.slot[i]; s >= 0 {
			out[i] = free[s]
		} else {
			out[i] = t.class(i).initial
		}
	}
}

// Fix removes the parameter's class from the free vector and passes value to
// every member from now on.
func (m *Model) Fix(amplitude, parameter string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.params.get(amplitude, parameter)
	if err != nil {
		return err
	}
	st := m.params.class(i)
	st.fixed = true
	st.initial = value
	m.params.reindex()
	return nil
}

// Free returns the parameter's class to the free vector with the given
// initial value.
func (m *Model) Free(amplitude, parameter string, initial float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.params.get(amplitude, parameter)
	if err != nil {
		return err
	}
	st := m.params.class(i)
	st.fixed = false
	st.initial = initial
	m.params.reindex()
	return nil
}

// Constrain makes two parameters share one value. Constraints are
// transitive and apply to every member of both classes.
func (m *Model) Constrain(amplitude1, parameter1, amplitude2, parameter2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.params.get(amplitude1, parameter1)
	if err != nil {
		return err
	}
	j, err := m.params.get(amplitude2, parameter2)
	if err != nil {
		return err
	}
	m.params.union(i, j)
	return nil
}

// SetBounds sets the bounds of the parameter's class. Bounds are metadata
// for minimizers and are not enforced during evaluation.
func (m *Model) SetBounds(amplitude, parameter string, lower, upper float64) error {
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return fmt.Errorf("%w: [%g, %g]", ErrInvalidBounds, lower, upper)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.params.get(amplitude, parameter)
	if err != nil {
		return err
	}
	m.params.class(i).bounds = Bounds{Lower: lower, Upper: upper}
	return nil
}

// SetInitial sets the initial value of the parameter's class. For a fixed
// class this changes the fixed value.
func (m *Model) SetInitial(amplitude, parameter string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.params.get(amplitude, parameter)
	if err != nil {
		return err
	}
	m.params.class(i).initial = value
	return nil
}

// Parameter describes one parameter.
func (m *Model) Parameter(amplitude, parameter string) (Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, err := m.params.get(amplitude, parameter)
	if err != nil {
		return Parameter{}, err
	}
	return m.params.describe(i), nil
}

// Parameters describes every registered parameter in registration order.
func (m *Model) Parameters() []Parameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Parameter, len(m.params.keys))
	for i := range out {
		out[i] = m.params.describe(i)
	}
	return out
}

// FreeParameters describes one representative per free slot, in slot order.
func (m *Model) FreeParameters() []Parameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Parameter, len(m.params.freeRep))
	for s, i := range m.params.freeRep {
		out[s] = m.params.describe(i)
	}
	return out
}

// FixedParameters describes one representative per fixed group.
func (m *Model) FixedParameters() []Parameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Parameter, len(m.params.fixedRep))
	for s, i := range m.params.fixedRep {
		out[s] = m.params.describe(i)
	}
	return out
}

// FreeParameterNames returns "amplitude.parameter" for each free slot.
func (m *Model) FreeParameterNames() []string {
	free := m.FreeParameters()
	out := make([]string, len(free))
	for i, p := range free {
		out[i] = p.Amplitude + "." + p.Name
	}
	return out
}

// NFree returns the length of the free parameter vector.
func (m *Model) NFree() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params.nFree
}

// Initial returns the initial value of each free slot.
func (m *Model) Initial() []float64 {
	free := m.FreeParameters()
	out := make([]float64, len(free))
	for i, p := range free {
		out[i] = p.Initial
	}
	return out
}

// Bounds returns the bounds of each free slot.
func (m *Model) Bounds() []Bounds {
	free := m.FreeParameters()
	out := make([]Bounds, len(free))
	for i, p := range free {
		out[i] = p.Bounds
	}
	return out
}
