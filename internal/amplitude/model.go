package amplitude

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
)

// entry is the model's canonical record for one amplitude name.
type entry struct {
	src        *Amplitude
	name       string
	node       Node
	params     []string
	cachePos   int
	paramStart int
}

// Model is an incoherent sum of coherent sums of expressions, with one
// parameter table shared by every dataset it is loaded against.
//
// The amplitude table and expression trees are fixed at construction.
// Activation flags and parameter state change under mu; evaluations read
// them through a Snapshot.
type Model struct {
	amps   []entry
	index  map[string]int
	sums   []Expr
	groups []op

	slots   []nodeSlot
	slotsMu sync.Mutex

	mu     sync.RWMutex
	active []bool
	params *parameterTable
}

// NewModel builds a model from coherent sums. Each argument is one coherent
// sum; a Sum argument contributes its terms. Amplitudes are deduplicated by
// name and the first occurrence wins. Ref leaves may name an amplitude
// introduced anywhere in the model.
func NewModel(sums ...Expr) (*Model, error) {
	if len(sums) == 0 {
		return nil, ErrEmptyModel
	}
	m := &Model{index: make(map[string]int)}

	var refs []string
	for gi, g := range sums {
		if g == nil {
			return nil, fmt.Errorf("%w: coherent sum %d is nil", ErrInvalidAmplitude, gi)
		}
		var err error
		g.leaves(func(leaf Expr) {
			if err != nil {
				return
			}
			switch l := leaf.(type) {
			case *Amplitude:
				err = m.register(l)
			case ref:
				refs = append(refs, l.name)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	for _, name := range refs {
		if _, ok := m.index[name]; !ok {
			return nil, notFound(name)
		}
	}

	for _, g := range sums {
		if _, ok := g.(sumExpr); !ok {
			g = Sum(g)
		}
		compiled, err := compile(g, m.index)
		if err != nil {
			return nil, err
		}
		m.sums = append(m.sums, g)
		m.groups = append(m.groups, compiled)
	}

	m.active = make([]bool, len(m.amps))
	for i := range m.active {
		m.active[i] = true
	}
	m.slots = make([]nodeSlot, len(m.amps))
	for i := range m.amps {
		m.slots[i].node = m.amps[i].node
	}
	m.params = newParameterTable(m.amps)

	logger.Debug("model built", "amplitudes", len(m.amps), "coherent_sums", len(m.groups), "free_parameters", m.params.nFree)
	return m, nil
}

func (m *Model) register(a *Amplitude) error {
	if a == nil || a.node == nil || a.name == "" {
		return fmt.Errorf("%w: amplitude needs a name and a node", ErrInvalidAmplitude)
	}
	if i, ok := m.index[a.name]; ok {
		if m.amps[i].src != a && !sameNode(m.amps[i].node, a.node) {
			logger.Warn("amplitude name reused with a different node; keeping the first", "amplitude", a.name)
		}
		return nil
	}
	params := append([]string(nil), a.node.Parameters()...)
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p] {
			return fmt.Errorf("%w: %s declares parameter %q twice", ErrInvalidAmplitude, a.name, p)
		}
		seen[p] = true
	}
	start := 0
	if n := len(m.amps); n > 0 {
		start = m.amps[n-1].paramStart + len(m.amps[n-1].params)
	}
	m.index[a.name] = len(m.amps)
	m.amps = append(m.amps, entry{
		src:        a,
		name:       a.name,
		node:       a.node,
		params:     params,
		cachePos:   len(m.amps),
		paramStart: start,
	})
	return nil
}

func sameNode(a, b Node) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrAmplitudeNotFound, name)
}

// AmplitudeInfo describes one registered amplitude.
type AmplitudeInfo struct {
	Name                string   `json:"name"`
	Active              bool     `json:"active"`
	CachePosition       int      `json:"cache_position"`
	ParameterIndexStart int      `json:"parameter_index_start"`
	Parameters          []string `json:"parameters"`
}

// Amplitudes lists the registered amplitudes in registration order.
func (m *Model) Amplitudes() []AmplitudeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AmplitudeInfo, len(m.amps))
	for i, a := range m.amps {
		out[i] = m.info(i, a)
	}
	return out
}

// Amplitude describes the amplitude registered under name.
func (m *Model) Amplitude(name string) (AmplitudeInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[name]
	if !ok {
		return AmplitudeInfo{}, notFound(name)
	}
	return m.info(i, m.amps[i]), nil
}

func (m *Model) info(i int, a entry) AmplitudeInfo {
	return AmplitudeInfo{
		Name:                a.name,
		Active:              m.active[i],
		CachePosition:       a.cachePos,
		ParameterIndexStart: a.paramStart,
		Parameters:          append([]string(nil), a.params...),
	}
}

// IsActive reports whether the named amplitude is active.
func (m *Model) IsActive(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[name]
	if !ok {
		return false, notFound(name)
	}
	return m.active[i], nil
}

func (m *Model) lookup(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		i, ok := m.index[name]
		if !ok {
			return nil, notFound(name)
		}
		idx[k] = i
	}
	return idx, nil
}

func (m *Model) setActive(names []string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.lookup(names)
	if err != nil {
		return err
	}
	for _, i := range idx {
		m.active[i] = active
	}
	return nil
}

// Activate marks the named amplitudes active. Nothing changes if any name is unknown.
func (m *Model) Activate(names ...string) error { return m.setActive(names, true) }

// Deactivate marks the named amplitudes inactive. An inactive amplitude
// evaluates to zero and its node is not called.
func (m *Model) Deactivate(names ...string) error { return m.setActive(names, false) }

// ActivateAll marks every amplitude active.
func (m *Model) ActivateAll() { m.setAll(true) }

// DeactivateAll marks every amplitude inactive.
func (m *Model) DeactivateAll() { m.setAll(false) }

func (m *Model) setAll(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.active {
		m.active[i] = active
	}
}

// Isolate activates exactly the named amplitudes.
func (m *Model) Isolate(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := m.lookup(names)
	if err != nil {
		return err
	}
	for i := range m.active {
		m.active[i] = false
	}
	for _, i := range idx {
		m.active[i] = true
	}
	return nil
}

// NumSums returns the number of coherent sums.
func (m *Model) NumSums() int { return len(m.groups) }

func (m *Model) String() string {
	parts := make([]string, len(m.sums))
	for i, s := range m.sums {
		parts[i] = "|" + s.String() + "|^2"
	}
	return strings.Join(parts, " + ")
}

// PrintTree writes the expression trees of every coherent sum to w.
// Inactive amplitudes are prefixed with "!".
func (m *Model) PrintTree(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	for i, s := range m.sums {
		fmt.Fprintf(&b, "[ coherent sum %d ]\n", i)
		for k, t := range s.(sumExpr).terms {
			m.printExpr(&b, t, "", k == len(s.(sumExpr).terms)-1)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (m *Model) printExpr(b *strings.Builder, x Expr, indent string, last bool) {
	branch, next := "├─ ", "│  "
	if last {
		branch, next = "└─ ", "   "
	}
	b.WriteString(indent + branch)

	var children []Expr
	switch e := x.(type) {
	case *Amplitude:
		b.WriteString(m.leafLabel(e.name) + "\n")
	case ref:
		b.WriteString(m.leafLabel(e.name) + "\n")
	case realExpr:
		b.WriteString("Re\n")
		children = []Expr{e.x}
	case imagExpr:
		b.WriteString("Im\n")
		children = []Expr{e.x}
	case productExpr:
		b.WriteString("Product\n")
		children = e.factors
	case sumExpr:
		b.WriteString("Sum\n")
		children = e.terms
	}
	for k, c := range children {
		m.printExpr(b, c, indent+next, k == len(children)-1)
	}
}

func (m *Model) leafLabel(name string) string {
	i := m.index[name]
	label := name + "(" + strings.Join(m.amps[i].params, ", ") + ")"
	if !m.active[i] {
		label = "!" + label
	}
	return label
}
