package amplitude

import (
	"strings"
)

// Expr is a node of the expression algebra: an amplitude leaf, a real or
// imaginary projection, a product, or a sum.
type Expr interface {
	String() string
	leaves(fn func(leaf Expr))
}

// Amplitude is a named Node. Within a model the name identifies the
// amplitude: every leaf with the same name shares one cache and one
// parameter block.
type Amplitude struct {
	name string
	node Node
}

// New wraps node under name.
func New(name string, node Node) *Amplitude {
	return &Amplitude{name: name, node: node}
}

// Name returns the amplitude name.
func (a *Amplitude) Name() string { return a.name }

// Node returns the wrapped node.
func (a *Amplitude) Node() Node { return a.node }

// Real projects the amplitude onto its real part.
func (a *Amplitude) Real() Expr { return Real(a) }

// Imag projects the amplitude onto its imaginary part.
func (a *Amplitude) Imag() Expr { return Imag(a) }

// Mul multiplies the amplitude by other expressions.
func (a *Amplitude) Mul(others ...Expr) Expr { return Product(append([]Expr{a}, others...)...) }

// Add adds other expressions to the amplitude.
func (a *Amplitude) Add(others ...Expr) Expr { return Sum(append([]Expr{a}, others...)...) }

func (a *Amplitude) String() string {
	return a.name + "(" + strings.Join(a.node.Parameters(), ", ") + ")"
}

func (a *Amplitude) leaves(fn func(Expr)) { fn(a) }

type ref struct{ name string }

// Ref refers to an amplitude registered elsewhere in the same model by name.
func Ref(name string) Expr { return ref{name: name} }

func (r ref) String() string       { return r.name }
func (r ref) leaves(fn func(Expr)) { fn(r) }

type realExpr struct{ x Expr }

// Real lifts the real part of x to a complex value with zero imaginary part.
func Real(x Expr) Expr { return realExpr{x: x} }

func (e realExpr) String() string       { return "Re[" + e.x.String() + "]" }
func (e realExpr) leaves(fn func(Expr)) { e.x.leaves(fn) }

type imagExpr struct{ x Expr }

// Imag lifts the imaginary part of x to a complex value with zero imaginary part.
func Imag(x Expr) Expr { return imagExpr{x: x} }

func (e imagExpr) String() string       { return "Im[" + e.x.String() + "]" }
func (e imagExpr) leaves(fn func(Expr)) { e.x.leaves(fn) }

type productExpr struct{ factors []Expr }

// Product multiplies its factors left to right. Nested products are
// flattened. An empty product is 1.
func Product(factors ...Expr) Expr {
	flat := make([]Expr, 0, len(factors))
	for _, f := range factors {
		if p, ok := f.(productExpr); ok {
			flat = append(flat, p.factors...)
			continue
		}
		flat = append(flat, f)
	}
	return productExpr{factors: flat}
}

func (e productExpr) String() string { return join(e.factors, " * ", "1") }

func (e productExpr) leaves(fn func(Expr)) {
	for _, f := range e.factors {
		f.leaves(fn)
	}
}

type sumExpr struct{ terms []Expr }

// Sum adds its terms. Nested sums are flattened. An empty sum is 0.
func Sum(terms ...Expr) Expr {
	flat := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if s, ok := t.(sumExpr); ok {
			flat = append(flat, s.terms...)
			continue
		}
		flat = append(flat, t)
	}
	return sumExpr{terms: flat}
}

func (e sumExpr) String() string { return join(e.terms, " + ", "0") }

func (e sumExpr) leaves(fn func(Expr)) {
	for _, t := range e.terms {
		t.leaves(fn)
	}
}

func join(xs []Expr, sep, empty string) string {
	if len(xs) == 0 {
		return empty
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
		if _, ok := x.(sumExpr); ok && sep == " * " {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}

type opKind uint8

const (
	opAmp opKind = iota
	opReal
	opImag
	opProduct
	opSum
)

// op is an expression compiled against a model's amplitude table.
type op struct {
	kind opKind
	amp  int
	args []op
}

func (o *op) eval(vals []complex128) complex128 {
	switch o.kind {
	case opAmp:
		return vals[o.amp]
	case opReal:
		return complex(real(o.args[0].eval(vals)), 0)
	case opImag:
		return complex(imag(o.args[0].eval(vals)), 0)
	case opProduct:
		acc := complex(1, 0)
		for i := range o.args {
			acc *= o.args[i].eval(vals)
		}
		return acc
	default:
		var acc complex128
		for i := range o.args {
			acc += o.args[i].eval(vals)
		}
		return acc
	}
}

// compile resolves every leaf through index.
func compile(x Expr, index map[string]int) (op, error) {
	switch e := x.(type) {
	case *Amplitude:
		return op{kind: opAmp, amp: index[e.name]}, nil
	case ref:
		i, ok := index[e.name]
		if !ok {
			return op{}, notFound(e.name)
		}
		return op{kind: opAmp, amp: i}, nil
	case realExpr:
		arg, err := compile(e.x, index)
		return op{kind: opReal, args: []op{arg}}, err
	case imagExpr:
		arg, err := compile(e.x, index)
		return op{kind: opImag, args: []op{arg}}, err
	case productExpr:
		args, err := compileAll(e.factors, index)
		return op{kind: opProduct, args: args}, err
	case sumExpr:
		args, err := compileAll(e.terms, index)
		return op{kind: opSum, args: args}, err
	}
	return op{}, ErrInvalidAmplitude
}

func compileAll(xs []Expr, index map[string]int) ([]op, error) {
	out := make([]op, len(xs))
	for i, x := range xs {
		o, err := compile(x, index)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}
