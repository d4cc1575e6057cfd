package param

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownParameter is returned when a name is not part of a list.
var ErrUnknownParameter = errors.New("unknown parameter")

// Parameter is a named scalar with an optional bound constraint.
type Parameter struct {
	Name       string
	Value      float64
	Constraint *Interval
}

// New creates a parameter, checking the value against the constraint.
func New(name string, value float64, c *Interval) (Parameter, error) {
	p := Parameter{Name: name, Value: value, Constraint: c}
	if name == "" {
		return p, errors.New("parameter name cannot be empty")
	}
	return p, p.Check(value)
}

// Check returns a *ConstraintError if v is not admissible for p.
func (p Parameter) Check(v float64) error {
	if !p.Constraint.Contains(v) {
		return &ConstraintError{Name: p.Name, Value: v, Constraint: p.Constraint}
	}
	return nil
}

// List is an ordered collection of parameters with unique names.
type List struct {
	items []Parameter
	index map[string]int
}

// NewList builds a list; names must be unique.
func NewList(ps ...Parameter) (*List, error) {
	l := &List{index: make(map[string]int, len(ps))}
	for _, p := range ps {
		if err := l.Add(p); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// MustList is like NewList but panics on error.
func MustList(ps ...Parameter) *List {
	l, err := NewList(ps...)
	if err != nil {
		panic(err)
	}
	return l
}

// Add appends p to the list.
func (l *List) Add(p Parameter) error {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[p.Name]; ok {
		return fmt.Errorf("duplicate parameter name: %s", p.Name)
	}
	if err := p.Check(p.Value); err != nil {
		return err
	}
	l.index[p.Name] = len(l.items)
	l.items = append(l.items, p)
	return nil
}

// Len returns the number of parameters.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns a copy of the i-th parameter.
func (l *List) At(i int) Parameter {
	return l.items[i]
}

// Index returns the position of name, or -1.
func (l *List) Index(name string) int {
	if i, ok := l.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether name is in the list.
func (l *List) Has(name string) bool {
	return l.Index(name) >= 0
}

// Get returns the parameter called name.
func (l *List) Get(name string) (Parameter, bool) {
	i := l.Index(name)
	if i < 0 {
		return Parameter{}, false
	}
	return l.items[i], true
}

// Value returns the value of the parameter called name.
func (l *List) Value(name string) (float64, error) {
	i := l.Index(name)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return l.items[i].Value, nil
}

// Names returns the parameter names in order.
func (l *List) Names() []string {
	names := make([]string, len(l.items))
	for i, p := range l.items {
		names[i] = p.Name
	}
	return names
}

// Values returns the parameter values in order.
func (l *List) Values() []float64 {
	vs := make([]float64, len(l.items))
	for i, p := range l.items {
		vs[i] = p.Value
	}
	return vs
}

// SetValue sets the i-th value after checking its constraint.
func (l *List) SetValue(i int, v float64) error {
	if err := l.items[i].Check(v); err != nil {
		return err
	}
	l.items[i].Value = v
	return nil
}

// SetValueByName sets the value of the parameter called name.
func (l *List) SetValueByName(name string, v float64) error {
	i := l.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return l.SetValue(i, v)
}

// SetValues sets all values in order. Nothing is changed on error.
func (l *List) SetValues(vs []float64) error {
	if len(vs) != len(l.items) {
		return fmt.Errorf("expected %d values, got %d", len(l.items), len(vs))
	}
	for i, v := range vs {
		if err := l.items[i].Check(v); err != nil {
			return err
		}
	}
	for i, v := range vs {
		l.items[i].Value = v
	}
	return nil
}

// Clone returns a deep copy. Constraints are shared since they are immutable.
func (l *List) Clone() *List {
	c := &List{
		items: make([]Parameter, len(l.items)),
		index: make(map[string]int, len(l.items)),
	}
	copy(c.items, l.items)
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}

// Subset returns a new list holding copies of the named parameters, in the given order.
func (l *List) Subset(names ...string) (*List, error) {
	s := &List{index: make(map[string]int, len(names))}
	for _, name := range names {
		p, ok := l.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Match copies the values of other into l for every name of other.
// It fails without modifying l if other names an unknown parameter or a value is not admissible.
// changed reports whether any value differs from the previous one.
func (l *List) Match(other *List) (changed bool, err error) {
	idx := make([]int, other.Len())
	for k, p := range other.items {
		i := l.Index(p.Name)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", ErrUnknownParameter, p.Name)
		}
		if err := l.items[i].Check(p.Value); err != nil {
			return false, err
		}
		idx[k] = i
	}
	for k, p := range other.items {
		i := idx[k]
		if l.items[i].Value != p.Value {
			changed = true
			l.items[i].Value = p.Value
		}
	}
	return changed, nil
}

// SameValues reports whether other has the same names and values, in the same order.
func (l *List) SameValues(other *List) bool {
	if l.Len() != other.Len() {
		return false
	}
	for i, p := range l.items {
		q := other.items[i]
		if p.Name != q.Name || p.Value != q.Value {
			return false
		}
	}
	return true
}

func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range l.items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%g", p.Name, p.Value)
	}
	b.WriteByte('}')
	return b.String()
}
