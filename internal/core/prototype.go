package core

import (
	"errors"
	"fmt"
	"sort"
)

// SequencePrototype is the prototype name given to plain []any sources when a
// prototype of that name is registered.
const SequencePrototype = "Array"

// ErrUnknownMethod is returned by Entity.Invoke for a name the entity's
// prototype does not define.
var ErrUnknownMethod = errors.New("unknown method")

// Method is one capability of a prototype. It runs against the entity's
// current data; whatever it mutates is tracked for dirty checks and saves.
type Method func(d *Data, args ...any) (any, error)

// Prototype is a named capability set. Name is the tag stored alongside
// serialized data and used to re-attach methods on reload.
type Prototype struct {
	Name    string
	Shape   Shape
	Methods map[string]Method
	// Validate, when set, runs once against freshly constructed data. Its
	// error is returned to the caller unchanged.
	Validate func(d *Data) error
}

// Registry maps prototype names to capability sets. It is populated while a
// Synchronizer is built and read-only afterwards.
type Registry struct {
	byName map[string]*Prototype
	order  []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Prototype)}
}

// Register adds a prototype. Names must be unique and non-empty.
func (r *Registry) Register(p Prototype) error {
	if p.Name == "" {
		return fmt.Errorf("prototype name required")
	}
	if _, exists := r.byName[p.Name]; exists {
		return fmt.Errorf("prototype %s already registered", p.Name)
	}
	methods := make(map[string]Method, len(p.Methods))
	for name, m := range p.Methods {
		if m == nil {
			return fmt.Errorf("prototype %s: method %s is nil", p.Name, name)
		}
		methods[name] = m
	}
	cp := p
	cp.Methods = methods
	r.byName[p.Name] = &cp
	r.order = append(r.order, p.Name)
	return nil
}

// Lookup returns the prototype registered under name.
func (r *Registry) Lookup(name string) (*Prototype, bool) {
	if name == "" {
		return nil, false
	}
	p, ok := r.byName[name]
	return p, ok
}

// NameOf returns the registered tag for p, or false when p (by name) is not
// registered.
func (r *Registry) NameOf(p Prototype) (string, bool) {
	if _, ok := r.byName[p.Name]; !ok {
		return "", false
	}
	return p.Name, true
}

// Names lists registered prototypes in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// MethodNames returns the sorted method names of a prototype.
func (p *Prototype) MethodNames() []string {
	out := make([]string, 0, len(p.Methods))
	for name := range p.Methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
