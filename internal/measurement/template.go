package measurement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ColumnType describes how a custom record column is entered.
type ColumnType string

const (
	ColumnText  ColumnType = "text"
	ColumnFloat ColumnType = "float"
	ColumnInt   ColumnType = "int"
)

// Template is the capability contract of a custom measurement type. Records
// are rows of raw cell strings; userData carries item level settings.
type Template interface {
	Name() string
	// Arity is the number of itemno slots the template bills to.
	Arity() int
	Captions() []string
	ColumnTypes() []ColumnType
	// Render formats a cell for display.
	Render(column int, value string) string
	// RecordTotal returns one value per itemno slot for a single record.
	RecordTotal(record []string, userData map[string]string) ([]decimal.Decimal, error)
	// Total returns one value per itemno slot for all records.
	Total(records [][]string, userData map[string]string) ([]decimal.Decimal, error)
	// ExportAbstract reshapes the records into a brought-forward row.
	ExportAbstract(records [][]string, userData map[string]string) (string, []decimal.Decimal, error)
}

// Registry resolves custom templates by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry builds a registry holding templates.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a template, refusing duplicate names.
func (r *Registry) Register(t Template) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("measurement: template name required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.templates == nil {
		r.templates = make(map[string]Template)
	}
	if _, ok := r.templates[t.Name()]; ok {
		return fmt.Errorf("measurement: template %q already registered", t.Name())
	}
	r.templates[t.Name()] = t
	return nil
}

// Lookup returns the template registered as name.
func (r *Registry) Lookup(name string) (Template, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Names lists registered template names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// guard runs a template function, converting errors and panics into
// ErrTemplateFailed.
func guard[T any](name string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			out = zero
			err = fmt.Errorf("%w: %s: panic: %v", ErrTemplateFailed, name, rec)
		}
	}()
	out, err = fn()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrTemplateFailed, name, err)
	}
	return out, nil
}
