// Package measurement models the computerised measurement books: a tree of
// CMBs holding measurements holding polymorphic measurement items, each of
// which totals its records per associated schedule itemno.
package measurement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags a measurement item variant.
type Kind string

const (
	KindHeading  Kind = "heading"
	KindNLBH     Kind = "nlbh"
	KindFields   Kind = "fields"
	KindCustom   Kind = "custom"
	KindAbstract Kind = "abstract"
)

var (
	// ErrPathNotFound occurs when a path does not resolve to an item.
	ErrPathNotFound = errors.New("measurement: path not found")
	// ErrArity occurs when itemnos or record widths do not match the variant.
	ErrArity = errors.New("measurement: arity mismatch")
	// ErrTemplateNotFound occurs when a custom item names an unregistered template.
	ErrTemplateNotFound = errors.New("measurement: template not found")
	// ErrTemplateFailed wraps failures raised by template functions.
	ErrTemplateFailed = errors.New("measurement: template failed")
	// ErrUnknownKind occurs when decoding an unrecognised variant.
	ErrUnknownKind = errors.New("measurement: unknown item kind")
	// ErrInvalidPath occurs when a path string cannot be parsed.
	ErrInvalidPath = errors.New("measurement: invalid path")
)

// Item is the capability every measurement item variant exposes to billing.
// Totals returns one value per itemno slot; a non-nil error reports records
// that were counted as zero.
type Item interface {
	Kind() Kind
	Itemnos() []string
	Totals() ([]decimal.Decimal, error)
	Remark() string
}

// AbstractExporter is implemented by items that can be brought forward into
// an Abstract.
type AbstractExporter interface {
	ExportAbstract() (string, []decimal.Decimal, error)
}

// Path addresses an item inside a Tree.
type Path struct {
	CMB         int `json:"cmb" yaml:"cmb"`
	Measurement int `json:"measurement" yaml:"measurement"`
	Item        int `json:"item" yaml:"item"`
}

// Ints returns the path as hierarchical indices.
func (p Path) Ints() []int {
	return []int{p.CMB, p.Measurement, p.Item}
}

func (p Path) String() string {
	return fmt.Sprintf("%d:%d:%d", p.CMB, p.Measurement, p.Item)
}

// ParsePath reads the form produced by Path.String.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
	var ints [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
		ints[i] = v
	}
	return Path{CMB: ints[0], Measurement: ints[1], Item: ints[2]}, nil
}

// Less orders paths depth first.
func (p Path) Less(o Path) bool {
	if p.CMB != o.CMB {
		return p.CMB < o.CMB
	}
	if p.Measurement != o.Measurement {
		return p.Measurement < o.Measurement
	}
	return p.Item < o.Item
}

// Common carries the fields shared by every variant. An empty itemno slot
// marks a column not billed to any schedule item.
type Common struct {
	ItemnoSlots []string
	Note        string
	ItemRemarks []string
}

// Itemnos returns the itemno slots.
func (c *Common) Itemnos() []string {
	out := make([]string, len(c.ItemnoSlots))
	copy(out, c.ItemnoSlots)
	return out
}

// Remark returns the free text remark.
func (c *Common) Remark() string {
	return c.Note
}

func newCommon(itemnos []string, remark string) Common {
	slots := make([]string, len(itemnos))
	for i, itemno := range itemnos {
		slots[i] = strings.TrimSpace(itemno)
	}
	return Common{ItemnoSlots: slots, Note: remark, ItemRemarks: make([]string, len(itemnos))}
}

func zeros(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}
