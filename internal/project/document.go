package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

// Document is the persisted form of a project, used for the JSONB store, the
// HTTP API and project files.
type Document struct {
	ID         string               `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,uuid"`
	Name       string               `json:"name" yaml:"name" validate:"required,max=200"`
	Percentage *decimal.Decimal     `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	Schedule   []schedule.Item      `json:"schedule" yaml:"schedule" validate:"dive"`
	CMBs       []measurement.CMBDoc `json:"cmbs" yaml:"cmbs" validate:"dive"`
	Bills      []billing.BillData   `json:"bills" yaml:"bills"`
	UpdatedAt  time.Time            `json:"updated_at,omitempty" yaml:"-"`
}

var validate = validator.New()

// Validate checks the document at the boundary. The engine assumes decimals
// that pass here.
func (d Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for _, item := range d.Schedule {
		for name, v := range map[string]decimal.Decimal{"rate": item.Rate, "qty": item.Qty, "excess_rate_percent": item.ExcessRatePercent} {
			if v.IsNegative() {
				return fmt.Errorf("%w: item %s has negative %s", ErrInvalidDocument, item.Itemno, name)
			}
		}
	}
	for i, b := range d.Bills {
		if err := ValidateBill(b); err != nil {
			return fmt.Errorf("%w: bill %d %v", ErrInvalidDocument, i, err)
		}
	}
	return nil
}

// ValidateBill checks the entered fields of one bill. Adjustments may be
// negative; rate settings and custom quantities and amounts may not.
func ValidateBill(b billing.BillData) error {
	if b.Type != "" && !b.Type.Valid() {
		return fmt.Errorf("has unknown type %q", b.Type)
	}
	for itemno, cfg := range b.ItemConfigs {
		if cfg.PartPercentage.IsNegative() || cfg.ExcessPartPercentage.IsNegative() || cfg.ExcessRate.IsNegative() {
			return fmt.Errorf("item %s has a negative rate setting", itemno)
		}
	}
	for itemno, qtys := range b.CustomQty {
		for _, q := range qtys {
			if q.IsNegative() {
				return fmt.Errorf("item %s has a negative quantity", itemno)
			}
		}
	}
	for _, amounts := range []map[string]decimal.Decimal{b.CustomNormalAmount, b.CustomExcessAmount} {
		for itemno, v := range amounts {
			if v.IsNegative() {
				return fmt.Errorf("item %s has a negative amount", itemno)
			}
		}
	}
	for _, p := range b.MItems {
		if p.CMB < 0 || p.Measurement < 0 || p.Item < 0 {
			return fmt.Errorf("claims invalid path %s", p)
		}
	}
	return nil
}

// Project decodes d. Tolerated problems are recorded in Project.Issues.
func (d Document) Project(registry *measurement.Registry) (*Project, error) {
	id := uuid.Nil
	if d.ID != "" {
		parsed, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrInvalidDocument, err)
		}
		id = parsed
	}
	sched, err := schedule.New(d.Schedule...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	tree, soft := measurement.DecodeTree(d.CMBs, registry)
	if tree == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, soft)
	}
	p := &Project{
		ID:        id,
		Name:      d.Name,
		Schedule:  sched,
		Tree:      tree,
		Bills:     make([]billing.BillData, len(d.Bills)),
		UpdatedAt: d.UpdatedAt,
		Issues:    flatten(soft),
	}
	if d.Percentage != nil {
		p.Percentage = *d.Percentage
	}
	for i, b := range d.Bills {
		b = b.Clone()
		b.Normalize(sched)
		p.Bills[i] = b
	}
	return p, nil
}

// NewDocument encodes p.
func NewDocument(p *Project) Document {
	pct := p.Percentage
	doc := Document{
		Name:       p.Name,
		Percentage: &pct,
		Schedule:   p.Schedule.Items(),
		CMBs:       measurement.EncodeTree(p.Tree),
		Bills:      make([]billing.BillData, len(p.Bills)),
		UpdatedAt:  p.UpdatedAt,
	}
	if p.ID != uuid.Nil {
		doc.ID = p.ID.String()
	}
	for i, b := range p.Bills {
		doc.Bills[i] = b.Clone()
	}
	return doc
}

// ParseDocument reads a YAML or JSON document. JSON is valid YAML, so format
// only matters for error messages.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// LoadFile reads, validates and decodes a project file.
func LoadFile(path string, registry *measurement.Registry) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}
	var doc Document
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else if doc, err = ParseDocument(raw); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	p, err := doc.Project(registry)
	if err != nil {
		return nil, err
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteFile stores p as YAML.
func WriteFile(path string, p *Project) error {
	raw, err := yaml.Marshal(NewDocument(p))
	if err != nil {
		return fmt.Errorf("project: encode: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
