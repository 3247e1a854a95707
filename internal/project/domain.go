// Package project owns the aggregate a bill is computed against: the
// schedule, the measurement tree and the list of bills, plus the service
// that recomputes, caches and persists them.
package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/schedule"
)

var (
	// ErrNotFound occurs when a project id is unknown.
	ErrNotFound = errors.New("project: not found")
	// ErrInvalidDocument occurs when a project document fails validation.
	ErrInvalidDocument = errors.New("project: invalid document")
)

// Project is the decoded aggregate.
type Project struct {
	ID         uuid.UUID
	Name       string
	Percentage decimal.Decimal
	Schedule   *schedule.Schedule
	Tree       *measurement.Tree
	Bills      []billing.BillData
	UpdatedAt  time.Time
	// Issues lists load problems that were tolerated, such as custom items
	// whose template is not registered.
	Issues []string
}

// Summary is the listing form of a project.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Bills     int       `json:"bills"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Inputs returns the collaborators bills of p are computed against.
func (p *Project) Inputs() billing.Inputs {
	return billing.Inputs{Schedule: p.Schedule, Tree: p.Tree, Percentage: p.Percentage}
}

// Ledger returns a ledger over the bills of p.
func (p *Project) Ledger(engine *billing.Engine) *billing.Ledger {
	return billing.NewLedger(engine, p.Inputs(), p.Bills)
}

// Check enforces what single mutations enforce one at a time: prev bill
// chains end without cycles and each measurement item is claimed at most once.
func (p *Project) Check() error {
	if err := billing.CheckChains(p.Bills); err != nil {
		return err
	}
	return billing.CheckExclusive(p.Tree, p.Bills)
}

// Summary returns the listing form.
func (p *Project) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Bills: len(p.Bills), UpdatedAt: p.UpdatedAt}
}

func flatten(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
