package project

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
)

// Options tunes the service.
type Options struct {
	// DefaultPercentage applies to documents created without a percentage.
	DefaultPercentage decimal.Decimal
}

// Service loads projects, recomputes their bills and applies mutations. Every
// mutation is persisted whole and invalidates cached snapshots; derived bill
// state is never stored.
type Service struct {
	repo     Repository
	cache    *Cache
	engine   *billing.Engine
	registry *measurement.Registry
	logger   *slog.Logger
	opts     Options

	group singleflight.Group
	mu    sync.Mutex
}

// NewService wires the collaborators.
func NewService(repo Repository, cache *Cache, engine *billing.Engine, registry *measurement.Registry, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		engine:   engine,
		registry: registry,
		logger:   logger.With(slog.String("component", "project_service")),
		opts:     opts,
	}
}

// Create validates and stores a new project.
func (s *Service) Create(ctx context.Context, doc Document) (Summary, error) {
	if doc.Percentage == nil {
		pct := s.opts.DefaultPercentage
		doc.Percentage = &pct
	}
	id := uuid.New()
	if doc.ID != "" {
		parsed, err := uuid.Parse(doc.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("%w: id: %v", ErrInvalidDocument, err)
		}
		id = parsed
	}
	doc.ID = id.String()
	if err := doc.Validate(); err != nil {
		return Summary{}, err
	}
	p, err := doc.Project(s.registry)
	if err != nil {
		return Summary{}, err
	}
	if err := p.Check(); err != nil {
		return Summary{}, err
	}
	if err := s.save(ctx, p); err != nil {
		return Summary{}, err
	}
	return p.Summary(), nil
}

// List enumerates stored projects.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.List(ctx)
}

// Load reads and decodes a project.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*Project, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := doc.Project(s.registry)
	if err != nil {
		return nil, err
	}
	p.ID = id
	for _, issue := range p.Issues {
		s.logger.Warn("project load issue", slog.String("project", id.String()), slog.String("issue", issue))
	}
	return p, nil
}

// Bills computes every bill of a project in dependency order. Results are
// cached until the next mutation; concurrent callers share one computation.
func (s *Service) Bills(ctx context.Context, id uuid.UUID) ([]billing.Snapshot, error) {
	key, err := s.cache.SnapshotKey(ctx, id, "all")
	if err != nil {
		return nil, err
	}
	result, err, _ := s.singleflight(ctx, key, func(ctx context.Context) (any, error) {
		var snaps []billing.Snapshot
		err := s.cache.FetchJSON(ctx, key, &snaps, func(ctx context.Context) (any, error) {
			return s.computeAll(ctx, id)
		})
		return snaps, err
	})
	if err != nil {
		return nil, err
	}
	snaps, _ := result.([]billing.Snapshot)
	return snaps, nil
}

// Bill returns one computed bill.
func (s *Service) Bill(ctx context.Context, id uuid.UUID, index int) (billing.Snapshot, error) {
	snaps, err := s.Bills(ctx, id)
	if err != nil {
		return billing.Snapshot{}, err
	}
	if index < 0 || index >= len(snaps) {
		return billing.Snapshot{}, fmt.Errorf("%w: %d", billing.ErrBillNotFound, index)
	}
	return snaps[index], nil
}

// Compute recomputes bill index and its ancestors without the cache.
func (s *Service) Compute(ctx context.Context, id uuid.UUID, index int) (*Project, *billing.Bill, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	bill, err := p.Ledger(s.engine).Compute(index)
	if err != nil {
		return nil, nil, err
	}
	return p, bill, nil
}

// AddBill appends a bill after checking its prev bill and claims.
func (s *Service) AddBill(ctx context.Context, id uuid.UUID, data billing.BillData) (int, error) {
	if err := ValidateBill(data); err != nil {
		return 0, fmt.Errorf("%w: bill %v", ErrInvalidDocument, err)
	}
	var index int
	err := s.mutate(ctx, id, func(p *Project) error {
		if data.Type == "" {
			data.Type = billing.BillNormal
		}
		index = len(p.Bills)
		bills := append(append([]billing.BillData(nil), p.Bills...), data)
		if err := billing.CheckPrevBill(bills, index, data.PrevBill); err != nil {
			return err
		}
		if err := s.checkPaths(p, data.MItems); err != nil {
			return err
		}
		if err := billing.CheckClaim(billing.BuildClaims(p.Tree, p.Bills), data.MItems); err != nil {
			return err
		}
		data.Normalize(p.Schedule)
		p.Bills = append(p.Bills, data)
		return nil
	})
	return index, err
}

// ClaimForBill replaces the measurement items claimed by bill index. Items
// held by another bill or an abstract are refused with billing.ErrPathLocked.
func (s *Service) ClaimForBill(ctx context.Context, id uuid.UUID, index int, paths []measurement.Path) error {
	return s.mutate(ctx, id, func(p *Project) error {
		if index < 0 || index >= len(p.Bills) {
			return fmt.Errorf("%w: %d", billing.ErrBillNotFound, index)
		}
		if err := s.checkPaths(p, paths); err != nil {
			return err
		}
		if err := billing.CheckClaim(billing.ClaimsExcept(p.Tree, p.Bills, index), paths); err != nil {
			return err
		}
		p.Bills[index].MItems = append([]measurement.Path(nil), paths...)
		return nil
	})
}

// SetPrevBill links bill index to prev, or unlinks it when prev is nil.
func (s *Service) SetPrevBill(ctx context.Context, id uuid.UUID, index int, prev *int) error {
	return s.mutate(ctx, id, func(p *Project) error {
		if err := billing.CheckPrevBill(p.Bills, index, prev); err != nil {
			return err
		}
		p.Bills[index].PrevBill = prev
		return nil
	})
}

// AddAbstract brings the totals of paths forward into a new abstract item
// appended to measurement meas of book cmb. Sources already claimed are
// refused.
func (s *Service) AddAbstract(ctx context.Context, id uuid.UUID, cmb, meas int, paths []measurement.Path, itemnos []string, remark string) (measurement.Path, error) {
	var at measurement.Path
	err := s.mutate(ctx, id, func(p *Project) error {
		if err := billing.CheckClaim(billing.BuildClaims(p.Tree, p.Bills), paths); err != nil {
			return err
		}
		abs, err := measurement.NewAbstract(p.Tree, itemnos, paths, remark)
		if abs == nil {
			return err
		}
		if err != nil {
			s.logger.Warn("abstract sources skipped", slog.String("project", id.String()), slog.Any("error", err))
		}
		at, err = p.Tree.AddItem(cmb, meas, abs)
		return err
	})
	return at, err
}

// LockedPaths lists items claimed by anything other than bill index.
func (s *Service) LockedPaths(ctx context.Context, id uuid.UUID, index int) ([]measurement.Path, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(p.Bills) {
		return nil, fmt.Errorf("%w: %d", billing.ErrBillNotFound, index)
	}
	locked := billing.Available(billing.BuildClaims(p.Tree, p.Bills), billing.BillClaims(p.Bills[index]))
	out := make([]measurement.Path, 0, locked.Len())
	for _, ints := range locked.Paths() {
		if len(ints) != 3 {
			continue
		}
		out = append(out, measurement.Path{CMB: ints[0], Measurement: ints[1], Item: ints[2]})
	}
	return out, nil
}

// RecordExport notes a rendered bill file.
func (s *Service) RecordExport(ctx context.Context, rec ExportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return s.repo.RecordExport(ctx, rec)
}

func (s *Service) computeAll(ctx context.Context, id uuid.UUID) ([]billing.Snapshot, error) {
	p, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	bills, err := p.Ledger(s.engine).ComputeAll()
	if err != nil {
		return nil, err
	}
	snaps := make([]billing.Snapshot, len(bills))
	for i, b := range bills {
		snaps[i] = b.Snapshot(p.Schedule)
	}
	s.logger.Debug("bills computed", slog.String("project", id.String()), slog.Int("bills", len(bills)))
	return snaps, nil
}

func (s *Service) checkPaths(p *Project, paths []measurement.Path) error {
	for _, path := range paths {
		if _, err := p.Tree.Item(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return s.save(ctx, p)
}

func (s *Service) save(ctx context.Context, p *Project) error {
	updatedAt, err := s.repo.Save(ctx, p.ID, NewDocument(p))
	if err != nil {
		return err
	}
	p.UpdatedAt = updatedAt
	if err := s.cache.Invalidate(ctx, p.ID); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("project", p.ID.String()), slog.Any("error", err))
	}
	return nil
}

func (s *Service) singleflight(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	}
}
