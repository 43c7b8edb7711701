package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/comanda/internal/actor"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/table/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("table.service"),
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Table, error) {
	if req.State != "" && !req.State.Valid() {
		return nil, domainerr.Invalid("state", "invalid_state", "state must be FREE, OCCUPIED or RESERVED")
	}
	if loc := strings.TrimSpace(req.Location); loc != "" {
		req.Location = slug.Make(loc)
	}
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) Get(ctx context.Context, number int) (*domain.Table, error) {
	if number <= 0 {
		return nil, domainerr.Invalid("number", "invalid_table", "table number must be positive")
	}
	table, err := s.repo.FindByNumber(ctx, s.db, number, false)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, domain.ErrTableNotFound
	}
	return table, nil
}

func (s *Service) SetReservation(ctx context.Context, a actor.Actor, number int, reserved bool) (*domain.Table, error) {
	if number <= 0 {
		return nil, domainerr.Invalid("number", "invalid_table", "table number must be positive")
	}

	var result *domain.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := s.repo.FindByNumber(ctx, tx, number, true)
		if err != nil {
			return err
		}
		if table == nil {
			return domain.ErrTableNotFound
		}

		next := table.State
		switch {
		case table.State == domain.StateOccupied && reserved:
			return domain.ErrTableOccupied
		case table.State == domain.StateFree && reserved:
			next = domain.StateReserved
		case table.State == domain.StateReserved && !reserved:
			next = domain.StateFree
		}

		if next != table.State {
			previous := table.State
			now := s.clock.Now()
			if err := s.repo.UpdateState(ctx, tx, table.ID, next, now); err != nil {
				return err
			}
			table.State = next
			table.UpdatedAt = now

			if s.audit != nil {
				if err := s.audit.Record(ctx, tx, auditdomain.Entry{
					Actor:      a,
					Action:     auditdomain.ActionTableReservation,
					TargetType: auditdomain.TargetTable,
					TargetID:   table.ID.String(),
					Metadata: map[string]any{
						"number": table.Number,
						"from":   string(previous),
						"to":     string(next),
					},
				}); err != nil {
					return err
				}
			}
		}
		result = table
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Seat(ctx context.Context, tx *gorm.DB, number int, blockReserved bool) (domain.SeatResult, error) {
	table, err := s.repo.FindByNumber(ctx, tx, number, true)
	if err != nil {
		return domain.SeatResult{}, err
	}
	if table == nil {
		return domain.SeatResult{}, domain.ErrTableNotFound
	}

	wasReserved := table.State == domain.StateReserved
	if wasReserved && blockReserved {
		return domain.SeatResult{}, domain.ErrTableReserved
	}
	if table.State != domain.StateOccupied {
		now := s.clock.Now()
		if err := s.repo.UpdateState(ctx, tx, table.ID, domain.StateOccupied, now); err != nil {
			return domain.SeatResult{}, err
		}
		table.State = domain.StateOccupied
		table.UpdatedAt = now
	}
	return domain.SeatResult{Table: *table, WasReserved: wasReserved}, nil
}

func (s *Service) Sync(ctx context.Context, tx *gorm.DB, tableID snowflake.ID, count domain.ActiveOrderCounter) (*domain.Table, error) {
	table, _, err := s.sync(ctx, tx, tableID, count)
	return table, err
}

func (s *Service) sync(ctx context.Context, tx *gorm.DB, tableID snowflake.ID, count domain.ActiveOrderCounter) (*domain.Table, bool, error) {
	table, err := s.repo.FindByID(ctx, tx, tableID, true)
	if err != nil {
		return nil, false, err
	}
	if table == nil {
		return nil, false, domain.ErrTableNotFound
	}

	active, err := count(ctx, tx, tableID)
	if err != nil {
		return nil, false, err
	}

	next := domain.NextState(table.State, active)
	if next == table.State {
		return table, false, nil
	}

	now := s.clock.Now()
	if err := s.repo.UpdateState(ctx, tx, table.ID, next, now); err != nil {
		return nil, false, err
	}
	s.log.Debug("table occupancy changed",
		zap.Int("table", table.Number),
		zap.String("from", string(table.State)),
		zap.String("to", string(next)),
		zap.Int64("active_orders", active),
	)
	table.State = next
	table.UpdatedAt = now
	return table, true, nil
}

func (s *Service) Reconcile(ctx context.Context, count domain.ActiveOrderCounter) (int, error) {
	ids, err := s.repo.ListIDs(ctx, s.db)
	if err != nil {
		return 0, err
	}

	changed := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		moved := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			_, moved, err = s.sync(ctx, tx, id, count)
			return err
		})
		if err != nil {
			s.log.Warn("table reconcile failed", zap.String("table_id", id.String()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if moved {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}
