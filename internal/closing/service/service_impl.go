package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/observability/logger"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"github.com/smallbiznis/comanda/internal/sequence"
	"github.com/smallbiznis/comanda/internal/sequence/format"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    domain.Repository
	Audit   auditdomain.Service `optional:"true"`
	Guard   *ratelimit.Guard    `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	template string
	repo     domain.Repository
	audit    auditdomain.Service
	guard    *ratelimit.Guard
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	template := strings.TrimSpace(p.Config.ClosingNumberTemplate)
	if template == "" {
		template = config.DefaultClosingNumberTemplate
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("closing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		template: template,
		repo:     p.Repo,
		audit:    p.Audit,
		guard:    p.Guard,
		metrics:  p.Metrics,
	}
}

func (s *Service) Close(ctx context.Context, a actor.Actor, req domain.CloseShiftRequest) (domain.CashClosing, error) {
	counted, err := validateClose(a, req)
	if err != nil {
		return domain.CashClosing{}, err
	}

	var closing domain.CashClosing
	err = s.guard.WithShiftLock(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			orders, err := s.selectOrders(ctx, tx, req)
			if err != nil {
				return err
			}

			totals := domain.Aggregate(orders, req.OpeningFloat, counted)
			now := s.clock.Now()

			seq, err := sequence.Next(ctx, tx, sequence.ClosingNumbers, now)
			if err != nil {
				return err
			}
			number, err := format.Number(s.template, req.WindowEnd, seq)
			if err != nil {
				return err
			}

			orderIDs := make([]snowflake.ID, 0, len(orders))
			for _, o := range orders {
				orderIDs = append(orderIDs, o.ID)
			}

			closing = domain.CashClosing{
				ID:             s.genID.Generate(),
				Number:         number,
				ShiftLabel:     strings.TrimSpace(req.ShiftLabel),
				WindowStart:    req.WindowStart.UTC(),
				WindowEnd:      req.WindowEnd.UTC(),
				OpeningFloat:   req.OpeningFloat,
				CashSales:      totals.CashSales,
				TotalSales:     totals.TotalSales,
				TotalDiscounts: totals.TotalDiscounts,
				ExpectedCash:   totals.ExpectedCash,
				CountedCash:    counted,
				Variance:       totals.Variance,
				Denominations:  req.Denominations,
				OrderCount:     totals.OrderCount,
				Notes:          strings.TrimSpace(req.Notes),
				Status:         domain.StatusClosed,
				ClosedBy:       a,
				Totals:         totals.ByMethod,
				OrderIDs:       orderIDs,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if closing.Totals == nil {
				closing.Totals = []domain.MethodTotal{}
			}

			if err := s.repo.Insert(ctx, tx, &closing); err != nil {
				return err
			}
			for i := range closing.Totals {
				closing.Totals[i].ClosingID = closing.ID
			}

			return s.record(ctx, tx, auditdomain.Entry{
				Actor:      a,
				Action:     auditdomain.ActionClosingCreated,
				TargetType: auditdomain.TargetClosing,
				TargetID:   closing.ID.String(),
				Metadata: map[string]any{
					"number":        closing.Number,
					"order_count":   closing.OrderCount,
					"total_sales":   closing.TotalSales.StringFixed(2),
					"expected_cash": closing.ExpectedCash.StringFixed(2),
					"counted_cash":  closing.CountedCash.StringFixed(2),
					"variance":      closing.Variance.StringFixed(2),
				},
			})
		})
	})
	if err != nil {
		return domain.CashClosing{}, s.translate(ctx, err)
	}

	kind := domain.VarianceKind(closing.Variance)
	s.metrics.RecordClosing(ctx, kind)
	logger.WithContext(ctx, s.log).Info("shift closed",
		zap.String("number", closing.Number),
		zap.Int("orders", closing.OrderCount),
		zap.String("variance", closing.Variance.StringFixed(2)),
		zap.String("variance_kind", kind),
	)
	return closing, nil
}

// selectOrders locks the orders the closing will claim. Explicit ids must all
// be paid inside the window and unclaimed; otherwise every unclaimed paid
// order in the window is taken.
func (s *Service) selectOrders(ctx context.Context, tx *gorm.DB, req domain.CloseShiftRequest) ([]domain.SettledOrder, error) {
	if req.OrderIDs == nil {
		candidates, err := s.repo.LockPaidInWindow(ctx, tx, req.WindowStart, req.WindowEnd)
		if err != nil {
			return nil, err
		}
		claimed, err := s.repo.ClaimedAmong(ctx, tx, settledIDs(candidates))
		if err != nil {
			return nil, err
		}
		taken := make(map[snowflake.ID]bool, len(claimed))
		for _, id := range claimed {
			taken[id] = true
		}
		out := make([]domain.SettledOrder, 0, len(candidates))
		for _, c := range candidates {
			if !taken[c.ID] {
				out = append(out, c)
			}
		}
		return out, nil
	}

	ids := uniqueIDs(req.OrderIDs)
	rows, err := s.repo.LockOrders(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[snowflake.ID]domain.PaidOrder, len(rows))
	for _, row := range rows {
		found[row.ID] = row
	}

	var errs domainerr.ValidationErrors
	out := make([]domain.SettledOrder, 0, len(ids))
	for _, id := range ids {
		row, ok := found[id]
		switch {
		case !ok:
			errs = append(errs, domainerr.Invalid("included_order_ids", "order_not_found", fmt.Sprintf("order %s does not exist", id)))
		case row.State != string(orderdomain.StatePaid):
			errs = append(errs, domainerr.Invalid("included_order_ids", "order_not_paid", fmt.Sprintf("order %s is %s", id, row.State)))
		case row.PaidAt.Before(req.WindowStart) || !row.PaidAt.Before(req.WindowEnd):
			errs = append(errs, domainerr.Invalid("included_order_ids", "outside_window", fmt.Sprintf("order %s was paid outside the window", id)))
		default:
			out = append(out, row.SettledOrder)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	claimed, err := s.repo.ClaimedAmong(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return nil, domain.AggregationConflictError{OrderIDs: claimed}
	}
	return out, nil
}

func (s *Service) Review(ctx context.Context, a actor.Actor, id snowflake.ID, req domain.ReviewRequest) (domain.CashClosing, error) {
	if err := a.Validate(); err != nil {
		return domain.CashClosing{}, domainerr.Invalid("actor", "required", "a valid actor is required")
	}
	target, ok := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !ok {
		return domain.CashClosing{}, domainerr.Invalid("status", "invalid_status", "status must be REVIEWED or AUDITED")
	}

	var closing domain.CashClosing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrClosingNotFound
		}

		next, ok := current.Status.Next()
		if !ok || next != target {
			return domainerr.IllegalTransitionError{Resource: "closing", Current: string(current.Status), Requested: string(target)}
		}

		notes := appendNote(current.Notes, a, target, req.Notes)
		now := s.clock.Now()
		updated, err := s.repo.UpdateReview(ctx, tx, id, current.Status, next, notes, now)
		if err != nil {
			return err
		}
		if !updated {
			return domainerr.ConcurrencyConflictError{Resource: "closing", ID: id.String()}
		}

		if err := s.record(ctx, tx, auditdomain.Entry{
			Actor:      a,
			Action:     auditdomain.ActionClosingReviewed,
			TargetType: auditdomain.TargetClosing,
			TargetID:   id.String(),
			Metadata: map[string]any{
				"from":  string(current.Status),
				"to":    string(next),
				"notes": strings.TrimSpace(req.Notes),
			},
		}); err != nil {
			return err
		}

		current.Status = next
		current.Notes = notes
		current.UpdatedAt = now
		closing = *current
		return nil
	})
	if err != nil {
		return domain.CashClosing{}, s.translate(ctx, err)
	}
	return closing, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.CashClosing, error) {
	if id == 0 {
		return domain.CashClosing{}, domain.ErrClosingNotFound
	}
	closing, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.CashClosing{}, err
	}
	if closing == nil {
		return domain.CashClosing{}, domain.ErrClosingNotFound
	}
	return *closing, nil
}

func (s *Service) List(ctx context.Context, req domain.ListClosingsRequest) (domain.ListClosingsResponse, error) {
	status := domain.Status("")
	if raw := strings.TrimSpace(string(req.Status)); raw != "" {
		parsed, ok := domain.ParseStatus(strings.ToUpper(raw))
		if !ok {
			return domain.ListClosingsResponse{}, domainerr.Invalid("status", "invalid_status", "unknown closing status")
		}
		status = parsed
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListClosingsResponse{}, domainerr.Invalid("from", "invalid_range", "from must not be after to")
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status:     status,
		ShiftLabel: strings.TrimSpace(req.ShiftLabel),
		From:       req.From,
		To:         req.To,
	}, req.Pagination)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.ListClosingsResponse{}, domainerr.Invalid("page_token", "invalid_page_token", "page token is malformed")
		}
		return domain.ListClosingsResponse{}, err
	}

	closings, pageInfo, err := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(c domain.CashClosing) pagination.Cursor {
		return pagination.CursorAt(c.ID.String(), c.CreatedAt)
	})
	if err != nil {
		return domain.ListClosingsResponse{}, err
	}
	return domain.ListClosingsResponse{PageInfo: pageInfo, Closings: closings}, nil
}

func (s *Service) translate(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		s.metrics.RecordConcurrencyConflict(ctx, "closing")
		return domainerr.ConcurrencyConflictError{Resource: "closing", ID: "shift"}
	case errors.Is(err, domain.ErrAggregationConflict):
		s.metrics.RecordConcurrencyConflict(ctx, "closing")
		return err
	case db.IsSerializationErr(err):
		s.metrics.RecordConcurrencyConflict(ctx, "closing")
		return domainerr.ConcurrencyConflictError{Resource: "closing"}
	default:
		return err
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, entry)
}

// validateClose checks the request and resolves the counted cash from the
// direct amount, the denominations, or both when they agree.
func validateClose(a actor.Actor, req domain.CloseShiftRequest) (decimal.Decimal, error) {
	var errs domainerr.ValidationErrors
	if err := a.Validate(); err != nil {
		errs = append(errs, domainerr.Invalid("actor", "required", "a valid actor is required"))
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		errs = append(errs, domainerr.Invalid("window", "required", "window_start and window_end are required"))
	} else if !req.WindowStart.Before(req.WindowEnd) {
		errs = append(errs, domainerr.Invalid("window", "invalid_range", "window_start must be before window_end"))
	}
	if req.OpeningFloat.IsNegative() {
		errs = append(errs, domainerr.Invalid("opening_float", "invalid_amount", "opening float cannot be negative"))
	}

	counted := decimal.Zero
	switch {
	case req.CountedCash == nil && len(req.Denominations) == 0:
		errs = append(errs, domainerr.Invalid("counted_cash", "required", "counted cash or denominations are required"))
	case len(req.Denominations) > 0:
		sum, ok := domain.CountDenominations(req.Denominations)
		if !ok {
			errs = append(errs, domainerr.Invalid("denominations", "invalid_amount", "denominations need a positive value and a non-negative count"))
			break
		}
		if req.CountedCash != nil && !req.CountedCash.Equal(sum) {
			errs = append(errs, domainerr.Invalid("counted_cash", "mismatch", fmt.Sprintf("counted cash %s does not match denominations %s", req.CountedCash.StringFixed(2), sum.StringFixed(2))))
		}
		counted = sum
	default:
		counted = *req.CountedCash
	}
	if counted.IsNegative() {
		errs = append(errs, domainerr.Invalid("counted_cash", "invalid_amount", "counted cash cannot be negative"))
	}

	if err := errs.Err(); err != nil {
		return decimal.Zero, err
	}
	return counted.Round(2), nil
}

func appendNote(existing string, a actor.Actor, status domain.Status, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	line := fmt.Sprintf("[%s by %s] %s", status, a.Name, note)
	if strings.TrimSpace(existing) == "" {
		return line
	}
	return existing + "\n" + line
}

func settledIDs(orders []domain.SettledOrder) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]bool, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
