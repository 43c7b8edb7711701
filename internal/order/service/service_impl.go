package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/actor"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/observability/logger"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	"github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/sequence"
	"github.com/smallbiznis/comanda/internal/sequence/format"
	"github.com/smallbiznis/comanda/internal/settlement"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Settings  config.SettingsProvider
	Repo      domain.Repository
	Tables    tabledomain.Service
	Catalog   catalogdomain.Lookup
	Publisher domain.Publisher    `optional:"true"`
	Audit     auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	template  string
	settings  config.SettingsProvider
	repo      domain.Repository
	tables    tabledomain.Service
	catalog   catalogdomain.Lookup
	publisher domain.Publisher
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	template := strings.TrimSpace(p.Config.OrderNumberTemplate)
	if template == "" {
		template = config.DefaultOrderNumberTemplate
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		template:  template,
		settings:  p.Settings,
		repo:      p.Repo,
		tables:    p.Tables,
		catalog:   p.Catalog,
		publisher: p.Publisher,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, a actor.Actor, req domain.CreateOrderRequest) (domain.CreateOrderResult, error) {
	if err := validateActor(a); err != nil {
		return domain.CreateOrderResult{}, err
	}

	var errs domainerr.ValidationErrors
	if req.TableNumber <= 0 {
		errs = append(errs, domainerr.Invalid("table_number", domain.CodeRequired, "table number must be positive"))
	}
	if len(req.Lines) == 0 {
		errs = append(errs, domainerr.Invalid("lines", domain.CodeRequired, "an order needs at least one line"))
	}
	for i, line := range req.Lines {
		if line.LineID != nil {
			errs = append(errs, domainerr.Invalid(lineField(i, "line_id"), domain.CodeLineNotFound, "new orders cannot reference existing lines"))
		}
		errs = append(errs, validateLineInput(i, line)...)
	}
	if err := errs.Err(); err != nil {
		return domain.CreateOrderResult{}, err
	}

	products, err := s.resolveProducts(ctx, req.Lines)
	if err != nil {
		return domain.CreateOrderResult{}, err
	}

	settings := s.settings.Get()
	now := s.clock.Now()
	var (
		order  domain.Order
		seated tabledomain.SeatResult
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		seated, err = s.tables.Seat(ctx, tx, req.TableNumber, settings.BlocksReservedTables())
		if err != nil {
			if errors.Is(err, tabledomain.ErrTableNotFound) {
				return domainerr.Invalid("table_number", domain.CodeTableNotFound, fmt.Sprintf("table %d does not exist", req.TableNumber))
			}
			return err
		}

		seq, err := sequence.Next(ctx, tx, sequence.OrderNumbers, now)
		if err != nil {
			return err
		}
		number, err := format.Number(s.template, now, seq)
		if err != nil {
			return err
		}

		order = domain.Order{
			ID:          s.genID.Generate(),
			Number:      number,
			TableID:     seated.Table.ID,
			TableNumber: seated.Table.Number,
			Waiter:      a,
			State:       domain.StatePending,
			Notes:       strings.TrimSpace(req.Notes),
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for i, input := range req.Lines {
			order.Lines = append(order.Lines, s.snapshotLine(order.ID, i+1, products[input.ProductID], input))
		}
		order.Reprice()
		order.History = []domain.HistoryEntry{{
			OrderID:    order.ID,
			Seq:        1,
			State:      domain.StatePending,
			Actor:      a,
			OccurredAt: now,
		}}

		return s.repo.Insert(ctx, tx, &order)
	})
	if err != nil {
		return domain.CreateOrderResult{}, s.translate(ctx, err, "")
	}

	result := domain.CreateOrderResult{Order: order}
	if seated.WasReserved {
		result.Warnings = append(result.Warnings, domain.Warning{
			Code:    "table_reserved",
			Message: fmt.Sprintf("table %d was reserved; resolve the reservation manually", seated.Table.Number),
			Table:   seated.Table.Number,
		})
		logger.WithContext(ctx, s.log).Warn("order seated on reserved table",
			zap.String("order_number", order.Number),
			zap.Int("table", seated.Table.Number),
		)
	}

	s.metrics.RecordOrderCreated(ctx)
	s.publish(ctx, domain.Change{Kind: domain.KindCreated, Order: order, Actor: a, OccurredAt: now})
	return result, nil
}

func (s *Service) ChangeState(ctx context.Context, a actor.Actor, id snowflake.ID, req domain.ChangeStateRequest) (domain.Order, error) {
	if err := validateActor(a); err != nil {
		return domain.Order{}, err
	}
	to, ok := domain.ParseState(string(req.State))
	if !ok {
		return domain.Order{}, domainerr.Invalid("state", domain.CodeInvalidState, fmt.Sprintf("unknown state %q", req.State))
	}
	switch to {
	case domain.StatePaid:
		return domain.Order{}, domainerr.Invalid("state", domain.CodeSettlementRequired, "use settlement to mark an order as paid")
	case domain.StateCancelled:
		return s.Cancel(ctx, a, id, req.Note)
	}

	now := s.clock.Now()
	order, previous, err := s.mutate(ctx, id, func(tx *gorm.DB, o *domain.Order) error {
		_, err := domain.Transition(o, to, a, req.Note, now)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordTransition(ctx, string(previous), string(order.State))
	s.publish(ctx, domain.Change{Kind: domain.KindStateChanged, Order: order, PreviousState: previous, Actor: a, OccurredAt: now})
	return order, nil
}

func (s *Service) EditLines(ctx context.Context, a actor.Actor, id snowflake.ID, req domain.EditLinesRequest) (domain.Order, error) {
	if err := validateActor(a); err != nil {
		return domain.Order{}, err
	}

	var errs domainerr.ValidationErrors
	if len(req.Lines) == 0 {
		errs = append(errs, domainerr.Invalid("lines", domain.CodeRequired, "an order needs at least one line"))
	}
	seen := map[snowflake.ID]bool{}
	fresh := make([]domain.LineInput, 0, len(req.Lines))
	for i, line := range req.Lines {
		if line.LineID != nil {
			if seen[*line.LineID] {
				errs = append(errs, domainerr.Invalid(lineField(i, "line_id"), domain.CodeDuplicateLine, "line listed twice"))
			}
			seen[*line.LineID] = true
			if line.Quantity < 1 || line.Quantity > domain.MaxLineQuantity {
				errs = append(errs, domainerr.Invalid(lineField(i, "quantity"), domain.CodeInvalidQuantity, quantityMessage()))
			}
			continue
		}
		errs = append(errs, validateLineInput(i, line)...)
		fresh = append(fresh, line)
	}
	if err := errs.Err(); err != nil {
		return domain.Order{}, err
	}

	products, err := s.resolveProducts(ctx, fresh)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	order, _, err := s.mutate(ctx, id, func(tx *gorm.DB, o *domain.Order) error {
		if o.State.Terminal() || !o.State.AllowsLineEdits() {
			return domainerr.IllegalTransitionError{Resource: "order", Current: string(o.State), Requested: "edit_lines"}
		}

		existing := make(map[snowflake.ID]domain.Line, len(o.Lines))
		for _, line := range o.Lines {
			existing[line.ID] = line
		}

		lines := make([]domain.Line, 0, len(req.Lines))
		var errs domainerr.ValidationErrors
		for i, input := range req.Lines {
			position := i + 1
			if input.LineID == nil {
				lines = append(lines, s.snapshotLine(o.ID, position, products[input.ProductID], input))
				continue
			}
			line, ok := existing[*input.LineID]
			if !ok {
				errs = append(errs, domainerr.Invalid(lineField(i, "line_id"), domain.CodeLineNotFound, "line does not belong to this order"))
				continue
			}
			line.Position = position
			line.Quantity = input.Quantity
			line.Note = strings.TrimSpace(input.Note)
			lines = append(lines, line)
		}
		if err := errs.Err(); err != nil {
			return err
		}

		o.Lines = lines
		o.Reprice()
		o.UpdatedAt = now
		return s.repo.ReplaceLines(ctx, tx, o.ID, o.Lines)
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, domain.Change{Kind: domain.KindLinesUpdated, Order: order, PreviousState: order.State, Actor: a, OccurredAt: now})
	return order, nil
}

func (s *Service) Settle(ctx context.Context, a actor.Actor, id snowflake.ID, req domain.SettleRequest) (domain.Receipt, error) {
	if err := validateActor(a); err != nil {
		return domain.Receipt{}, err
	}
	method, err := settlement.ParseMethod(string(req.Method))
	if err != nil {
		return domain.Receipt{}, domainerr.Invalid("method", domain.CodeInvalidMethod, "method must be cash, card, transfer or qr")
	}
	if req.Tendered.IsNegative() {
		return domain.Receipt{}, domainerr.Invalid("tendered", domain.CodeInvalidAmount, "tendered amount cannot be negative")
	}

	now := s.clock.Now()
	var breakdown settlement.Breakdown
	order, previous, err := s.mutate(ctx, id, func(tx *gorm.DB, o *domain.Order) error {
		if o.State.Terminal() || !domain.CanTransition(o.State, domain.StatePaid) {
			return domainerr.IllegalTransitionError{Resource: "order", Current: string(o.State), Requested: string(domain.StatePaid)}
		}

		var err error
		breakdown, err = settlement.Compute(o.SettlementLines(), method, req.Tendered)
		if err != nil {
			return err
		}
		o.ApplySettlement(breakdown, a, now)
		if _, err := domain.Transition(o, domain.StatePaid, a, "", now); err != nil {
			return err
		}

		return s.record(ctx, tx, auditdomain.Entry{
			Actor:      a,
			Action:     auditdomain.ActionOrderSettled,
			TargetType: auditdomain.TargetOrder,
			TargetID:   o.ID.String(),
			Metadata: map[string]any{
				"number":   o.Number,
				"method":   string(method),
				"total":    breakdown.Total.StringFixed(2),
				"discount": breakdown.Discount.StringFixed(2),
			},
		})
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	s.metrics.RecordSettlement(ctx, string(method))
	s.metrics.RecordTransition(ctx, string(previous), string(order.State))
	s.publish(ctx, domain.Change{Kind: domain.KindSettled, Order: order, PreviousState: previous, Actor: a, OccurredAt: now})

	return domain.Receipt{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		TableNumber: order.TableNumber,
		WaiterName:  order.Waiter.Name,
		Lines:       order.Lines,
		Method:      method,
		Subtotal:    breakdown.Subtotal,
		Discount:    breakdown.Discount,
		Total:       breakdown.Total,
		Tendered:    breakdown.Tendered,
		Change:      breakdown.Change,
		Cashier:     a,
		PaidAt:      now,
		Order:       order,
	}, nil
}

func (s *Service) Cancel(ctx context.Context, a actor.Actor, id snowflake.ID, reason string) (domain.Order, error) {
	if err := validateActor(a); err != nil {
		return domain.Order{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Order{}, domainerr.Invalid("reason", domain.CodeRequired, "a cancellation reason is required")
	}

	now := s.clock.Now()
	order, previous, err := s.mutate(ctx, id, func(tx *gorm.DB, o *domain.Order) error {
		from := o.State
		if _, err := domain.Transition(o, domain.StateCancelled, a, reason, now); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.Entry{
			Actor:      a,
			Action:     auditdomain.ActionOrderCancelled,
			TargetType: auditdomain.TargetOrder,
			TargetID:   o.ID.String(),
			Metadata:   map[string]any{"number": o.Number, "reason": reason, "from": string(from)},
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordTransition(ctx, string(previous), string(order.State))
	s.publish(ctx, domain.Change{Kind: domain.KindStateChanged, Order: order, PreviousState: previous, Actor: a, OccurredAt: now})
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Order, error) {
	if id == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	var errs domainerr.ValidationErrors
	states := make([]domain.State, 0, len(req.States))
	for _, raw := range req.States {
		state, ok := domain.ParseState(string(raw))
		if !ok {
			errs = append(errs, domainerr.Invalid("state", domain.CodeInvalidState, fmt.Sprintf("unknown state %q", raw)))
			continue
		}
		states = append(states, state)
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		errs = append(errs, domainerr.Invalid("from", domain.CodeInvalidRange, "from must be before to"))
	}
	if err := errs.Err(); err != nil {
		return domain.ListOrdersResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		States:       states,
		TableNumber:  req.TableNumber,
		WaiterID:     strings.TrimSpace(req.WaiterID),
		From:         req.From,
		To:           req.To,
		UpdatedSince: req.UpdatedSince,
	}, req.Pagination)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.ListOrdersResponse{}, domainerr.Invalid("page_token", "invalid_page_token", "page token is malformed")
		}
		return domain.ListOrdersResponse{}, err
	}

	orders, pageInfo, err := pagination.BuildCursorPageInfo(items, req.Pagination.Limit(), func(o domain.Order) pagination.Cursor {
		return pagination.CursorAt(o.ID.String(), o.CreatedAt)
	})
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	return domain.ListOrdersResponse{
		PageInfo:         pageInfo,
		Orders:           orders,
		PollAfterSeconds: s.settings.Get().PollIntervalSeconds,
	}, nil
}

// mutate loads the order under a row lock, applies fn and writes the result
// guarded by the version read at the start. New history entries are
// appended, and a terminal outcome releases the table in the same
// transaction.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, fn func(tx *gorm.DB, o *domain.Order) error) (domain.Order, domain.State, error) {
	if id == 0 {
		return domain.Order{}, "", domain.ErrOrderNotFound
	}

	var (
		order    domain.Order
		previous domain.State
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrOrderNotFound
		}

		previous = current.State
		version := current.Version
		historyLen := len(current.History)

		if err := fn(tx, current); err != nil {
			return err
		}

		ok, err := s.repo.Update(ctx, tx, current, version)
		if err != nil {
			return err
		}
		if !ok {
			return domainerr.ConcurrencyConflictError{Resource: "order", ID: id.String()}
		}

		for i := historyLen; i < len(current.History); i++ {
			if err := s.repo.AppendHistory(ctx, tx, &current.History[i]); err != nil {
				return err
			}
		}

		if current.State.Terminal() {
			if _, err := s.tables.Sync(ctx, tx, current.TableID, s.repo.CountActiveByTable); err != nil {
				return err
			}
		}

		order = *current
		return nil
	})
	if err != nil {
		return domain.Order{}, "", s.translate(ctx, err, id.String())
	}
	return order, previous, nil
}

func (s *Service) translate(ctx context.Context, err error, id string) error {
	var conflict domainerr.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		if !db.IsSerializationErr(err) {
			return err
		}
		conflict = domainerr.ConcurrencyConflictError{Resource: "order", ID: id}
	}
	s.metrics.RecordConcurrencyConflict(ctx, "order")
	logger.WithContext(ctx, s.log).Info("order write lost a race", zap.String("order_id", id), zap.Error(err))
	return conflict
}

func (s *Service) resolveProducts(ctx context.Context, lines []domain.LineInput) (map[snowflake.ID]catalogdomain.Product, error) {
	products := make(map[snowflake.ID]catalogdomain.Product, len(lines))
	var errs domainerr.ValidationErrors
	for i, line := range lines {
		if _, done := products[line.ProductID]; done {
			continue
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		switch {
		case product == nil:
			errs = append(errs, domainerr.Invalid(lineField(i, "product_id"), domain.CodeProductNotFound, fmt.Sprintf("product %s does not exist", line.ProductID)))
		case !product.Available:
			errs = append(errs, domainerr.Invalid(lineField(i, "product_id"), domain.CodeProductUnavailable, fmt.Sprintf("%s is not available", product.Name)))
		default:
			products[line.ProductID] = *product
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Service) snapshotLine(orderID snowflake.ID, position int, product catalogdomain.Product, input domain.LineInput) domain.Line {
	return domain.Line{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Position:  position,
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  input.Quantity,
		UnitPrice: product.Price,
		Note:      strings.TrimSpace(input.Note),
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, entry)
}

func (s *Service) publish(ctx context.Context, change domain.Change) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, change)
}

func validateActor(a actor.Actor) error {
	if err := a.Validate(); err != nil {
		return domainerr.Invalid("actor", domain.CodeRequired, "a valid actor is required")
	}
	return nil
}

func validateLineInput(i int, line domain.LineInput) domainerr.ValidationErrors {
	var errs domainerr.ValidationErrors
	if line.ProductID == 0 {
		errs = append(errs, domainerr.Invalid(lineField(i, "product_id"), domain.CodeRequired, "product is required"))
	}
	if line.Quantity < 1 || line.Quantity > domain.MaxLineQuantity {
		errs = append(errs, domainerr.Invalid(lineField(i, "quantity"), domain.CodeInvalidQuantity, quantityMessage()))
	}
	return errs
}

func lineField(i int, name string) string {
	return fmt.Sprintf("lines[%d].%s", i, name)
}

func quantityMessage() string {
	return fmt.Sprintf("quantity must be between 1 and %d", domain.MaxLineQuantity)
}
