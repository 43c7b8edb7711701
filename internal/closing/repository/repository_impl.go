package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/closing/domain"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type orderRow struct {
	ID             snowflake.ID
	State          string
	PaymentMethod  *string
	Total          decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentPaidAt  *time.Time
}

func (row orderRow) settled() domain.SettledOrder {
	out := domain.SettledOrder{ID: row.ID, Total: row.Total, Discount: row.DiscountAmount}
	if row.PaymentMethod != nil {
		out.Method = settlement.Method(*row.PaymentMethod)
	}
	if row.PaymentPaidAt != nil {
		out.PaidAt = row.PaymentPaidAt.UTC()
	}
	return out
}

func selectOrders(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Table("orders").
		Select("id, state, payment_method, total, discount_amount, payment_paid_at").
		Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repo) LockPaidInWindow(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.SettledOrder, error) {
	var rows []orderRow
	err := selectOrders(ctx, db).
		Where("state = ? AND payment_paid_at >= ? AND payment_paid_at < ?", orderdomain.StatePaid, start.UTC(), end.UTC()).
		Order("payment_paid_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.SettledOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.settled())
	}
	return out, nil
}

func (r *repo) LockOrders(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.PaidOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []orderRow
	err := selectOrders(ctx, db).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.PaidOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.PaidOrder{SettledOrder: row.settled(), State: row.State})
	}
	return out, nil
}

func (r *repo) ClaimedAmong(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var claimed []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.ClosingOrder{}).
		Where("order_id IN ?", ids).
		Order("order_id asc").
		Pluck("order_id", &claimed).Error
	return claimed, err
}

// Insert writes the closing, its per-method totals and its order claims. A
// duplicate claim surfaces as AggregationConflictError.
func (r *repo) Insert(ctx context.Context, tx *gorm.DB, closing *domain.CashClosing) error {
	tx = tx.WithContext(ctx)
	if err := tx.Create(closing).Error; err != nil {
		return err
	}

	if len(closing.Totals) > 0 {
		totals := make([]domain.MethodTotal, len(closing.Totals))
		for i, total := range closing.Totals {
			total.ClosingID = closing.ID
			totals[i] = total
		}
		if err := tx.Create(&totals).Error; err != nil {
			return err
		}
	}

	if len(closing.OrderIDs) > 0 {
		claims := make([]domain.ClosingOrder, 0, len(closing.OrderIDs))
		for _, id := range closing.OrderIDs {
			claims = append(claims, domain.ClosingOrder{OrderID: id, ClosingID: closing.ID, CreatedAt: closing.CreatedAt})
		}
		if err := tx.Create(&claims).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.AggregationConflictError{OrderIDs: closing.OrderIDs}
			}
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.CashClosing, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var closing domain.CashClosing
	if err := stmt.Where("id = ?", id).First(&closing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	closings := []domain.CashClosing{closing}
	if err := r.attach(ctx, db, closings); err != nil {
		return nil, err
	}
	return &closings[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.CashClosing, error) {
	stmt := db.WithContext(ctx).Model(&domain.CashClosing{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ShiftLabel != "" {
		stmt = stmt.Where("shift_label = ?", filter.ShiftLabel)
	}
	if filter.From != nil {
		stmt = stmt.Where("window_start >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("window_end <= ?", filter.To.UTC())
	}

	stmt, err := pagination.ApplyKeyset(stmt, page)
	if err != nil {
		return nil, err
	}

	var closings []domain.CashClosing
	if err := stmt.Find(&closings).Error; err != nil {
		return nil, err
	}
	if err := r.attach(ctx, db, closings); err != nil {
		return nil, err
	}
	return closings, nil
}

func (r *repo) UpdateReview(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, notes string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE cash_closings SET status = ?, notes = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, notes, at, id, from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) attach(ctx context.Context, db *gorm.DB, closings []domain.CashClosing) error {
	if len(closings) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(closings))
	index := make(map[snowflake.ID]int, len(closings))
	for i := range closings {
		ids = append(ids, closings[i].ID)
		index[closings[i].ID] = i
		closings[i].Totals = []domain.MethodTotal{}
		closings[i].OrderIDs = []snowflake.ID{}
	}

	var totals []domain.MethodTotal
	if err := db.WithContext(ctx).Where("closing_id IN ?", ids).Find(&totals).Error; err != nil {
		return err
	}
	for _, total := range totals {
		if i, ok := index[total.ClosingID]; ok {
			closings[i].Totals = append(closings[i].Totals, total)
		}
	}
	for i := range closings {
		sortTotals(closings[i].Totals)
	}

	var claims []domain.ClosingOrder
	if err := db.WithContext(ctx).Where("closing_id IN ?", ids).Order("order_id asc").Find(&claims).Error; err != nil {
		return err
	}
	for _, claim := range claims {
		if i, ok := index[claim.ClosingID]; ok {
			closings[i].OrderIDs = append(closings[i].OrderIDs, claim.OrderID)
		}
	}
	return nil
}

func sortTotals(totals []domain.MethodTotal) {
	rank := make(map[settlement.Method]int, len(settlement.Methods))
	for i, m := range settlement.Methods {
		rank[m] = i
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return rank[totals[i].Method] < rank[totals[j].Method]
	})
}
