package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	db = db.WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(order.Lines) > 0 {
		if err := db.Create(&order.Lines).Error; err != nil {
			return err
		}
	}
	for i := range order.History {
		if err := db.Create(&order.History[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Order, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order domain.Order
	if err := stmt.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	orders := []domain.Order{order}
	if err := r.attach(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, order *domain.Order, expectedVersion int64) (bool, error) {
	next := expectedVersion + 1
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND version = ? AND state NOT IN ?", order.ID, expectedVersion, domain.TerminalStates).
		Updates(map[string]any{
			"state":                order.State,
			"subtotal":             order.Subtotal,
			"discount_method":      order.Discount.Method,
			"discount_amount":      order.Discount.Amount,
			"total":                order.Total,
			"payment_method":       order.Payment.Method,
			"payment_tendered":     order.Payment.Tendered,
			"payment_change":       order.Payment.Change,
			"payment_cashier_id":   order.Payment.CashierID,
			"payment_cashier_name": order.Payment.CashierName,
			"payment_paid_at":      order.Payment.PaidAt,
			"notes":                order.Notes,
			"version":              next,
			"updated_at":           order.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	order.Version = next
	return true, nil
}

func (r *repo) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.HistoryEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID, lines []domain.Line) error {
	db = db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&domain.Line{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return db.Create(&lines).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if len(filter.States) > 0 {
		stmt = stmt.Where("state IN ?", filter.States)
	}
	if filter.TableNumber > 0 {
		stmt = stmt.Where("table_number = ?", filter.TableNumber)
	}
	if filter.WaiterID != "" {
		stmt = stmt.Where("waiter_id = ?", filter.WaiterID)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at < ?", filter.To.UTC())
	}
	if filter.UpdatedSince != nil {
		stmt = stmt.Where("updated_at >= ?", filter.UpdatedSince.UTC())
	}

	stmt, err := pagination.ApplyKeyset(stmt, page)
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	if err := stmt.Find(&orders).Error; err != nil {
		return nil, err
	}
	if err := r.attach(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) CountActiveByTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("table_id = ? AND state NOT IN ?", tableID, domain.TerminalStates).
		Count(&count).Error
	return count, err
}

// attach loads lines and history for every order with one query each.
func (r *repo) attach(ctx context.Context, db *gorm.DB, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(orders))
	index := make(map[snowflake.ID]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = i
		orders[i].Lines = []domain.Line{}
		orders[i].History = []domain.HistoryEntry{}
	}

	var lines []domain.Line
	if err := db.WithContext(ctx).
		Where("order_id IN ?", ids).
		Order("order_id asc, position asc").
		Find(&lines).Error; err != nil {
		return err
	}
	for _, line := range lines {
		if i, ok := index[line.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, line)
		}
	}

	var history []domain.HistoryEntry
	if err := db.WithContext(ctx).
		Where("order_id IN ?", ids).
		Order("order_id asc, seq asc").
		Find(&history).Error; err != nil {
		return err
	}
	for _, entry := range history {
		if i, ok := index[entry.OrderID]; ok {
			orders[i].History = append(orders[i].History, entry)
		}
	}
	return nil
}
