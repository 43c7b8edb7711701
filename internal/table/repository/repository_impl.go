package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/table/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number int, forUpdate bool) (*domain.Table, error) {
	return r.first(lock(db.WithContext(ctx), forUpdate).Where("number = ?", number))
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Table, error) {
	return r.first(lock(db.WithContext(ctx), forUpdate).Where("id = ?", id))
}

func (r *repo) first(stmt *gorm.DB) (*domain.Table, error) {
	var table domain.Table
	if err := stmt.First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &table, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Table, error) {
	stmt := db.WithContext(ctx).Model(&domain.Table{})
	if req.State != "" {
		stmt = stmt.Where("state = ?", req.State)
	}
	if req.Location != "" {
		stmt = stmt.Where("location_slug = ?", req.Location)
	}

	var tables []domain.Table
	if err := stmt.Order("number asc").Find(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&domain.Table{}).Order("number asc").Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.State, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE dining_tables SET state = ?, updated_at = ? WHERE id = ?`,
		state, at, id,
	).Error
}

// InsertIfMissing keys on the table number so seeding is repeatable.
func (r *repo) InsertIfMissing(ctx context.Context, db *gorm.DB, table *domain.Table) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		DoNothing: true,
	}).Create(table).Error
}

func lock(db *gorm.DB, forUpdate bool) *gorm.DB {
	if !forUpdate {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
