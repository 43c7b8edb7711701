package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("claim: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("constraint failed: UNIQUE constraint failed: cash_closing_orders.order_id (1555)")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsSerializationErr(t *testing.T) {
	assert.False(t, IsSerializationErr(nil))
	assert.True(t, IsSerializationErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationErr(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"})))
	assert.True(t, IsSerializationErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsSerializationErr(&pgconn.PgError{Code: "23505"}))
}
