package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/comanda/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	closingdomain "github.com/smallbiznis/comanda/internal/closing/domain"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/sequence"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, parents first.
func Models() []any {
	return []any{
		&tabledomain.Table{},
		&catalogdomain.Product{},
		&sequence.Sequence{},
		&orderdomain.Order{},
		&orderdomain.Line{},
		&orderdomain.HistoryEntry{},
		&closingdomain.CashClosing{},
		&closingdomain.MethodTotal{},
		&closingdomain.ClosingOrder{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models. It backs sqlite and mysql,
// which the embedded SQL does not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}
