package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/comanda/internal/catalog/repository"
	"github.com/smallbiznis/comanda/internal/sequence"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
	tablerepo "github.com/smallbiznis/comanda/internal/table/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	mainRoom      = "Salon"
	terrace       = "Terraza"
	mainRoomSlots = 8
)

type Options struct {
	// Tables is how many dining tables, numbered from 1, must exist.
	Tables      int
	DemoCatalog bool
}

type demoProduct struct {
	sku   string
	name  string
	price string
}

var demoCatalog = []demoProduct{
	{"MILANESA", "Milanesa napolitana", "1200.00"},
	{"EMPANADA", "Empanada de carne", "300.00"},
	{"PROVOLETA", "Provoleta", "850.00"},
	{"FLAN", "Flan casero", "450.00"},
	{"AGUA", "Agua sin gas", "250.00"},
	{"MALBEC", "Copa de malbec", "700.00"},
}

// Run seeds the dining room, the numbering sequences and optionally a demo
// catalog. Every step is idempotent.
func Run(ctx context.Context, db *gorm.DB, opts Options, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sequence.Ensure(ctx, tx, sequence.OrderNumbers, now); err != nil {
			return err
		}
		if err := sequence.Ensure(ctx, tx, sequence.ClosingNumbers, now); err != nil {
			return err
		}
		if err := ensureTables(ctx, tx, node, opts.Tables, now); err != nil {
			return err
		}
		if opts.DemoCatalog {
			return ensureDemoCatalog(ctx, tx, node, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("seed applied", zap.Int("tables", opts.Tables), zap.Bool("demo_catalog", opts.DemoCatalog))
	return nil
}

func ensureTables(ctx context.Context, tx *gorm.DB, node *snowflake.Node, count int, now time.Time) error {
	repo := tablerepo.Provide()
	for number := 1; number <= count; number++ {
		location := mainRoom
		if number > mainRoomSlots {
			location = terrace
		}
		err := repo.InsertIfMissing(ctx, tx, &tabledomain.Table{
			ID:           node.Generate(),
			Number:       number,
			Capacity:     4,
			Location:     location,
			LocationSlug: slug.Make(location),
			State:        tabledomain.StateFree,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureDemoCatalog(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) error {
	repo := catalogrepo.Provide()
	for _, p := range demoCatalog {
		err := repo.Upsert(ctx, tx, catalogdomain.Product{
			ID:        node.Generate(),
			SKU:       p.sku,
			Name:      p.name,
			Price:     decimal.RequireFromString(p.price),
			Available: true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
