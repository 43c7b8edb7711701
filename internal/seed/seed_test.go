package seed

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/sequence"
	tabledomain "github.com/smallbiznis/comanda/internal/table/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRunIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tabledomain.Table{}, &catalogdomain.Product{}, &sequence.Sequence{}))

	ctx := context.Background()
	opts := Options{Tables: 10, DemoCatalog: true}
	require.NoError(t, Run(ctx, db, opts, nil))
	require.NoError(t, Run(ctx, db, opts, nil))

	var tables []tabledomain.Table
	require.NoError(t, db.Order("number asc").Find(&tables).Error)
	require.Len(t, tables, 10)
	assert.Equal(t, "salon", tables[0].LocationSlug)
	assert.Equal(t, "terraza", tables[9].LocationSlug)
	assert.Equal(t, tabledomain.StateFree, tables[9].State)

	var products int64
	require.NoError(t, db.Model(&catalogdomain.Product{}).Count(&products).Error)
	assert.Equal(t, int64(len(demoCatalog)), products)

	var sequences int64
	require.NoError(t, db.Model(&sequence.Sequence{}).Count(&sequences).Error)
	assert.Equal(t, int64(2), sequences)
}
