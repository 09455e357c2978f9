package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app"
	"milkwms/internal/infrastructure/storage/memory"
)

func TestDemoMasterDataIsStable(t *testing.T) {
	a, b := app.DemoMasterData(), app.DemoMasterData()
	assert.Equal(t, a, b)
	assert.Len(t, a.Locations, 8)
	for i, p := range a.Packings {
		assert.Equal(t, a.Goods[i].ID, p.GoodsID)
	}
}

func TestSeedMasterDataIntoMemory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	d := app.DemoMasterData()

	require.NoError(t, app.SeedMasterData(ctx, store.Seeder(), d))
	// reseeding overwrites
	require.NoError(t, app.SeedMasterData(ctx, store.Seeder(), d))

	lookup := store.Lookup()
	g, err := lookup.GetGoods(ctx, d.Goods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "MILK-1L", g.Code)

	locs, err := lookup.ListLocationsByArea(ctx, d.Areas[0].ID)
	require.NoError(t, err)
	assert.Len(t, locs, 4)
}
