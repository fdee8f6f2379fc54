package fixture

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/storage/memory"
)

func TestApply_SeedFile(t *testing.T) {
	ctx := context.Background()
	f, err := Load("../../db/seed/fixture.yaml")
	require.NoError(t, err)

	s := memory.New()
	engine := coupon.NewEngine(s.Coupons(), coupon.DefaultLoyalty())
	pepper := []byte("pepper")

	st, err := f.Apply(ctx, s, engine, pepper)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Stores)
	assert.Equal(t, 4, st.Products)
	assert.Equal(t, 2, st.Coupons)
	assert.Equal(t, 2, st.APIKeys)

	p, err := s.Catalog().GetProduct(ctx, "pizza")
	require.NoError(t, err)
	require.Len(t, p.Groups, 1)
	require.Len(t, p.Groups[0].Modifiers, 2)
	assert.True(t, p.Groups[0].Modifiers[0].IsDefault)

	l, err := s.Catalog().GetProductListing(ctx, "downtown", "pizza")
	require.NoError(t, err)
	require.True(t, l.PromoPrice.Valid)
	assert.Equal(t, "11.00", l.PromoPrice.Decimal.StringFixed(2))

	soda, err := s.Catalog().GetProductListing(ctx, "airport", "soda")
	require.NoError(t, err)
	assert.False(t, soda.Available)

	key, err := s.APIKeys().FindByHash(ctx, auth.HashKey(pepper, "downtown-operator-key"))
	require.NoError(t, err)
	assert.Equal(t, "downtown", key.StoreID)
	assert.True(t, key.HasScope(auth.ScopeOrdersStatus))

	again, err := f.Apply(ctx, s, engine, pepper)
	require.NoError(t, err, "applying twice is safe")
	assert.Equal(t, 2, again.CouponsSkipped)
	assert.Zero(t, again.Coupons)
}

func TestApply_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	f, err := Parse(strings.NewReader(`
stores:
  - {id: s1, name: One}
coupons:
  - {code: BAD, kind: bogo, value: "1"}
`))
	require.NoError(t, err)

	s := memory.New()
	_, err = f.Apply(ctx, s, coupon.NewEngine(s.Coupons(), coupon.DefaultLoyalty()), nil)
	require.Error(t, err)

	_, err = s.Catalog().GetStore(ctx, "s1")
	assert.Error(t, err, "store write is rolled back")
}

func TestParse(t *testing.T) {
	_, err := Parse(strings.NewReader("stores:\n  - {id: s1, colour: red}\n"))
	assert.Error(t, err, "unknown fields are rejected")

	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Stores)

	_, err = Load("missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
