package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebill/tidebill/internal/billing"
)

type mockRepo struct {
	refs    map[int64]*billing.CatalogRef
	lookups int
}

func (m *mockRepo) VariationRef(ctx context.Context, userID, variationID int64) (*billing.CatalogRef, error) {
	m.lookups++
	ref, ok := m.refs[variationID]
	if !ok {
		return nil, ErrNotFound
	}
	return ref, nil
}

func (m *mockRepo) GetProduct(ctx context.Context, userID, id int64) (*Product, error) {
	return nil, ErrNotFound
}
func (m *mockRepo) ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	return nil, nil
}
func (m *mockRepo) CreateProduct(ctx context.Context, p Product) (int64, error) { return 0, nil }
func (m *mockRepo) UpdateProduct(ctx context.Context, p Product) error          { return nil }
func (m *mockRepo) DeleteProduct(ctx context.Context, userID, id int64) error   { return nil }
func (m *mockRepo) GetVariation(ctx context.Context, userID, id int64) (*Variation, error) {
	return nil, ErrNotFound
}
func (m *mockRepo) CreateVariation(ctx context.Context, userID int64, v Variation) (int64, error) {
	return 0, nil
}
func (m *mockRepo) UpdateVariation(ctx context.Context, userID int64, v Variation) error { return nil }
func (m *mockRepo) DeleteVariation(ctx context.Context, userID, id int64) error          { return nil }

func newTestLookup(t *testing.T) (*PriceLookup, *mockRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &mockRepo{refs: map[int64]*billing.CatalogRef{
		7: {VariationID: 7, ProductName: "Widget", Size: "M", Price: 10},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPriceLookup(repo, client, logger), repo, mr
}

func TestPriceLookupCachesHits(t *testing.T) {
	lookup, repo, _ := newTestLookup(t)
	ctx := context.Background()

	ref, err := lookup.Variation(ctx, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "Widget", ref.ProductName)
	assert.Equal(t, 1, repo.lookups)

	// Second read is served from redis.
	ref, err = lookup.Variation(ctx, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.InDelta(t, 10.0, ref.Price, 1e-9)
	assert.Equal(t, 1, repo.lookups)
}

func TestPriceLookupCachesMisses(t *testing.T) {
	lookup, repo, _ := newTestLookup(t)
	ctx := context.Background()

	ref, err := lookup.Variation(ctx, 1, 99)
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.Equal(t, 1, repo.lookups)

	// The negative answer is cached too.
	ref, err = lookup.Variation(ctx, 1, 99)
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.Equal(t, 1, repo.lookups)
}

func TestPriceLookupInvalidate(t *testing.T) {
	lookup, repo, _ := newTestLookup(t)
	ctx := context.Background()

	_, err := lookup.Variation(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, 1, repo.lookups)

	repo.refs[7].Price = 12
	lookup.Invalidate(ctx, 1, 7)

	ref, err := lookup.Variation(ctx, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.InDelta(t, 12.0, ref.Price, 1e-9)
	assert.Equal(t, 2, repo.lookups)
}

func TestPriceLookupKeysAreUserScoped(t *testing.T) {
	lookup, repo, _ := newTestLookup(t)
	ctx := context.Background()

	_, err := lookup.Variation(ctx, 1, 7)
	require.NoError(t, err)
	_, err = lookup.Variation(ctx, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lookups)
}

func TestPriceLookupWithoutRedisFallsThrough(t *testing.T) {
	repo := &mockRepo{refs: map[int64]*billing.CatalogRef{
		7: {VariationID: 7, ProductName: "Widget", Price: 10},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lookup := NewPriceLookup(repo, nil, logger)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ref, err := lookup.Variation(ctx, 1, 7)
		require.NoError(t, err)
		require.NotNil(t, ref)
	}
	assert.Equal(t, 2, repo.lookups)
}
