package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	rows map[int64]*StoreSettings
	err  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: make(map[int64]*StoreSettings)}
}

func (m *mockRepository) Get(ctx context.Context, userID int64) (*StoreSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.rows[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *mockRepository) Upsert(ctx context.Context, s StoreSettings) error {
	if m.err != nil {
		return m.err
	}
	m.rows[s.UserID] = &s
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetReturnsDefaultsWhenAbsent(t *testing.T) {
	svc := newTestService(newMockRepository())

	st, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, DefaultTaxRate, st.TaxRate, 1e-9)
	assert.Empty(t, st.StoreName)
}

func TestUpdateRoundTrips(t *testing.T) {
	svc := newTestService(newMockRepository())

	st, err := svc.Update(context.Background(), 1, UpdateRequest{StoreName: "Tide Jewelry", TaxRate: 0.08})
	require.NoError(t, err)
	assert.Equal(t, "Tide Jewelry", st.StoreName)
	assert.InDelta(t, 0.08, st.TaxRate, 1e-9)
}

func TestTaxRateDefaultsWhenAbsent(t *testing.T) {
	svc := newTestService(newMockRepository())

	rate, err := svc.TaxRate(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, DefaultTaxRate, rate, 1e-9)
}

func TestTaxRateUsesStoredValue(t *testing.T) {
	repo := newMockRepository()
	repo.rows[1] = &StoreSettings{UserID: 1, TaxRate: 0.1}
	svc := newTestService(repo)

	rate, err := svc.TaxRate(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rate, 1e-9)
}

func TestTaxRateZeroIsValid(t *testing.T) {
	repo := newMockRepository()
	repo.rows[1] = &StoreSettings{UserID: 1, TaxRate: 0}
	svc := newTestService(repo)

	rate, err := svc.TaxRate(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestTaxRateOutOfRangeFallsBack(t *testing.T) {
	repo := newMockRepository()
	repo.rows[1] = &StoreSettings{UserID: 1, TaxRate: 1.5}
	repo.rows[2] = &StoreSettings{UserID: 2, TaxRate: -0.2}
	svc := newTestService(repo)

	for _, userID := range []int64{1, 2} {
		rate, err := svc.TaxRate(context.Background(), userID)
		require.NoError(t, err)
		assert.InDelta(t, DefaultTaxRate, rate, 1e-9)
	}
}

func TestTaxRatePropagatesInfrastructureErrors(t *testing.T) {
	repo := newMockRepository()
	repo.err = errors.New("connection refused")
	svc := newTestService(repo)

	_, err := svc.TaxRate(context.Background(), 1)
	assert.Error(t, err)
}
