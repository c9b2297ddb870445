// File: internal/reasoning/gated_test.go
package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/credits"
)

// MockClient is a testify mock over schemas.ReasoningClient.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.GenerationResult), args.Error(1)
}

func newLedger(balance float64) *credits.Ledger {
	return credits.NewLedger(balance, credits.Thresholds{Normal: 1000, Low: 200}, zap.NewNop())
}

// -- Credit gate --

func TestGatedClient_DeadTierSkipsBackendEntirely(t *testing.T) {
	for _, balance := range []float64{0, -1, 150} { // dead, dead, critical
		inner := new(MockClient)
		ledger := newLedger(balance)
		gated := NewGatedClient(inner, ledger, zap.NewNop())

		result, err := gated.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

		assert.ErrorIs(t, err, ErrInsufficientCredits, "balance=%v", balance)
		assert.Zero(t, result.TokensUsed)
		assert.Empty(t, result.Content)
		inner.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		// The ledger is untouched.
		assert.Equal(t, balance, ledger.Snapshot().Balance)
	}
}

func TestGatedClient_LowComputeRoutesToFastTier(t *testing.T) {
	inner := new(MockClient)
	ledger := newLedger(500) // low_compute
	gated := NewGatedClient(inner, ledger, zap.NewNop())

	inner.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.ModelTierFast
	})).Return(schemas.GenerationResult{Content: "ok", TokensUsed: 100}, nil).Once()

	result, err := gated.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	inner.AssertExpectations(t)
}

func TestGatedClient_NormalTierPassesThroughAndDebits(t *testing.T) {
	inner := new(MockClient)
	ledger := newLedger(2000)
	gated := NewGatedClient(inner, ledger, zap.NewNop())

	inner.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.GenerationResult{Content: "answer", TokensUsed: 321}, nil).Once()

	result, err := gated.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 321, result.TokensUsed)
	// Tokens debit credits 1:1.
	assert.Equal(t, 2000.0-321, ledger.Snapshot().Balance)
}

func TestGatedClient_BackendErrorDoesNotDebit(t *testing.T) {
	inner := new(MockClient)
	ledger := newLedger(2000)
	gated := NewGatedClient(inner, ledger, zap.NewNop())

	inner.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.GenerationResult{}, errors.New("boom")).Once()

	_, err := gated.Generate(context.Background(), schemas.GenerationRequest{})
	assert.Error(t, err)
	assert.Equal(t, 2000.0, ledger.Snapshot().Balance)
}

// -- Router --

func TestRouter_RoutesByTier(t *testing.T) {
	fast := new(MockClient)
	powerful := new(MockClient)
	router, err := NewRouter(zap.NewNop(), fast, powerful)
	require.NoError(t, err)

	fast.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.GenerationResult{Content: "fast"}, nil).Once()
	powerful.On("Generate", mock.Anything, mock.Anything).
		Return(schemas.GenerationResult{Content: "powerful"}, nil).Twice()

	r1, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.ModelTierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", r1.Content)

	r2, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.ModelTierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful", r2.Content)

	// An unspecified tier defaults to powerful.
	r3, err := router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "powerful", r3.Content)

	fast.AssertExpectations(t)
	powerful.AssertExpectations(t)
}

func TestRouter_RequiresBothClients(t *testing.T) {
	_, err := NewRouter(zap.NewNop(), nil, new(MockClient))
	assert.Error(t, err)
	_, err = NewRouter(zap.NewNop(), new(MockClient), nil)
	assert.Error(t, err)
}
