package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.NewDefaultConfig().Memory
	cfg.Path = ":memory:"
	s, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func loginSteps() []schemas.ExecutionRecord {
	return []schemas.ExecutionRecord{
		{Description: "Open the login page", Action: schemas.ActionNavigate, Outcome: "navigated to https://example.com/login"},
		{Description: "Type the username", Action: schemas.ActionType, Outcome: "typed into field 2"},
		{Description: "Click the log in button", Action: schemas.ActionClick, Outcome: "clicked element 3"},
	}
}

func TestSaveAndRecallSameDomain(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", true, loginSteps()))

	exp, err := s.Recall(ctx, "example.com", "log in to the account")
	require.NoError(t, err)
	assert.True(t, exp.Success)
	assert.Len(t, exp.Steps, 3)
	assert.GreaterOrEqual(t, exp.Similarity, 0.5)
}

func TestRecallDomainThresholdRejectsWeakMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", true, loginSteps()))

	_, err := s.Recall(ctx, "example.com", "download the quarterly sales report spreadsheet")
	assert.ErrorIs(t, err, ErrNoExperience)
}

func TestRecallCrossDomainNeedsStricterMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "shop.example.com", "add a blue kettle to the cart", true, loginSteps()))

	// Moderately similar task on a different domain: below the global bar.
	_, err := s.Recall(ctx, "other.example.org", "add a kettle somewhere")
	assert.ErrorIs(t, err, ErrNoExperience)

	// Near-identical task crosses domains.
	exp, err := s.Recall(ctx, "other.example.org", "add a blue kettle to the cart")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", exp.Domain)
	assert.GreaterOrEqual(t, exp.Similarity, 0.6)
}

func TestSaveReplacesNearDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", false, loginSteps()[:1]))
	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", true, loginSteps()))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM experiences`).Scan(&count))
	assert.Equal(t, 1, count)

	exp, err := s.Recall(ctx, "example.com", "log in to my account")
	require.NoError(t, err)
	assert.True(t, exp.Success)
	assert.Len(t, exp.Steps, 3)
}

func TestSaveKeepsSuccessOverFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", true, loginSteps()))
	require.NoError(t, s.Save(ctx, "example.com", "log in to my account", false, nil))

	exp, err := s.Recall(ctx, "example.com", "log in to my account")
	require.NoError(t, err)
	assert.True(t, exp.Success, "a stored success must not be displaced by a failure")
	assert.Len(t, exp.Steps, 3)
}

func TestRecallEmptyStore(t *testing.T) {
	s := testStore(t)
	_, err := s.Recall(context.Background(), "example.com", "anything at all")
	assert.ErrorIs(t, err, ErrNoExperience)
}

func TestLogStep(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, rec := range loginSteps() {
		require.NoError(t, s.LogStep(ctx, "run-1", i, rec))
	}

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM run_log WHERE run_id = ?`, "run-1").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, tokenOverlap(normalize("Log In"), normalize("log in")))
	assert.Equal(t, 0.0, tokenOverlap(normalize("buy socks"), normalize("read news")))
	assert.InDelta(t, 0.5, tokenOverlap(normalize("a b c d"), normalize("a b e f")), 0.17)
	assert.Equal(t, 0.0, tokenOverlap("", "anything"))
}
