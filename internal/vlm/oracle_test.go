package vlm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/llmclient"
)

type scriptedClient struct {
	replies []string
	err     error
	calls   []llmclient.GenerationRequest
}

func (c *scriptedClient) Generate(ctx context.Context, req llmclient.GenerationRequest) (string, error) {
	c.calls = append(c.calls, req)
	if c.err != nil {
		return "", c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply, nil
}

func testOracle(c llmclient.Client) *Oracle {
	return NewOracle(c, config.NewDefaultConfig().LLM, zap.NewNop())
}

func threeElementSnapshot() *schemas.Snapshot {
	return &schemas.Snapshot{
		Generation: 1,
		Elements: []schemas.Element{
			{ID: 1, Label: "Home"},
			{ID: 2, Label: "Sign in"},
			{ID: 3, Label: "Cart"},
		},
	}
}

func TestLocateParsesID(t *testing.T) {
	c := &scriptedClient{replies: []string{":id:2:"}}
	o := testOracle(c)

	id, err := o.Locate(context.Background(), []byte("png"), "the sign in button", threeElementSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	require.Len(t, c.calls, 1)
	assert.Len(t, c.calls[0].Images, 1)
}

func TestLocateToleratesChatter(t *testing.T) {
	c := &scriptedClient{replies: []string{"The matching element is :id: 3 : as labeled."}}
	o := testOracle(c)

	id, err := o.Locate(context.Background(), nil, "cart icon", threeElementSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestLocateNotFound(t *testing.T) {
	c := &scriptedClient{replies: []string{":not_found:"}}
	o := testOracle(c)

	_, err := o.Locate(context.Background(), nil, "a unicorn", threeElementSnapshot())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocateRejectsIDOutsideCatalog(t *testing.T) {
	c := &scriptedClient{replies: []string{":id:99:"}}
	o := testOracle(c)

	_, err := o.Locate(context.Background(), nil, "anything", threeElementSnapshot())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocateEmptySnapshotShortCircuits(t *testing.T) {
	c := &scriptedClient{replies: []string{":id:1:"}}
	o := testOracle(c)

	_, err := o.Locate(context.Background(), nil, "anything", &schemas.Snapshot{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, c.calls, "no model call for an empty catalog")
}

func TestLocateMalformedReply(t *testing.T) {
	c := &scriptedClient{replies: []string{"element number two"}}
	o := testOracle(c)

	_, err := o.Locate(context.Background(), nil, "anything", threeElementSnapshot())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtract(t *testing.T) {
	c := &scriptedClient{replies: []string{"  The total is $42.17.  "}}
	o := testOracle(c)

	answer, err := o.Extract(context.Background(), []byte("png"), "What is the cart total?")
	require.NoError(t, err)
	assert.Equal(t, "The total is $42.17.", answer)
}
