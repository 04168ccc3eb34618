package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_CreateChatModel(t *testing.T) {
	f := NewFactory()
	ctx := context.Background()

	_, err := f.CreateChatModel(ctx, nil)
	assert.Error(t, err)

	_, err = f.CreateChatModel(ctx, &ProviderConfig{Kind: ProviderOpenAI})
	assert.Error(t, err)

	_, err = f.CreateChatModel(ctx, &ProviderConfig{Kind: "ark", Model: "m"})
	assert.Error(t, err)

	m, err := f.CreateChatModel(ctx, &ProviderConfig{
		Kind:    ProviderCompatible,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		BaseURL: "http://localhost:1/v1",
	})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
