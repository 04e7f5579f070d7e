package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/scigraph/internal/config"
)

type MockLLMClient struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.Response, m.Err
}

func TestNormalize(t *testing.T) {
	labels := DefaultResearchAreas
	cases := []struct{ reply, want string }{
		{"0", "AGRICULTURE"},
		{" [20] ", "WILDFIRES"},
		{"14.", "PUBLIC HEALTH"},
		{"air quality", "AIR QUALITY"},
		{`"Floods"`, "FLOODS"},
		{"The best area is LAND SURFACE/AGRICULTURE INDICATORS", "LAND SURFACE/AGRICULTURE INDICATORS"},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.reply, labels)
		assert.True(t, ok, tc.reply)
		assert.Equal(t, tc.want, got, tc.reply)
	}

	for _, reply := range []string{"", "99", "no idea"} {
		_, ok := Normalize(reply, labels)
		assert.False(t, ok, reply)
	}
}

func TestPromptClassifier_Predict(t *testing.T) {
	mock := &MockLLMClient{Response: "4"}
	c := NewPromptClassifier(mock, nil)

	label, err := c.Predict(context.Background(), "Soil moisture deficits across the plains.")
	require.NoError(t, err)
	assert.Equal(t, "DROUGHTS", label)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "[4] DROUGHTS")
	assert.Contains(t, mock.Prompts[0], "Soil moisture deficits")
}

func TestPromptClassifier_LongTextKeepsRunesWhole(t *testing.T) {
	mock := &MockLLMClient{Response: "0"}
	c := NewPromptClassifier(mock, nil)

	// The two-byte rune straddles the cut.
	text := strings.Repeat("a", maxPromptText-1) + "é" + " tail"
	_, err := c.Predict(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, mock.Prompts, 1)
	assert.True(t, utf8.ValidString(mock.Prompts[0]))
	assert.Contains(t, mock.Prompts[0], strings.Repeat("a", maxPromptText-1)+"\n")
	assert.NotContains(t, mock.Prompts[0], "tail")

	assert.Equal(t, "日本", clip("日本語", 8))
	assert.Equal(t, "", clip("語", 2))
}

func TestPromptClassifier_Errors(t *testing.T) {
	c := NewPromptClassifier(&MockLLMClient{Err: errors.New("rate limited")}, []string{"A"})
	_, err := c.Predict(context.Background(), "text")
	assert.ErrorContains(t, err, "rate limited")

	c = NewPromptClassifier(&MockLLMClient{Response: strings.Repeat("?", 200)}, []string{"A"})
	_, err = c.Predict(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUnrecognizedLabel)
}

type closingClient struct {
	MockLLMClient
	closed int
}

func (c *closingClient) Close() error {
	c.closed++
	return nil
}

func TestPromptClassifier_Close(t *testing.T) {
	client := &closingClient{}
	require.NoError(t, NewPromptClassifier(client, nil).Close())
	assert.Equal(t, 1, client.closed)

	assert.NoError(t, NewPromptClassifier(&MockLLMClient{}, nil).Close(), "clients without resources need no close")
}

func TestNewClient_Providers(t *testing.T) {
	ctx := context.Background()
	for _, p := range []string{"openai", "claude", "ollama", "OpenAI"} {
		c, err := NewClient(ctx, config.ClassifierConfig{Provider: p, Model: "m", APIKey: "k"})
		require.NoError(t, err, p)
		assert.NotNil(t, c, p)
	}
	_, err := NewClient(ctx, config.ClassifierConfig{Provider: "markov"})
	assert.Error(t, err)
}
