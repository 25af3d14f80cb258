package echo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/echo"
)

func TestProvider_Name(t *testing.T) {
	provider := echo.NewProvider()
	require.Equal(t, "echo", provider.Name())
}

func TestSupportedModels(t *testing.T) {
	provider := echo.NewProvider()
	require.Equal(t, []string{"echo4"}, provider.SupportedModels())
	require.Equal(t, provider.SupportedModels(), provider.FetchModels(context.Background()))
}

func TestHealthCheck(t *testing.T) {
	provider := echo.NewProvider()
	require.NoError(t, provider.HealthCheck(context.Background()))
}

func TestStreamCompletion_EchoesMessages(t *testing.T) {
	provider := echo.NewProvider()

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			domain.TextMessage("user", "hello world"),
		},
	})
	require.NoError(t, err)

	var builder strings.Builder
	var usage *domain.Usage
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage != nil {
			require.Nil(t, usage, "usage must arrive at most once")
			usage = event.Usage
			continue
		}
		require.Nil(t, usage, "usage must be the last event")
		builder.WriteString(event.Text)
	}

	require.Contains(t, builder.String(), "[user]: hello world")
	require.NotNil(t, usage)
	require.Equal(t, usage.PromptTokens, usage.CompletionTokens)
	require.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
}

func TestStreamCompletion_UnsupportedModel(t *testing.T) {
	provider := echo.NewProvider()

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{domain.TextMessage("user", "hi")},
	})
	require.Error(t, err)
	require.Nil(t, events)
}

func TestStreamCompletion_NilRequest(t *testing.T) {
	provider := echo.NewProvider()

	events, err := provider.StreamCompletion(context.Background(), nil)
	require.Error(t, err)
	require.Nil(t, events)
}
