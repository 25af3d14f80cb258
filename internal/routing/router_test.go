package routing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/routing"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) SupportedModels() []string           { return nil }
func (f *fakeProvider) FetchModels(context.Context) []string { return nil }
func (f *fakeProvider) HealthCheck(context.Context) error   { return nil }
func (f *fakeProvider) StreamCompletion(
	context.Context, *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	return nil, errors.New("not implemented")
}

// fakeCatalog is a controllable CatalogSource.
type fakeCatalog struct {
	mu        sync.Mutex
	catalog   map[string][]string
	version   uint64
	providers map[string]domain.Provider
	calls     int
}

func (f *fakeCatalog) Catalog() (map[string][]string, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.catalog, f.version
}

func (f *fakeCatalog) Provider(name string) (domain.Provider, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[name]
	return p, ok
}

func (f *fakeCatalog) update(catalog map[string][]string, version uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = catalog
	f.version = version
}

func newFakeCatalog() (*fakeCatalog, *fakeProvider, *fakeProvider) {
	openai := &fakeProvider{name: "openai"}
	xai := &fakeProvider{name: "xai"}
	return &fakeCatalog{
		catalog: map[string][]string{
			"openai": {"gpt-4o", "gpt-4o-mini"},
			"xai":    {"grok-3"},
		},
		version: 1,
		providers: map[string]domain.Provider{
			"openai": openai,
			"xai":    xai,
		},
	}, openai, xai
}

func TestGetProvider_ResolvesModel(t *testing.T) {
	source, openai, xai := newFakeCatalog()
	router := routing.NewRouter(source)

	p, err := router.GetProvider("gpt-4o")
	require.NoError(t, err)
	require.Same(t, openai, p)

	p, err = router.GetProvider("grok-3")
	require.NoError(t, err)
	require.Same(t, xai, p)
}

func TestGetProvider_UnknownModelListsKnown(t *testing.T) {
	source, _, _ := newFakeCatalog()
	router := routing.NewRouter(source)

	_, err := router.GetProvider("claude-opus")

	var notFound *domain.ModelNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "claude-opus", notFound.Model)
	require.ElementsMatch(t, []string{"gpt-4o", "gpt-4o-mini", "grok-3"}, notFound.KnownModels)
}

func TestGetProvider_RebuildsOnlyWhenVersionAdvances(t *testing.T) {
	source, _, _ := newFakeCatalog()
	router := routing.NewRouter(source)

	_, err := router.GetProvider("gpt-4o")
	require.NoError(t, err)

	// Mutate the catalog without advancing the version: the stale table
	// keeps serving.
	source.update(map[string][]string{"openai": {"gpt-5"}}, 1)
	_, err = router.GetProvider("gpt-4o")
	require.NoError(t, err)
	_, err = router.GetProvider("gpt-5")
	require.Error(t, err)

	// Advancing the version swaps the table wholesale.
	source.update(map[string][]string{"openai": {"gpt-5"}}, 2)
	_, err = router.GetProvider("gpt-5")
	require.NoError(t, err)
	_, err = router.GetProvider("gpt-4o")
	require.Error(t, err)
}

func TestListAvailableModels_SortedByProviderThenModel(t *testing.T) {
	source, _, _ := newFakeCatalog()
	router := routing.NewRouter(source)

	models := router.ListAvailableModels()
	require.Equal(t, []domain.ModelInfo{
		{Model: "gpt-4o", Provider: "openai"},
		{Model: "gpt-4o-mini", Provider: "openai"},
		{Model: "grok-3", Provider: "xai"},
	}, models)
}

func TestGetProvider_EmptyModel(t *testing.T) {
	source, _, _ := newFakeCatalog()
	router := routing.NewRouter(source)

	_, err := router.GetProvider("")
	require.Error(t, err)
}
