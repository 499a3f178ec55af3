package llm

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xiaot623/chatd/internal/domain"
)

type countingFactory struct {
	calls int
	err   error
}

func (f *countingFactory) build(ctx context.Context, provider, model string, cred Credential) (llms.Model, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fakeModel{}, nil
}

func TestRegistryListProviders(t *testing.T) {
	r := NewRegistryWithFactory((&countingFactory{}).build, false)

	providers := r.ListProviders()
	require.Len(t, providers, 4)
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.Provider)
		assert.True(t, p.SupportsModel(p.DefaultModel), p.Provider)
	}
	assert.Equal(t, []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderGroq}, ids)

	// Returned slice is a copy.
	providers[0].Name = "changed"
	assert.Equal(t, "OpenAI", r.ListProviders()[0].Name)
}

func TestRegistryResolveUnknownProviderNeverReachesFactory(t *testing.T) {
	f := &countingFactory{}
	r := NewRegistryWithFactory(f.build, false)

	_, err := r.Resolve(context.Background(), "nonexistent", "x", &Credential{APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Equal(t, 0, f.calls)
}

func TestRegistryResolveUnsupportedModel(t *testing.T) {
	f := &countingFactory{}
	r := NewRegistryWithFactory(f.build, false)

	_, err := r.Resolve(context.Background(), ProviderOpenAI, "gpt-99", &Credential{APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Equal(t, 0, f.calls)
}

func TestRegistryResolveMissingCredential(t *testing.T) {
	f := &countingFactory{}
	r := NewRegistryWithFactory(f.build, false)

	_, err := r.Resolve(context.Background(), ProviderAnthropic, "", nil)
	assert.ErrorIs(t, err, domain.ErrMissingCredential)

	_, err = r.Resolve(context.Background(), ProviderAnthropic, "", &Credential{})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Equal(t, 0, f.calls)
}

func TestRegistryResolveBuildsAdapter(t *testing.T) {
	f := &countingFactory{}
	r := NewRegistryWithFactory(f.build, false)

	a, err := r.Resolve(context.Background(), ProviderGroq, "", &Credential{APIKey: "k"})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 1, f.calls)

	ma, ok := a.(*ModelAdapter)
	require.True(t, ok)
	assert.Equal(t, "mixtral-8x7b-32768", ma.model)
}

func TestRegistryResolveFactoryError(t *testing.T) {
	f := &countingFactory{err: errors.New("missing the OpenAI API key")}
	r := NewRegistryWithFactory(f.build, false)

	_, err := r.Resolve(context.Background(), ProviderOpenAI, "gpt-4", &Credential{APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
}

func TestRegistryMockModeNeedsNoCredential(t *testing.T) {
	r := NewRegistry(true)

	a, err := r.Resolve(context.Background(), ProviderGoogle, "gemini-1.5-flash", nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestNewVendorModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewVendorModel(context.Background(), "nonexistent", "m", Credential{APIKey: "k"})
	assert.Error(t, err)
}

func TestModelAdapterCloseReleasesClient(t *testing.T) {
	var models []*connModel
	r := NewRegistryWithFactory(func(ctx context.Context, provider, model string, cred Credential) (llms.Model, error) {
		m := newConnModel()
		models = append(models, m)
		return m, nil
	}, false)

	baseline := runtime.NumGoroutine()
	adapters := make([]Adapter, 0, 20)
	for i := 0; i < 20; i++ {
		a, err := r.Resolve(context.Background(), ProviderGoogle, "", &Credential{APIKey: "k"})
		require.NoError(t, err)
		adapters = append(adapters, a)
	}
	assert.Greater(t, runtime.NumGoroutine(), baseline+10)

	for _, a := range adapters {
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
	for _, m := range models {
		assert.Equal(t, 1, m.closed)
	}
}

func TestRegistryResolveFactoryErrorClosesPartialClient(t *testing.T) {
	m := newConnModel()
	r := NewRegistryWithFactory(func(ctx context.Context, provider, model string, cred Credential) (llms.Model, error) {
		return m, errors.New("creating generative client: bad endpoint")
	}, false)

	_, err := r.Resolve(context.Background(), ProviderGoogle, "", &Credential{APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
	assert.Equal(t, 1, m.closed)
}

func TestGoogleModelCloseStopsGoroutines(t *testing.T) {
	ctx := context.Background()
	build := func() Adapter {
		m, err := NewVendorModel(ctx, ProviderGoogle, "gemini-1.5-flash", Credential{APIKey: "x"})
		require.NoError(t, err)
		return NewModelAdapter(ProviderGoogle, "gemini-1.5-flash", m)
	}
	// Package level goroutines start with the first client.
	require.NoError(t, build().Close())
	baseline := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		require.NoError(t, build().Close())
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewVendorModelGoogleEndpoint(t *testing.T) {
	m, err := NewVendorModel(context.Background(), ProviderGoogle, "gemini-1.5-flash", Credential{APIKey: "x", BaseURL: "https://gemini.internal.example"})
	require.NoError(t, err)
	assert.NoError(t, NewModelAdapter(ProviderGoogle, "gemini-1.5-flash", m).Close())
}
