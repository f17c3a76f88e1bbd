package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_Generate(t *testing.T) {
	provider, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	emb, err := provider.Generate(context.Background(), "def foo(): pass")
	require.NoError(t, err)
	assert.Len(t, emb.Vector, LocalDimension)
	assert.Equal(t, LocalDimension, emb.Dimension)
	assert.Equal(t, ProviderLocal, emb.Provider)
	assert.NotEmpty(t, emb.Hash)
}

func TestLocalProvider_Deterministic(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := provider.Generate(ctx, "some code")
	require.NoError(t, err)
	b, err := provider.Generate(ctx, "some code")
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector)

	c, err := provider.Generate(ctx, "different code")
	require.NoError(t, err)
	assert.NotEqual(t, a.Vector, c.Vector)
}

func TestLocalProvider_EmptyText(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProvider_Batch(t *testing.T) {
	provider, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)

	texts := []string{"alpha", "beta", "gamma"}
	resp, err := provider.GenerateBatch(context.Background(), BatchRequest{Texts: texts})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)

	// Order preservation: each output matches single-text generation
	for i, text := range texts {
		single, err := provider.Generate(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single.Vector, resp.Embeddings[i].Vector)
	}
}

func TestBatchValidation(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = provider.GenerateBatch(context.Background(), BatchRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = provider.GenerateBatch(context.Background(), BatchRequest{Texts: []string{"ok", ""}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCache_DeepCopy(t *testing.T) {
	cache := NewCache(10)
	cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

	got, ok := cache.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestCache_Eviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{})
	cache.Set("b", &Embedding{})
	cache.Set("c", &Embedding{})
	assert.Equal(t, 2, cache.Size())

	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t, ComputeHash("x"), ComputeHash("x"))
	assert.NotEqual(t, ComputeHash("x"), ComputeHash("y"))
	assert.Len(t, ComputeHash("x"), 64)
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNewFromConfig(t *testing.T) {
	emb, err := New(Config{Provider: "local", CacheSize: 10})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	_, err = New(Config{Provider: "bogus"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNewJinaProvider_MissingKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	_, err := NewJinaProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestDetectProvider(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	assert.Equal(t, ProviderLocal, DetectProvider())

	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	assert.Equal(t, ProviderOpenAI, DetectProvider())

	t.Setenv(EnvProvider, "JINA")
	assert.Equal(t, ProviderJina, DetectProvider())
}
