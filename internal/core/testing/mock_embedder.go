package testing

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
)

// HashEmbedder は単語のハッシュをバケットに数え上げる決定的なテスト用Embedder
// 共通する単語が多いテキストほどコサイン類似度が高くなる
type HashEmbedder struct {
	Dimension int

	OneCalls  atomic.Int32
	ManyCalls atomic.Int32
}

// NewHashEmbedder は指定次元の HashEmbedder を作成する
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{Dimension: dimension}
}

func (e *HashEmbedder) EmbedOne(ctx context.Context, text string) (embedding.Vector, error) {
	e.OneCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	e.ManyCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) embedding.Vector {
	dim := e.Dimension
	if dim <= 0 {
		dim = 64
	}
	vec := make(embedding.Vector, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	// 単語が無い場合もゼロベクトルにしない
	vec[dim-1] += 0.01
	return vec
}

// MockEmbedder はテスト用のモックEmbedderです
type MockEmbedder struct {
	EmbedOneFunc  func(ctx context.Context, text string) (embedding.Vector, error)
	EmbedManyFunc func(ctx context.Context, texts []string) ([]embedding.Vector, error)
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) (embedding.Vector, error) {
	if m.EmbedOneFunc != nil {
		return m.EmbedOneFunc(ctx, text)
	}
	return nil, nil
}

func (m *MockEmbedder) EmbedMany(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	if m.EmbedManyFunc != nil {
		return m.EmbedManyFunc(ctx, texts)
	}
	return nil, nil
}

var (
	_ embedding.Embedder = (*HashEmbedder)(nil)
	_ embedding.Embedder = (*MockEmbedder)(nil)
)
