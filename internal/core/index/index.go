package index

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/ingestion/chunk"
)

// Result は類似検索の結果を表す
type Result struct {
	Chunk chunk.Chunk
	Score float64 // コサイン類似度
}

type entry struct {
	chunk  chunk.Chunk
	vector embedding.Vector // L2正規化済み
}

// VectorIndex は1ポートフォリオ分のチャンクとEmbeddingを保持する全件探索インデックス
// 構築後は不変で、複数ゴルーチンから同時に検索できる
type VectorIndex struct {
	entries   []entry
	dimension int
	model     string
	createdAt time.Time
}

// BuildOption は Build のオプション設定
type BuildOption func(*VectorIndex)

// WithModel はインデックス構築に使用したEmbeddingモデル名を記録する
func WithModel(model string) BuildOption {
	return func(idx *VectorIndex) {
		idx.model = model
	}
}

// WithCreatedAt は構築時刻を上書きする
func WithCreatedAt(t time.Time) BuildOption {
	return func(idx *VectorIndex) {
		idx.createdAt = t
	}
}

// Build はチャンクとEmbeddingの組からインデックスを構築する
// 全ベクトルの次元が一致しない場合は即座に失敗する
func Build(chunks []chunk.Chunk, vectors []embedding.Vector, opts ...BuildOption) (*VectorIndex, error) {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}

	dimension := len(vectors[0])
	if dimension == 0 {
		return nil, fmt.Errorf("%w: vector 0 has no components", ErrDimensionMismatch)
	}

	entries := make([]entry, len(chunks))
	for i, vec := range vectors {
		if len(vec) != dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrDimensionMismatch, i, len(vec), dimension)
		}
		normalized, ok := normalize(vec)
		if !ok {
			return nil, fmt.Errorf("%w: vector %d", ErrZeroVector, i)
		}
		entries[i] = entry{chunk: chunks[i], vector: normalized}
	}

	idx := &VectorIndex{
		entries:   entries,
		dimension: dimension,
		createdAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Search はクエリベクトルとのコサイン類似度上位 k 件を降順で返す
// 同点の場合は登録順を保つ。k が件数より大きい場合は全件を返す
func (idx *VectorIndex) Search(query embedding.Vector, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidK, k)
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), idx.dimension)
	}

	q, ok := normalize(query)
	if !ok {
		// ゼロベクトルは全件同点として扱う
		q = make(embedding.Vector, len(query))
	}

	results := make([]Result, len(idx.entries))
	for i, e := range idx.entries {
		results[i] = Result{Chunk: e.chunk, Score: dot(q, e.vector)}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Len は登録件数を返す
func (idx *VectorIndex) Len() int {
	return len(idx.entries)
}

// Dimension はベクトル次元数を返す
func (idx *VectorIndex) Dimension() int {
	return idx.dimension
}

// Model は構築時のEmbeddingモデル名を返す
func (idx *VectorIndex) Model() string {
	return idx.model
}

// CreatedAt は構築時刻を返す
func (idx *VectorIndex) CreatedAt() time.Time {
	return idx.createdAt
}

// Chunks は登録順のチャンク一覧を返す
func (idx *VectorIndex) Chunks() []chunk.Chunk {
	out := make([]chunk.Chunk, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.chunk
	}
	return out
}

func normalize(v embedding.Vector) (embedding.Vector, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make(embedding.Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

func dot(a, b embedding.Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
