package chunk

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jinford/portfolio-rag/internal/core/ingestion"
)

// ErrInvalidConfig は設定が不正な場合に返されます
var ErrInvalidConfig = errors.New("invalid chunker config")

// メタデータのキー
const (
	MetaChunk  = "chunk"
	MetaTokens = "tokens"
)

// Chunk はドキュメントから切り出した連続部分文字列
type Chunk struct {
	Text     string
	Metadata map[string]string
	Ordinal  int // ドキュメント内の通し番号（0始まり）
}

// Config はChunkerの設定を表します（文字数単位）
type Config struct {
	MaxSize int // 最大文字数（デフォルト: 1500）
	Overlap int // オーバーラップ文字数（デフォルト: 300）
}

// DefaultConfig はデフォルトのChunker設定を返します
func DefaultConfig() Config {
	return Config{
		MaxSize: 1500,
		Overlap: 300,
	}
}

// Validate は設定値を検証します
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive (got %d)", ErrInvalidConfig, c.MaxSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: overlap must be in [0, %d) (got %d)", ErrInvalidConfig, c.MaxSize, c.Overlap)
	}
	return nil
}

// TokenCounter はテキストのトークン数をカウントするインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

// Chunker はドキュメントをオーバーラップ付きのチャンクに分割します
type Chunker struct {
	maxSize int
	overlap int
	counter TokenCounter
}

// Option は Chunker のオプション設定
type Option func(*Chunker)

// WithTokenCounter はチャンクのトークン数を記録する TokenCounter を設定する
func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Chunker) {
		c.counter = counter
	}
}

// New は新しい Chunker を作成します
func New(cfg Config, opts ...Option) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chunker{
		maxSize: cfg.MaxSize,
		overlap: cfg.Overlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// 優先度の高い順に並べた区切り文字列
var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
}

// Split はドキュメント群をチャンクに分割します
// 出力はドキュメント順、ドキュメント内ではウィンドウ順になります
func (c *Chunker) Split(docs []ingestion.Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range c.SplitText(doc.Text) {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[MetaChunk] = strconv.Itoa(i)
			if c.counter != nil {
				meta[MetaTokens] = strconv.Itoa(c.counter.CountTokens(text))
			}
			chunks = append(chunks, Chunk{Text: text, Metadata: meta, Ordinal: i})
		}
	}
	return chunks
}

// SplitText は単一テキストをスライディングウィンドウで分割します
// 隣接するチャンクはちょうど overlap 文字を共有します
func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.maxSize {
		return []string{text}
	}

	var out []string
	start := 0
	for {
		end := start + c.maxSize
		if end >= n {
			out = append(out, string(runes[start:n]))
			break
		}
		end = c.breakPoint(runes, start, end)
		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
	return out
}

// breakPoint は末尾 overlap 区間内で最も優先度の高い区切り位置を返します
// 区切りが見つからない場合は end（文字境界）を返します
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	// 次のウィンドウが必ず前進するよう start+overlap より後ろに限定する
	lo := end - c.overlap
	if floor := start + c.overlap; lo < floor {
		lo = floor
	}
	if lo >= end {
		return end
	}

	for _, sep := range boundaries {
		for p := end; p > lo; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(runes, p, sep) {
				return p
			}
		}
	}
	return end
}

func hasSuffixAt(runes []rune, p int, sep []rune) bool {
	if p < len(sep) {
		return false
	}
	for i, r := range sep {
		if runes[p-len(sep)+i] != r {
			return false
		}
	}
	return true
}
