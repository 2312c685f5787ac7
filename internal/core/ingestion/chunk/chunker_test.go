package chunk

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jinford/portfolio-rag/internal/core/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func mustChunker(t *testing.T, cfg Config, opts ...Option) *Chunker {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "デフォルト設定", cfg: DefaultConfig(), wantErr: false},
		{name: "オーバーラップなし", cfg: Config{MaxSize: 10, Overlap: 0}, wantErr: false},
		{name: "最大サイズ0", cfg: Config{MaxSize: 0, Overlap: 0}, wantErr: true},
		{name: "負のオーバーラップ", cfg: Config{MaxSize: 10, Overlap: -1}, wantErr: true},
		{name: "オーバーラップが最大サイズ以上", cfg: Config{MaxSize: 10, Overlap: 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1500, cfg.MaxSize)
	assert.Equal(t, 300, cfg.Overlap)
}

func TestSplitText_ShortTextIsSingleChunk(t *testing.T) {
	c := mustChunker(t, DefaultConfig())

	text := "John Doe is a backend engineer with 5 years of experience in distributed systems."
	chunks := c.SplitText(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])

	exact := strings.Repeat("a", 1500)
	assert.Len(t, c.SplitText(exact), 1)
}

func TestSplitText_Empty(t *testing.T) {
	c := mustChunker(t, DefaultConfig())
	assert.Empty(t, c.SplitText(""))
}

func TestSplitText_OverlapInvariant(t *testing.T) {
	configs := []Config{
		{MaxSize: 50, Overlap: 10},
		{MaxSize: 40, Overlap: 0},
		{MaxSize: 30, Overlap: 20},
		DefaultConfig(),
	}

	sentence := "Jane built payment systems in Go. She led a team of five!\nShe mentors juniors? Yes.\n\n"
	texts := []string{
		strings.Repeat(sentence, 40),
		strings.Repeat("x", 4000),
		strings.Repeat("日本語のテキストです。", 300),
	}

	for _, cfg := range configs {
		c := mustChunker(t, cfg)
		for _, text := range texts {
			chunks := c.SplitText(text)
			require.NotEmpty(t, chunks)

			rebuilt := chunks[0]
			for i, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), cfg.MaxSize)
				if i == 0 {
					continue
				}
				prev := []rune(chunks[i-1])
				cur := []rune(ch)
				require.Greater(t, len(prev), cfg.Overlap)
				assert.Equal(t, string(prev[len(prev)-cfg.Overlap:]), string(cur[:cfg.Overlap]),
					"chunk %d must start with the last %d characters of chunk %d", i, cfg.Overlap, i-1)
				rebuilt += string(cur[cfg.Overlap:])
			}
			assert.Equal(t, text, rebuilt)
		}
	}
}

func TestSplitText_PrefersSentenceBoundary(t *testing.T) {
	c := mustChunker(t, Config{MaxSize: 20, Overlap: 5})

	text := strings.Repeat("x", 16) + ". " + strings.Repeat("y", 30)
	chunks := c.SplitText(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("x", 16)+". ", chunks[0])
}

func TestSplitText_PrefersParagraphOverSentence(t *testing.T) {
	c := mustChunker(t, Config{MaxSize: 20, Overlap: 6})

	// 末尾6文字の区間に文区切りと段落区切りの両方がある
	text := strings.Repeat("a", 14) + "\n\nb. " + strings.Repeat("c", 30)
	chunks := c.SplitText(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 14)+"\n\n", chunks[0])
}

func TestSplitText_HardBreakWithoutBoundary(t *testing.T) {
	c := mustChunker(t, Config{MaxSize: 10, Overlap: 3})

	chunks := c.SplitText(strings.Repeat("z", 25))
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("z", 10), chunks[0])
}

func TestSplit_PreservesOrderAndMetadata(t *testing.T) {
	c := mustChunker(t, Config{MaxSize: 30, Overlap: 5}, WithTokenCounter(wordCounter{}))

	docs := []ingestion.Document{
		{Text: strings.Repeat("first doc words ", 5), Metadata: map[string]string{ingestion.MetaSource: "resume", ingestion.MetaPage: "1"}},
		{Text: "", Metadata: map[string]string{ingestion.MetaSource: "details"}},
		{Text: "second doc", Metadata: map[string]string{ingestion.MetaSource: "text"}},
	}

	chunks := c.Split(docs)
	require.GreaterOrEqual(t, len(chunks), 3)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "second doc", last.Text)
	assert.Equal(t, "text", last.Metadata[ingestion.MetaSource])
	assert.Equal(t, "0", last.Metadata[MetaChunk])
	assert.Equal(t, 0, last.Ordinal)
	assert.Equal(t, "2", last.Metadata[MetaTokens])

	for i, ch := range chunks[:len(chunks)-1] {
		assert.Equal(t, "resume", ch.Metadata[ingestion.MetaSource])
		assert.Equal(t, "1", ch.Metadata[ingestion.MetaPage])
		assert.Equal(t, strconv.Itoa(i), ch.Metadata[MetaChunk])
		assert.Equal(t, i, ch.Ordinal)
	}

	// 元ドキュメントのメタデータは変更されない
	_, touched := docs[0].Metadata[MetaChunk]
	assert.False(t, touched)
}
