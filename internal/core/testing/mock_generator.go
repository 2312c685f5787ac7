package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/jinford/portfolio-rag/internal/core/answer"
)

// MockGenerator はテスト用のモックGeneratorです
// GenerateFunc が未設定の場合は ContextGenerator と同じ振る舞いをします
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req answer.GenerateRequest) (string, error)

	mu       sync.Mutex
	requests []answer.GenerateRequest
}

func (m *MockGenerator) Generate(ctx context.Context, req answer.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return ContextGenerator(ctx, req)
}

// Requests は受け取ったリクエストの一覧を返します
func (m *MockGenerator) Requests() []answer.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]answer.GenerateRequest(nil), m.requests...)
}

// ContextGenerator はコンテキストだけを根拠に答える決定的な生成関数です
// 質問の内容語が全てコンテキスト中の1文に含まれていればその文を返し、なければ定型の拒否文を返します
func ContextGenerator(ctx context.Context, req answer.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, contextText, found := strings.Cut(req.System, "Context:\n")
	if !found {
		return answer.RefusalMessage, nil
	}

	keywords := contentWords(req.User)
	for _, sentence := range strings.FieldsFunc(contextText, func(r rune) bool { return r == '.' || r == '\n' }) {
		lower := strings.ToLower(sentence)
		matched := 0
		for _, kw := range keywords {
			if containsKeyword(lower, kw) {
				matched++
			}
		}
		if len(keywords) > 0 && matched == len(keywords) {
			return strings.TrimSpace(sentence) + ".", nil
		}
	}
	return answer.RefusalMessage, nil
}

var stopWords = map[string]bool{
	"what": true, "is": true, "are": true, "the": true, "a": true, "an": true,
	"does": true, "do": true, "of": true, "his": true, "her": true, "their": true,
	"who": true, "which": true, "how": true, "in": true, "with": true, "s": true,
}

// roleWords は "role" のような抽象語に対応する具体語
var roleWords = map[string][]string{
	"role":       {"engineer", "developer", "designer", "manager", "scientist"},
	"job":        {"engineer", "developer", "designer", "manager", "scientist"},
	"experience": {"years"},
}

func containsKeyword(sentence, keyword string) bool {
	if strings.Contains(sentence, keyword) {
		return true
	}
	for _, w := range roleWords[keyword] {
		if strings.Contains(sentence, w) {
			return true
		}
	}
	return false
}

func contentWords(question string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

var _ answer.Generator = (*MockGenerator)(nil)
