package answer

import (
	"fmt"
	"strings"
	"text/template"
)

// RefusalMessage はコンテキストに情報がない場合にモデルが返す定型文
const RefusalMessage = "I don't have that information."

var systemTemplate = template.Must(template.New("system").Parse(
	`You are an AI assistant representing the professional portfolio of {{if .Owner}}{{.Owner}}{{else}}the portfolio owner{{end}}.
1. Refer to the portfolio owner by their first name{{if .Owner}} ({{.Owner}}){{end}}, not "the individual" or "the candidate".
2. If specific information is NOT in the context, say exactly: "{{.Refusal}}" Do not guess.
3. Be professional, confident, and direct.
4. Answer strictly based on the context provided below and stay on the topic of the portfolio.

Context:
{{.Context}}`))

type promptData struct {
	Owner   string
	Refusal string
	Context string
}

// renderSystemPrompt は検索結果を埋め込んだシステムプロンプトを生成する
func renderSystemPrompt(ownerName, context string) (string, error) {
	var sb strings.Builder
	err := systemTemplate.Execute(&sb, promptData{
		Owner:   firstName(ownerName),
		Refusal: RefusalMessage,
		Context: context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return sb.String(), nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
