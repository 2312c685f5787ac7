package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinford/portfolio-rag/internal/core/llm"
)

var (
	// ErrEmptyQuestion は質問が空の場合に返されます
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptyAnswer は生成結果が空の場合に返されます
	ErrEmptyAnswer = errors.New("generator returned an empty answer")
)

// ErrorKind はユーザーへの表示を切り替えるためのエラー分類
type ErrorKind string

const (
	KindQuota       ErrorKind = "quota"
	KindPermission  ErrorKind = "permission"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// AnswerError は回答生成のいずれかのステップの失敗を表します
type AnswerError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer: %s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

// UserMessage は上流のエラー内容を含まない、利用者向けの固定メッセージを返します
func (e *AnswerError) UserMessage() string {
	switch e.Kind {
	case KindQuota:
		return "The assistant is receiving too many requests right now. Please try again in a minute."
	case KindPermission:
		return "The assistant is not configured correctly. Please contact the portfolio owner."
	case KindUnavailable:
		return "The assistant is temporarily unavailable. Please try again later."
	default:
		return "Sorry, something went wrong while answering your question."
	}
}

// Classify はエラー原因から ErrorKind を判定します
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, llm.ErrRateLimitExceeded):
		return KindQuota
	case errors.Is(err, llm.ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	default:
		return KindInternal
	}
}

func wrap(step string, err error) error {
	var answerErr *AnswerError
	if errors.As(err, &answerErr) {
		return err
	}
	return &AnswerError{Kind: Classify(err), Step: step, Err: err}
}
