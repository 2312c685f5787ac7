package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Loader はアップロードされた入力をプレーンテキストのドキュメントに変換する
type Loader struct {
	logger *slog.Logger
}

// LoaderOption は Loader のオプション設定
type LoaderOption func(*Loader)

// WithLoaderLogger は Loader にロガーを設定する
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load は入力からドキュメントを生成する
// 個々の入力の失敗は警告ログを出してスキップし、全体で0件の場合のみ NoContentError を返す
func (l *Loader) Load(ctx context.Context, in Input) ([]Document, error) {
	var (
		docs    []Document
		skipped []string
	)

	skip := func(source SourceKind, err error) {
		l.logger.Warn("skipping unreadable input", "source", string(source), "error", err)
		skipped = append(skipped, fmt.Sprintf("%s: %v", source, err))
	}

	// 1. 履歴書
	if len(in.Resume) > 0 {
		resumeDocs, err := l.loadResume(in)
		if err != nil {
			skip(SourceResume, err)
		} else {
			docs = append(docs, resumeDocs...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. 補足情報
	if in.Details != "" {
		if doc, ok := textDocument(in.Details, SourceDetails); ok {
			docs = append(docs, doc)
		} else {
			skip(SourceDetails, fmt.Errorf("%w: blank text", ErrUnreadable))
		}
	}

	// 3. 自由記述
	if in.FreeText != "" {
		if doc, ok := textDocument(in.FreeText, SourceText); ok {
			docs = append(docs, doc)
		} else {
			skip(SourceText, fmt.Errorf("%w: blank text", ErrUnreadable))
		}
	}

	if len(docs) == 0 {
		return nil, &NoContentError{Skipped: skipped}
	}

	l.logger.Info("documents loaded", "documents", len(docs), "skipped", len(skipped))
	return docs, nil
}

func (l *Loader) loadResume(in Input) ([]Document, error) {
	kind := in.ResumeKind
	if kind == "" {
		kind = DetectResumeKind(in.ResumeFilename, in.Resume)
	}

	switch kind {
	case ResumeKindPDF:
		docs, err := l.loadPDF(in.Resume)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			if in.ResumeFilename != "" {
				docs[i].Metadata[MetaFilename] = in.ResumeFilename
			}
		}
		return docs, nil
	case ResumeKindText:
		doc, ok := textDocument(string(in.Resume), SourceResume)
		if !ok {
			return nil, fmt.Errorf("%w: blank text", ErrUnreadable)
		}
		if in.ResumeFilename != "" {
			doc.Metadata[MetaFilename] = in.ResumeFilename
		}
		return []Document{doc}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported resume kind %q", ErrUnreadable, kind)
	}
}

// loadPDF はPDFをページ単位でドキュメント化する
// 壊れたPDFでパーサがpanicする場合があるため recover で読み取りエラーに変換する
func (l *Loader) loadPDF(data []byte) (docs []Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: pdf parser panic: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open pdf: %v", ErrUnreadable, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			l.logger.Warn("skipping unreadable pdf page", "page", i, "error", pageErr)
			continue
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			Text: text,
			Metadata: map[string]string{
				MetaSource: string(SourceResume),
				MetaKind:   string(ResumeKindPDF),
				MetaPage:   strconv.Itoa(i),
			},
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no extractable text in pdf", ErrUnreadable)
	}
	return docs, nil
}

func textDocument(text string, source SourceKind) (Document, bool) {
	text = normalizeText(text)
	if text == "" {
		return Document{}, false
	}
	return Document{
		Text: text,
		Metadata: map[string]string{
			MetaSource: string(source),
			MetaKind:   string(ResumeKindText),
		},
	}, true
}

func normalizeText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
