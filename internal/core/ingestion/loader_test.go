package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoader(WithLoaderLogger(logger))
}

func TestDetectResumeKind(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     ResumeKind
	}{
		{name: "PDFマジック", filename: "resume.bin", data: []byte("%PDF-1.7\n..."), want: ResumeKindPDF},
		{name: "拡張子のみPDF", filename: "Resume.PDF", data: []byte("not really"), want: ResumeKindPDF},
		{name: "テキスト", filename: "resume.txt", data: []byte("John Doe"), want: ResumeKindText},
		{name: "ファイル名なし", filename: "", data: []byte("plain"), want: ResumeKindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectResumeKind(tt.filename, tt.data))
		})
	}
}

func TestLoader_LoadTextInputs(t *testing.T) {
	loader := newTestLoader()

	docs, err := loader.Load(context.Background(), Input{
		Resume:         []byte("John Doe\r\nBackend engineer"),
		ResumeFilename: "resume.txt",
		Details:        "Likes distributed systems.",
		FreeText:       "Open to remote roles.",
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "John Doe\nBackend engineer", docs[0].Text)
	assert.Equal(t, string(SourceResume), docs[0].Metadata[MetaSource])
	assert.Equal(t, "resume.txt", docs[0].Metadata[MetaFilename])
	assert.Equal(t, string(SourceDetails), docs[1].Metadata[MetaSource])
	assert.Equal(t, string(SourceText), docs[2].Metadata[MetaSource])
}

func TestLoader_SkipsUnreadableResume(t *testing.T) {
	loader := newTestLoader()

	docs, err := loader.Load(context.Background(), Input{
		Resume:     []byte("%PDF-1.4 this is not a real pdf"),
		ResumeKind: ResumeKindPDF,
		Details:    "Details survive a broken resume.",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Details survive a broken resume.", docs[0].Text)
}

func TestLoader_NoContent(t *testing.T) {
	loader := newTestLoader()

	tests := []struct {
		name  string
		input Input
	}{
		{name: "入力なし", input: Input{}},
		{name: "空白のみ", input: Input{Details: "   \n\t", FreeText: " "}},
		{name: "壊れたPDFのみ", input: Input{Resume: []byte("%PDF-garbage"), ResumeKind: ResumeKindPDF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := loader.Load(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, docs)
			assert.True(t, errors.Is(err, ErrNoContent))

			var noContent *NoContentError
			assert.True(t, errors.As(err, &noContent))
		})
	}
}

func TestLoader_InvalidUTF8IsRepaired(t *testing.T) {
	loader := newTestLoader()

	docs, err := loader.Load(context.Background(), Input{FreeText: "caf\xe9 owner"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "caf owner", docs[0].Text)
}

func TestInput_IsEmpty(t *testing.T) {
	assert.True(t, Input{}.IsEmpty())
	assert.True(t, Input{Details: "  "}.IsEmpty())
	assert.False(t, Input{Resume: []byte("x")}.IsEmpty())
	assert.False(t, Input{FreeText: "hello"}.IsEmpty())
}

// buildPDF はページごとのテキストから最小構成のPDFを生成する
// 空文字のページは Contents を持たない白紙ページになる
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	// 1: Catalog, 2: Pages, 3: Font, 以降ページごとに Page と Contents
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // Pages は Kids 確定後に埋める
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var kids []string
	for _, text := range pages {
		pageNum := len(objects) + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))
		page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>"
		if text == "" {
			objects = append(objects, page+" >>")
			continue
		}
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("%s /Contents %d 0 R >>", page, pageNum+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestLoader_LoadPDFPerPage(t *testing.T) {
	loader := newTestLoader()

	docs, err := loader.Load(context.Background(), Input{
		Resume:         buildPDF(t, "John Doe backend engineer", "Second page skills Go"),
		ResumeFilename: "resume.pdf",
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "John Doe backend engineer", docs[0].Text)
	assert.Equal(t, "Second page skills Go", docs[1].Text)
	for i, doc := range docs {
		assert.Equal(t, fmt.Sprint(i+1), doc.Metadata[MetaPage])
		assert.Equal(t, string(SourceResume), doc.Metadata[MetaSource])
		assert.Equal(t, string(ResumeKindPDF), doc.Metadata[MetaKind])
		assert.Equal(t, "resume.pdf", doc.Metadata[MetaFilename])
	}
}

func TestLoader_LoadPDFSkipsBlankPages(t *testing.T) {
	loader := newTestLoader()

	// 2ページ目は白紙。ページ番号は元のPDFの番号を保持する
	docs, err := loader.Load(context.Background(), Input{
		Resume:         buildPDF(t, "John Doe", "", "Hobbies hiking"),
		ResumeFilename: "resume.pdf",
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "1", docs[0].Metadata[MetaPage])
	assert.Equal(t, "3", docs[1].Metadata[MetaPage])
	assert.Equal(t, "Hobbies hiking", docs[1].Text)
}

func TestLoader_LoadPDFWithoutText(t *testing.T) {
	loader := newTestLoader()

	// 白紙のみのPDFは読み取り不可としてスキップされ、他の入力だけが残る
	docs, err := loader.Load(context.Background(), Input{
		Resume:   buildPDF(t, ""),
		FreeText: "Open to remote roles.",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, string(SourceText), docs[0].Metadata[MetaSource])
}
