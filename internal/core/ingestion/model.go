package ingestion

import (
	"bytes"
	"path/filepath"
	"strings"
)

// メタデータのキー
const (
	MetaSource   = "source"
	MetaKind     = "kind"
	MetaPage     = "page"
	MetaFilename = "filename"
)

// SourceKind はドキュメントの入力元を表す
type SourceKind string

const (
	// SourceResume は履歴書ファイル
	SourceResume SourceKind = "resume"
	// SourceDetails は補足情報ファイル
	SourceDetails SourceKind = "details"
	// SourceText は自由記述テキスト
	SourceText SourceKind = "text"
)

// ResumeKind は履歴書ファイルの形式を表す
type ResumeKind string

const (
	// ResumeKindPDF はPDF形式
	ResumeKindPDF ResumeKind = "pdf"
	// ResumeKindText はプレーンテキスト形式
	ResumeKindText ResumeKind = "text"
)

var pdfMagic = []byte("%PDF-")

// DetectResumeKind はファイル名と内容から履歴書の形式を判定する
func DetectResumeKind(filename string, data []byte) ResumeKind {
	if bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return ResumeKindPDF
	}
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return ResumeKindPDF
	}
	return ResumeKindText
}

// Document はローダーが生成するプレーンテキストのドキュメント
type Document struct {
	Text     string
	Metadata map[string]string
}

// Input はインデックス構築の入力を表す
// いずれのフィールドも省略可能
type Input struct {
	Resume         []byte
	ResumeKind     ResumeKind // 空の場合は DetectResumeKind で判定する
	ResumeFilename string
	Details        string
	FreeText       string
}

// IsEmpty は入力が一つも指定されていないかを返す
func (in Input) IsEmpty() bool {
	return len(in.Resume) == 0 && strings.TrimSpace(in.Details) == "" && strings.TrimSpace(in.FreeText) == ""
}
