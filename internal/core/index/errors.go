package index

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIndex はエントリが0件でインデックスを構築しようとした場合に返されます
	ErrEmptyIndex = errors.New("empty index")

	// ErrLengthMismatch はチャンク数とベクトル数が一致しない場合に返されます
	ErrLengthMismatch = errors.New("chunk and vector count mismatch")

	// ErrDimensionMismatch はベクトルの次元が一致しない場合に返されます
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroVector はノルムが0のベクトルを登録しようとした場合に返されます
	ErrZeroVector = errors.New("zero vector")

	// ErrInvalidK は k が正でない場合に返されます
	ErrInvalidK = errors.New("k must be positive")

	// ErrCorruptIndex はシリアライズ形式が期待と異なる場合に返されます
	ErrCorruptIndex = errors.New("corrupt index")
)

// CorruptIndexError はデシリアライズの失敗理由を保持します
type CorruptIndexError struct {
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index: %s: %s: %v", ErrCorruptIndex, e.Reason, e.Err)
	}
	return fmt.Sprintf("index: %s: %s", ErrCorruptIndex, e.Reason)
}

func (e *CorruptIndexError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorruptIndex, e.Err}
	}
	return []error{ErrCorruptIndex}
}

func corrupt(reason string, err error) error {
	return &CorruptIndexError{Reason: reason, Err: err}
}
