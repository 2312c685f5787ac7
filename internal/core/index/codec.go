package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/ingestion/chunk"
)

// シリアライズ形式
//
//	magic(4) | version(uint16) | headerLen(uint32) | header(JSON) | vectors | sha256(32)
//
// vectors は pgvector のバイナリ表現（uint16 次元 + uint16 予約 + float32 BE）を件数分連結したもの
const (
	magic         = "PFIX"
	formatVersion = uint16(1)

	prefixSize   = len(magic) + 2 + 4
	checksumSize = sha256.Size
)

type header struct {
	Model     string        `json:"model,omitempty"`
	Dimension int           `json:"dimension"`
	Count     int           `json:"count"`
	CreatedAt time.Time     `json:"createdAt"`
	Chunks    []storedChunk `json:"chunks"`
}

type storedChunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Ordinal  int               `json:"ordinal,omitempty"`
}

// Serialize はインデックスを単一のバイト列に変換する
func Serialize(idx *VectorIndex) ([]byte, error) {
	if idx == nil || len(idx.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if idx.dimension > math.MaxUint16 {
		return nil, fmt.Errorf("%w: dimension %d exceeds %d", ErrDimensionMismatch, idx.dimension, math.MaxUint16)
	}

	h := header{
		Model:     idx.model,
		Dimension: idx.dimension,
		Count:     len(idx.entries),
		CreatedAt: idx.createdAt,
		Chunks:    make([]storedChunk, len(idx.entries)),
	}
	for i, e := range idx.entries {
		h.Chunks[i] = storedChunk{Text: e.chunk.Text, Metadata: e.chunk.Metadata, Ordinal: e.chunk.Ordinal}
	}

	headerJSON, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal index header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(prefixSize + len(headerJSON) + len(idx.entries)*vectorSize(idx.dimension) + checksumSize)
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.BigEndian, formatVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(headerJSON)))
	buf.Write(headerJSON)

	scratch := make([]byte, 0, vectorSize(idx.dimension))
	for i, e := range idx.entries {
		encoded, err := pgvector.NewVector(e.vector).EncodeBinary(scratch[:0])
		if err != nil {
			return nil, fmt.Errorf("failed to encode vector %d: %w", i, err)
		}
		buf.Write(encoded)
	}

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// Deserialize は Serialize の出力からインデックスを復元する
// 形式・チェックサム・件数・次元のいずれかが不整合な場合は CorruptIndexError を返す
func Deserialize(data []byte) (*VectorIndex, error) {
	if len(data) < prefixSize+checksumSize {
		return nil, corrupt("truncated data", nil)
	}

	body := data[:len(data)-checksumSize]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], data[len(data)-checksumSize:]) {
		return nil, corrupt("checksum mismatch", nil)
	}

	if string(body[:len(magic)]) != magic {
		return nil, corrupt("bad magic", nil)
	}
	version := binary.BigEndian.Uint16(body[len(magic):])
	if version != formatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported version %d", version), nil)
	}
	headerLen := int(binary.BigEndian.Uint32(body[len(magic)+2:]))
	if headerLen > len(body)-prefixSize {
		return nil, corrupt("header length out of range", nil)
	}

	var h header
	if err := json.Unmarshal(body[prefixSize:prefixSize+headerLen], &h); err != nil {
		return nil, corrupt("invalid header", err)
	}
	if h.Count <= 0 || h.Count != len(h.Chunks) {
		return nil, corrupt(fmt.Sprintf("header declares %d entries but has %d chunks", h.Count, len(h.Chunks)), nil)
	}
	if h.Dimension <= 0 || h.Dimension > math.MaxUint16 {
		return nil, corrupt(fmt.Sprintf("invalid dimension %d", h.Dimension), nil)
	}

	vectorBytes := body[prefixSize+headerLen:]
	size := vectorSize(h.Dimension)
	if len(vectorBytes) != h.Count*size {
		return nil, corrupt(fmt.Sprintf("vector section has %d bytes, expected %d", len(vectorBytes), h.Count*size), nil)
	}

	entries := make([]entry, h.Count)
	for i := range entries {
		raw := vectorBytes[i*size : (i+1)*size : (i+1)*size]
		if dim := binary.BigEndian.Uint16(raw[0:2]); int(dim) != h.Dimension {
			return nil, corrupt(fmt.Sprintf("vector %d declares dimension %d, expected %d", i, dim, h.Dimension), nil)
		}
		if reserved := binary.BigEndian.Uint16(raw[2:4]); reserved != 0 {
			return nil, corrupt(fmt.Sprintf("vector %d has non-zero reserved field", i), nil)
		}
		var v pgvector.Vector
		if err := v.DecodeBinary(raw); err != nil {
			return nil, corrupt(fmt.Sprintf("vector %d", i), err)
		}
		vec := embedding.Vector(v.Slice())
		if len(vec) != h.Dimension {
			return nil, corrupt(fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(vec), h.Dimension), nil)
		}
		entries[i] = entry{
			chunk:  chunk.Chunk{Text: h.Chunks[i].Text, Metadata: h.Chunks[i].Metadata, Ordinal: h.Chunks[i].Ordinal},
			vector: vec,
		}
	}

	return &VectorIndex{
		entries:   entries,
		dimension: h.Dimension,
		model:     h.Model,
		createdAt: h.CreatedAt,
	}, nil
}

func vectorSize(dimension int) int {
	return 4 + 4*dimension
}
