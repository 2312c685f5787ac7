package testing

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jinford/portfolio-rag/internal/core/store"
)

// MemoryBlobStore はテスト用のインメモリBlobStoreです
// 各 *Err フィールドを設定すると対応する操作が失敗します
type MemoryBlobStore struct {
	PutErr    error
	GetErr    error
	DeleteErr error

	PutCalls atomic.Int32
	GetCalls atomic.Int32

	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBlobStore は空の MemoryBlobStore を作成します
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	m.PutCalls.Add(1)
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, key string, w io.Writer) error {
	m.GetCalls.Add(1)
	if m.GetErr != nil {
		return m.GetErr
	}

	m.mu.Lock()
	data, ok := m.blobs[key]
	m.mu.Unlock()
	if !ok {
		return store.ErrBlobNotFound
	}
	_, err := w.Write(data)
	return err
}

func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Set はBlobを直接書き込みます
func (m *MemoryBlobStore) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
}

// Data は保存されているBlobを返します
func (m *MemoryBlobStore) Data(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	return data, ok
}

// Len は保存されているキーの数を返します
func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

var _ store.BlobStore = (*MemoryBlobStore)(nil)
