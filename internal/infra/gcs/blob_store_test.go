package gcs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/jinford/portfolio-rag/internal/core/store"
	"github.com/jinford/portfolio-rag/internal/infra/gcs"
)

const testBucket = "test-bucket"

// fakeGCS はメモリ上でオブジェクトを保持する最小限の JSON API サーバー
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeGCS(t *testing.T) (*fakeGCS, *httptest.Server) {
	t.Helper()
	f := &fakeGCS{objects: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGCS) handle(w http.ResponseWriter, r *http.Request) {
	marker := "/b/" + testBucket + "/o"
	idx := strings.Index(r.URL.Path, marker)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "unknown path")
		return
	}
	name := strings.TrimPrefix(r.URL.Path[idx+len(marker):], "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		objName, data, err := readUpload(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.objects[objName] = data
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"bucket": testBucket, "name": objName})
	case http.MethodGet:
		data, ok := f.objects[name]
		if !ok {
			writeError(w, http.StatusNotFound, "No such object")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	case http.MethodDelete:
		if _, ok := f.objects[name]; !ok {
			writeError(w, http.StatusNotFound, "No such object")
			return
		}
		delete(f.objects, name)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (f *fakeGCS) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.objects))
	for name := range f.objects {
		names = append(names, name)
	}
	return names
}

// readUpload は multipart/related のアップロードからメタデータと本文を取り出す
func readUpload(r *http.Request) (string, []byte, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, err
	}
	reader := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := reader.NextPart()
	if err != nil {
		return "", nil, err
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		return "", nil, err
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		return "", nil, err
	}
	data, err := io.ReadAll(mediaPart)
	if err != nil {
		return "", nil, err
	}
	return meta.Name, data, nil
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func newStore(t *testing.T, srv *httptest.Server, opts ...gcs.Option) *gcs.BlobStore {
	t.Helper()
	opts = append(opts, gcs.WithClientOptions(
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	))
	s, err := gcs.NewBlobStore(context.Background(), testBucket, opts...)
	require.NoError(t, err)
	return s
}

func TestBlobStore_PutGetDelete(t *testing.T) {
	_, srv := newFakeGCS(t)
	s := newStore(t, srv)
	ctx := context.Background()

	var buf bytes.Buffer
	err := s.Get(ctx, "p1/index.pfix", &buf)
	assert.ErrorIs(t, err, store.ErrBlobNotFound)

	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("first"), 5))
	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("second"), 6))

	buf.Reset()
	require.NoError(t, s.Get(ctx, "p1/index.pfix", &buf))
	assert.Equal(t, "second", buf.String())

	require.NoError(t, s.Delete(ctx, "p1/index.pfix"))
	// 存在しないオブジェクトの削除も成功扱い
	require.NoError(t, s.Delete(ctx, "p1/index.pfix"))

	err = s.Get(ctx, "p1/index.pfix", &buf)
	assert.ErrorIs(t, err, store.ErrBlobNotFound)
}

func TestBlobStore_Prefix(t *testing.T) {
	fake, srv := newFakeGCS(t)
	s := newStore(t, srv, gcs.WithPrefix("chatbots"))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "p1/index.pfix", strings.NewReader("data"), 4))
	assert.Equal(t, []string{"chatbots/p1/index.pfix"}, fake.names())

	var buf bytes.Buffer
	require.NoError(t, s.Get(ctx, "p1/index.pfix", &buf))
	assert.Equal(t, "data", buf.String())
}

func TestNewBlobStore_RequiresBucket(t *testing.T) {
	_, err := gcs.NewBlobStore(context.Background(), "", gcs.WithClientOptions(option.WithoutAuthentication()))
	assert.Error(t, err)
}
