package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testStoreBasics(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	if _, err := store.Head(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("head missing: %v", err)
	}
	if ok, err := store.Delete(ctx, "2020/missing.json"); err != nil {
		t.Fatalf("delete missing: ok=%v err=%v", ok, err)
	}

	info, err := store.Put(ctx, "2020/manifest.json", strings.NewReader(`{"year":2020}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(`{"year":2020}`)) {
		t.Fatalf("put size = %d", info.Size)
	}

	// Republish must overwrite: the batch is a full re-run model.
	if _, err := store.Put(ctx, "2020/manifest.json", strings.NewReader(`{"year":2020,"totalRecords":5}`)); err != nil {
		t.Fatalf("overwrite put: %v", err)
	}
	_, rc, err := store.Get(ctx, "2020/manifest.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(data), "totalRecords") {
		t.Fatalf("overwrite not visible: %s", data)
	}

	if _, err := store.Put(ctx, "master-address-index.json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("put index: %v", err)
	}
	infos, err := store.List(ctx, "2020/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "2020/manifest.json" {
		t.Fatalf("list prefix: %+v", infos)
	}
	infos, err = store.List(ctx, "")
	if err != nil || len(infos) != 2 {
		t.Fatalf("list all: %v %d", err, len(infos))
	}
	// List is ordered by key ascending.
	if infos[0].Key > infos[1].Key {
		t.Fatalf("list unordered: %+v", infos)
	}

	if ok, err := store.Delete(ctx, "2020/manifest.json"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := store.Head(ctx, "2020/manifest.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}
	testStoreBasics(t, store)
}

func TestFSStore(t *testing.T) {
	store, err := NewFS(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", store.Driver())
	}
	testStoreBasics(t, store)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape.json", "/abs.json", "a/../../b.json"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestFSStoreLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	if _, err := store.Put(context.Background(), "2020/chunk.json", strings.NewReader("[]")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "2020"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestS3StoreMock(t *testing.T) {
	store := NewS3MockForTests()
	if store.Driver() != DriverS3 {
		t.Fatalf("driver = %s", store.Driver())
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "2020/manifest.json", bytes.NewReader([]byte(`{"year":2020}`))); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, rc, err := store.Get(ctx, "2020/manifest.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"year":2020}` {
		t.Fatalf("get body = %s", data)
	}
	if _, _, err := store.Get(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	infos, err := store.List(ctx, "2020/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %d", err, len(infos))
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected bucket validation error")
	}
}

func TestStoreFetcher(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, err := store.Put(ctx, "master-address-index.json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	fetcher := NewStoreFetcher(store)
	data, err := fetcher.Fetch(ctx, "master-address-index.json")
	if err != nil || string(data) != "{}" {
		t.Fatalf("fetch: %v %s", err, data)
	}
	if _, err := fetcher.Fetch(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fetch missing: %v", err)
	}
}

func TestOpenFactory(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("open memory: %v", err)
	}
	store, err = Open(ctx, Options{FSRoot: t.TempDir()})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("open default fs: %v", err)
	}
	if _, err := Open(ctx, Options{Driver: Driver("bogus")}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

// fakeTransport serves fixed responses for the GitHub fetcher.
type fakeTransport struct {
	responses map[string]string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, ok := f.responses[req.URL.Path]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestGitHubFetcher(t *testing.T) {
	fetcher := NewGitHubFetcher("user", "repo", "").WithHTTPClient(&http.Client{
		Transport: &fakeTransport{responses: map[string]string{
			"/user/repo/main/master-address-index.json": `{"103 rawson st":{"2020":2}}`,
		}},
	})
	data, err := fetcher.Fetch(context.Background(), "master-address-index.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(string(data), "rawson") {
		t.Fatalf("unexpected body: %s", data)
	}
	if _, err := fetcher.Fetch(context.Background(), "2020/manifest.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing artifact: %v", err)
	}
}
