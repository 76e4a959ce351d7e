package archive_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/replyrank/crawler/internal/archive"
)

// fakeClientFactory builds clients pointed at a test server, without auth.
type fakeClientFactory struct {
	endpoint string
}

func (f fakeClientFactory) NewClient(ctx context.Context) (*gcs.Client, error) {
	return gcs.NewClient(ctx, option.WithEndpoint(f.endpoint), option.WithoutAuthentication())
}

// gcsHandler simulates the slice of the GCS JSON API the provider touches:
// bucket attrs lookups and multipart object uploads.
type gcsHandler struct {
	bucket       string
	attrsStatus  int
	uploadStatus int

	uploadedName string
	uploadedBody string
}

func (h *gcsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.Contains(r.URL.Path, "/upload/"):
		if h.uploadStatus != 0 {
			w.WriteHeader(h.uploadStatus)
			return
		}
		body, _ := io.ReadAll(r.Body)
		h.uploadedName = r.URL.Query().Get("name")
		h.uploadedBody = string(body)
		fmt.Fprintf(w, `{"name": %q}`, h.uploadedName)
	case strings.Contains(r.URL.Path, "/b/"+h.bucket):
		if h.attrsStatus != 0 {
			w.WriteHeader(h.attrsStatus)
			return
		}
		fmt.Fprintf(w, `{"name": %q}`, h.bucket)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestProvider(t *testing.T, handler *gcsHandler, prefix string) *archive.GCSProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := archive.NewGCSProvider(
		context.Background(),
		handler.bucket,
		prefix,
		fakeClientFactory{endpoint: server.URL},
		zap.NewNop(),
	)
	require.NoError(t, err)
	return provider
}

func TestGCSProviderSavePrefixesObjectName(t *testing.T) {
	handler := &gcsHandler{bucket: "crawl-archive"}
	provider := newTestProvider(t, handler, "raw-pages")

	data := []byte(`{"data":[{"id":"100"}]}`)
	require.NoError(t, provider.Save(context.Background(), "alice/page-0001.json", data))

	require.Equal(t, "raw-pages/alice/page-0001.json", handler.uploadedName)
	require.Contains(t, handler.uploadedBody, `{"data":[{"id":"100"}]}`)
	require.Contains(t, handler.uploadedBody, "application/json")

	require.NoError(t, provider.Close())
}

func TestGCSProviderSaveWithoutPrefix(t *testing.T) {
	handler := &gcsHandler{bucket: "crawl-archive"}
	provider := newTestProvider(t, handler, "")

	require.NoError(t, provider.Save(context.Background(), "page.json", []byte(`{}`)))
	require.Equal(t, "page.json", handler.uploadedName)
}

func TestGCSProviderSaveUploadFailure(t *testing.T) {
	handler := &gcsHandler{bucket: "crawl-archive", uploadStatus: http.StatusForbidden}
	provider := newTestProvider(t, handler, "raw-pages")

	err := provider.Save(context.Background(), "page.json", []byte(`{}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "raw-pages/page.json")
}

func TestNewGCSProviderFailsFastOnMissingBucket(t *testing.T) {
	handler := &gcsHandler{bucket: "crawl-archive", attrsStatus: http.StatusNotFound}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	_, err := archive.NewGCSProvider(
		context.Background(),
		handler.bucket,
		"",
		fakeClientFactory{endpoint: server.URL},
		zap.NewNop(),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "crawl-archive")
}

func TestNoOpProviderSave(t *testing.T) {
	t.Parallel()

	var p archive.NoOpProvider
	require.NoError(t, p.Save(context.Background(), "anything", []byte("data")))
}
