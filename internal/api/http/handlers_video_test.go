package apihttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"mediastream/internal/domain"
)

func registerTestStream(t *testing.T, reg *StreamRegistry, provider *fakeDataProvider, size int64) string {
	t.Helper()
	token, _, err := reg.Register(testMediaFile("file-1", size), provider)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return token
}

func doVideoRequest(reg *StreamRegistry, method, token, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/video/"+token, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	reg.handleVideo(rec, req)
	return rec
}

func TestHandleVideo_OpenRangeClampedToDownloadedPrefix(t *testing.T) {
	const (
		size   = 10 << 20 // 10 MiB
		prefix = 2 << 20  // 2 MiB downloaded
	)
	reg := newTestRegistry(t)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 239)
	}
	provider := newFakeDataProvider(data, prefix)
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodGet, token, "bytes=0-")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	wantRange := fmt.Sprintf("bytes 0-%d/%d", prefix-1, size)
	if got := rec.Header().Get("Content-Range"); got != wantRange {
		t.Errorf("Content-Range = %q, want %q", got, wantRange)
	}
	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(prefix) {
		t.Errorf("Content-Length = %q, want %d", got, prefix)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", got)
	}
	if got := rec.Body.Len(); got != prefix {
		t.Fatalf("body length = %d, want %d", got, prefix)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[:prefix]) {
		t.Fatal("body differs from downloaded prefix")
	}
}

func TestHandleVideo_UnsatisfiableRange416(t *testing.T) {
	const size = 500_000
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, size), size)
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodGet, token, fmt.Sprintf("bytes=%d-", size))

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", rec.Code)
	}
	want := fmt.Sprintf("bytes */%d", size)
	if got := rec.Header().Get("Content-Range"); got != want {
		t.Errorf("Content-Range = %q, want %q", got, want)
	}
}

func TestHandleVideo_MalformedRange416(t *testing.T) {
	const size = 1024
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, size), size)
	token := registerTestStream(t, reg, provider, size)

	for _, header := range []string{"bytes=abc", "items=0-10", "bytes=", "bytes=0-10,20-30"} {
		rec := doVideoRequest(reg, http.MethodGet, token, header)
		if rec.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Errorf("range %q: expected 416, got %d", header, rec.Code)
		}
		want := fmt.Sprintf("bytes */%d", size)
		if got := rec.Header().Get("Content-Range"); got != want {
			t.Errorf("range %q: Content-Range = %q, want %q", header, got, want)
		}
	}
}

func TestHandleVideo_CompletedFileMidRead(t *testing.T) {
	const size = 10 << 20
	reg := newTestRegistry(t)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 7) % 253)
	}
	provider := newFakeDataProvider(data, size)
	provider.completed = true
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodGet, token, "bytes=5000000-5000099")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	want := fmt.Sprintf("bytes 5000000-5000099/%d", size)
	if got := rec.Header().Get("Content-Range"); got != want {
		t.Errorf("Content-Range = %q, want %q", got, want)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[5000000:5000100]) {
		t.Fatal("body differs from source slice")
	}
}

func TestHandleVideo_SuffixRange(t *testing.T) {
	const size = 1000
	reg := newTestRegistry(t)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	provider := newFakeDataProvider(data, size)
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodGet, token, "bytes=-100")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 900-999/1000" {
		t.Errorf("Content-Range = %q, want bytes 900-999/1000", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data[900:]) {
		t.Fatal("suffix body differs from source tail")
	}
}

func TestHandleVideo_ExplicitRangeClampedToMaxChunk(t *testing.T) {
	reg := NewStreamRegistry(RegistryConfig{
		MaxChunkBytes: 1024,
		RetryDelay:    time.Millisecond,
		ReadWait:      100 * time.Millisecond,
	}, slog.Default())
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	provider := newFakeDataProvider(make([]byte, 8192), 8192)
	token := registerTestStream(t, reg, provider, 8192)

	rec := doVideoRequest(reg, http.MethodGet, token, "bytes=0-4095")

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-1023/8192" {
		t.Errorf("Content-Range = %q, want bytes 0-1023/8192", got)
	}
	if got := rec.Body.Len(); got != 1024 {
		t.Fatalf("body length = %d, want 1024", got)
	}
}

func TestHandleVideo_FullFileByFollowingPartialResponses(t *testing.T) {
	const size = 64 * 1024
	reg := NewStreamRegistry(RegistryConfig{
		MaxChunkBytes: 10_000, // force multiple round trips
		RetryDelay:    time.Millisecond,
		ReadWait:      100 * time.Millisecond,
	}, slog.Default())
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 13) % 241)
	}
	provider := newFakeDataProvider(data, size)
	token := registerTestStream(t, reg, provider, size)

	var assembled []byte
	pos := int64(0)
	for pos < size {
		rec := doVideoRequest(reg, http.MethodGet, token, fmt.Sprintf("bytes=%d-", pos))
		if rec.Code != http.StatusPartialContent {
			t.Fatalf("offset %d: expected 206, got %d", pos, rec.Code)
		}
		assembled = append(assembled, rec.Body.Bytes()...)
		pos += int64(rec.Body.Len())
		if rec.Body.Len() == 0 {
			t.Fatalf("offset %d: empty partial response", pos)
		}
	}

	if !bytes.Equal(assembled, data) {
		t.Fatal("reassembled file differs from source")
	}
}

func TestHandleVideo_NoRangeServesWholeFile(t *testing.T) {
	const size = 4096
	reg := newTestRegistry(t)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 101)
	}
	provider := newFakeDataProvider(data, size)
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodGet, token, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(size) {
		t.Errorf("Content-Length = %q, want %d", got, size)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatal("body differs from source")
	}
}

func TestHandleVideo_HeadReturnsMetadataOnly(t *testing.T) {
	const size = 4096
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, size), size)
	token := registerTestStream(t, reg, provider, size)

	rec := doVideoRequest(reg, http.MethodHead, token, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(size) {
		t.Errorf("Content-Length = %q, want %d", got, size)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD must not carry a body, got %d bytes", rec.Body.Len())
	}
}

func TestHandleVideo_ContentTypeFallback(t *testing.T) {
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, 64), 64)

	token, _, err := reg.Register(domain.MediaFile{ID: "file-1", Size: 64}, provider)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := doVideoRequest(reg, http.MethodHead, token, "")
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}
}

func TestHandleVideo_MethodNotAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, 64), 64)
	token := registerTestStream(t, reg, provider, 64)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := doVideoRequest(reg, method, token, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, rec.Code)
		}
		if got := rec.Header().Get("Allow"); !strings.Contains(got, "GET") {
			t.Errorf("%s: expected Allow header with GET, got %q", method, got)
		}
	}
}

func TestHandleVideo_UnknownToken404(t *testing.T) {
	reg := newTestRegistry(t)
	provider := newFakeDataProvider(make([]byte, 64), 64)
	registerTestStream(t, reg, provider, 64)

	rec := doVideoRequest(reg, http.MethodGet, "not-a-token", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown token, got %d", rec.Code)
	}

	rec = doVideoRequest(reg, http.MethodGet, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty token, got %d", rec.Code)
	}
}
