package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipriver/internal/models"
	"clipriver/internal/storage"
)

const streamFixture = "0123456789abcdefghijklmnopqrstuvwxyz"

func seedStreamableVideo(t *testing.T, handler *Handler, store *storage.Storage) (models.Video, string) {
	t.Helper()
	owner := createTestUser(t, store, "caster", "caster@example.com", models.RoleUser)
	storedPath, err := handler.Media.Save("videos", "clip.mp4", strings.NewReader(streamFixture))
	if err != nil {
		t.Fatalf("Media.Save: %v", err)
	}
	video, err := store.CreateVideo(storage.CreateVideoParams{
		OwnerID:   owner.ID,
		Name:      "Stream Me",
		VideoPath: storedPath,
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return video, strings.TrimPrefix(storedPath, "videos/")
}

func TestStreamRequiresRangeHeader(t *testing.T) {
	handler, store := newTestHandler(t)
	_, filename := seedStreamableVideo(t, handler, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/"+filename, nil)
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStreamReturnsPartialContent(t *testing.T) {
	handler, store := newTestHandler(t)
	_, filename := seedStreamableVideo(t, handler, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/"+filename, nil)
	req.Header.Set("Range", "bytes=10-")
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusPartialContent, rec.Body.String())
	}

	size := len(streamFixture)
	wantRange := fmt.Sprintf("bytes 10-%d/%d", size-1, size)
	if got := rec.Header().Get("Content-Range"); got != wantRange {
		t.Fatalf("Content-Range = %q, want %q", got, wantRange)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := rec.Body.String(); got != streamFixture[10:] {
		t.Fatalf("body = %q, want %q", got, streamFixture[10:])
	}
}

func TestStreamIgnoresClientEndOffset(t *testing.T) {
	handler, store := newTestHandler(t)
	_, filename := seedStreamableVideo(t, handler, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/"+filename, nil)
	req.Header.Set("Range", "bytes=0-4")
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	// The response carries the full chunk from the start offset, not the
	// client's requested end.
	if got := rec.Body.String(); got != streamFixture {
		t.Fatalf("body = %q, want the whole fixture", got)
	}
}

func TestStreamRangeBeyondEnd(t *testing.T) {
	handler, store := newTestHandler(t)
	_, filename := seedStreamableVideo(t, handler, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/"+filename, nil)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(streamFixture)))
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestedRangeNotSatisfiable)
	}
	want := fmt.Sprintf("bytes */%d", len(streamFixture))
	if got := rec.Header().Get("Content-Range"); got != want {
		t.Fatalf("Content-Range = %q, want %q", got, want)
	}
}

func TestStreamMissingFile(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/absent.mp4", nil)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStreamRejectsTraversal(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/..%2Fstore.json", nil)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()
	handler.VideoByID(rec, req)

	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want rejection", rec.Code)
	}
}

func TestStreamRecordsDistinctViews(t *testing.T) {
	handler, store := newTestHandler(t)
	video, filename := seedStreamableVideo(t, handler, store)

	stream := func(ip string) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/stream/"+filename, nil)
		req.Header.Set("Range", "bytes=0-")
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.VideoByID(rec, req)
		if rec.Code != http.StatusPartialContent {
			t.Fatalf("stream from %s: status = %d", ip, rec.Code)
		}
	}

	stream("198.51.100.1")
	stream("198.51.100.1")
	stream("198.51.100.2")

	updated, _ := store.GetVideo(video.ID)
	if updated.ViewCount() != 2 {
		t.Fatalf("viewCount = %d, want 2 distinct addresses", updated.ViewCount())
	}

	views := handler.Metrics.ViewCounts()
	if views["unique"] != 2 || views["repeat"] != 1 {
		t.Fatalf("view metrics = %v, want 2 unique and 1 repeat", views)
	}
}

func TestParseRangeStart(t *testing.T) {
	cases := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"bytes=0-", 0, false},
		{"bytes=500-", 500, false},
		{"bytes=500-999", 500, false},
		{"bytes= 12-", 12, false},
		{"items=0-", 0, true},
		{"bytes=-500", 0, true},
		{"bytes=0-100,200-300", 0, true},
		{"bytes=abc-", 0, true},
		{"bytes=0", 0, true},
	}
	for _, tc := range cases {
		got, err := parseRangeStart(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("%q: start = %d, want %d", tc.header, got, tc.want)
		}
	}
}
