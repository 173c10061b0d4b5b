package api

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"

	"clipriver/internal/observability/logging"
	"clipriver/internal/storage"
)

// streamChunkSize bounds how much of a video a single 206 response carries;
// players issue follow-up range requests for the rest.
const streamChunkSize = 1_000_000

func (h *Handler) streamVideoRoute(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("file name missing"))
		return
	}
	h.streamVideo(w, r, rest[0])
}

func (h *Handler) streamVideo(w http.ResponseWriter, r *http.Request, filename string) {
	if h.Media == nil {
		writeError(w, &RequestError{Status: http.StatusInternalServerError, Message: "media store not configured"})
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		writeError(w, ValidationError("Range header is required"))
		return
	}
	start, err := parseRangeStart(rangeHeader)
	if err != nil {
		writeError(w, ValidationError("invalid Range header: %v", err))
		return
	}

	storedPath := path.Join("videos", filename)
	file, size, err := h.Media.Open(storedPath)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidMediaName):
			writeError(w, ValidationError("invalid file name"))
		case errors.Is(err, fs.ErrNotExist):
			writeError(w, NotFoundError("video file %s not found", filename))
		default:
			writeError(w, err)
		}
		return
	}
	defer file.Close()

	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeMessage(w, http.StatusRequestedRangeNotSatisfiable, "range start beyond end of file")
		return
	}

	h.recordViewForPath(r, storedPath)

	end := start + streamChunkSize - 1
	if end > size-1 {
		end = size - 1
	}
	length := end - start + 1

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusPartialContent)

	written, _ := io.CopyN(w, file, length)
	h.recorder().ObservePlayback(written)
	if logger := logging.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("served video chunk", "file", filename, "start", start, "bytes", written)
	}
}

// parseRangeStart reads the start offset from a bytes range header. The end
// offset, when present, is ignored: responses always carry at most one chunk.
func parseRangeStart(header string) (int64, error) {
	value, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, fmt.Errorf("unsupported range unit")
	}
	if strings.Contains(value, ",") {
		return 0, fmt.Errorf("multiple ranges not supported")
	}
	startRaw, _, found := strings.Cut(value, "-")
	if !found {
		return 0, fmt.Errorf("malformed range spec")
	}
	startRaw = strings.TrimSpace(startRaw)
	if startRaw == "" {
		return 0, fmt.Errorf("suffix ranges not supported")
	}
	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("malformed range start")
	}
	return start, nil
}

// recordViewForPath adds the client address to the distinct view set of the
// video backing the streamed file. Playback proceeds even if recording fails.
func (h *Handler) recordViewForPath(r *http.Request, storedPath string) {
	for _, video := range h.Store.ListVideos() {
		if video.VideoPath != storedPath {
			continue
		}
		before := video.ViewCount()
		updated, err := h.Store.RecordView(video.ID, extractClientIP(r))
		if err == nil {
			h.recorder().ObserveView(updated.ViewCount() > before)
		}
		return
	}
}
