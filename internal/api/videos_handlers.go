package api

import (
	"net/http"
	"strconv"
	"strings"

	"clipriver/internal/storage"
)

const (
	maxUploadMemory       = 32 << 20
	defaultDiscoveryLimit = 10
)

type updateVideoRequest struct {
	Name       *string   `json:"name"`
	Tags       *[]string `json:"tags"`
	CategoryID *string   `json:"categoryId"`
}

// Videos serves the collection route: a public listing through the query
// layer and multipart uploads for authenticated users.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		result, err := storage.NewQuery(r.URL.Query()).Apply(h.Store.ListVideos(), "name")
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, result)
	case http.MethodPost:
		h.uploadVideo(w, r)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (h *Handler) uploadVideo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if h.Media == nil {
		writeError(w, &RequestError{Status: http.StatusInternalServerError, Message: "media store not configured"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.recorder().ObserveUpload("rejected", 0)
		writeError(w, ValidationError("invalid multipart form: %v", err))
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.recorder().ObserveUpload("rejected", 0)
		writeError(w, ValidationError("name is required"))
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		h.recorder().ObserveUpload("rejected", 0)
		writeError(w, ValidationError("video file is required"))
		return
	}
	defer file.Close()

	storedPath, err := h.Media.Save("videos", header.Filename, file)
	if err != nil {
		h.recorder().ObserveUpload("rejected", 0)
		writeStorageError(w, err)
		return
	}

	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:    actor.ID,
		Name:       name,
		VideoPath:  storedPath,
		Tags:       parseTags(r.Form["tags"]),
		CategoryID: strings.TrimSpace(r.FormValue("categoryId")),
	})
	if err != nil {
		_ = h.Media.Remove(storedPath)
		h.recorder().ObserveUpload("rejected", 0)
		writeStorageError(w, err)
		return
	}
	h.recorder().ObserveUpload("accepted", header.Size)
	writeData(w, http.StatusCreated, newVideoResponse(video))
}

// parseTags accepts repeated tags fields as well as a single comma-separated
// value.
func parseTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, tag := range strings.Split(value, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// VideoByID dispatches the subresource routes under /videos/: like, dislike,
// stream, the discovery endpoints, and the by-id operations.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/videos/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("video path missing"))
		return
	}

	switch parts[0] {
	case "like":
		h.videoReaction(w, r, parts[1:], true)
	case "dislike":
		h.videoReaction(w, r, parts[1:], false)
	case "stream":
		h.streamVideoRoute(w, r, parts[1:])
	case "random":
		h.randomVideos(w, r)
	case "trend":
		h.trendingVideos(w, r)
	case "tags":
		h.videosByTag(w, r)
	case "search":
		h.searchVideos(w, r)
	default:
		h.videoCRUD(w, r, parts[0])
	}
}

func (h *Handler) videoCRUD(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		video, exists := h.Store.GetVideo(id)
		if !exists {
			writeError(w, NotFoundError("video %s not found", id))
			return
		}
		writeData(w, http.StatusOK, newVideoResponse(video))
	case http.MethodPatch:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		video, exists := h.Store.GetVideo(id)
		if !exists {
			writeError(w, NotFoundError("video %s not found", id))
			return
		}
		if !canManage(actor, video.OwnerID) {
			writeError(w, ForbiddenError("not the video owner"))
			return
		}
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		updated, err := h.Store.UpdateVideo(id, storage.VideoUpdate{
			Name:       req.Name,
			Tags:       req.Tags,
			CategoryID: req.CategoryID,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newVideoResponse(updated))
	case http.MethodDelete:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		video, exists := h.Store.GetVideo(id)
		if !exists {
			writeError(w, NotFoundError("video %s not found", id))
			return
		}
		if !canManage(actor, video.OwnerID) {
			writeError(w, ForbiddenError("not the video owner"))
			return
		}
		if err := h.Store.DeleteVideo(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "video deleted")
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

func (h *Handler) videoReaction(w http.ResponseWriter, r *http.Request, rest []string, like bool) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("video id missing"))
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	react := h.Store.DislikeVideo
	if like {
		react = h.Store.LikeVideo
	}
	video, err := react(rest[0], actor.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusOK, newVideoResponse(video))
}

func (h *Handler) randomVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	writeData(w, http.StatusOK, newVideoListResponse(h.Store.RandomVideos(discoveryLimit(r))))
}

func (h *Handler) trendingVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	writeData(w, http.StatusOK, newVideoListResponse(h.Store.TrendingVideos(discoveryLimit(r))))
}

func (h *Handler) videosByTag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" {
		writeError(w, ValidationError("tag parameter is required"))
		return
	}
	writeData(w, http.StatusOK, newVideoListResponse(h.Store.VideosByTag(tag)))
}

func (h *Handler) searchVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if strings.TrimSpace(r.URL.Query().Get("keyword")) == "" {
		writeError(w, ValidationError("keyword parameter is required"))
		return
	}
	result, err := storage.NewQuery(r.URL.Query()).Apply(h.Store.ListVideos(), "name")
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func discoveryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultDiscoveryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultDiscoveryLimit
	}
	return limit
}
