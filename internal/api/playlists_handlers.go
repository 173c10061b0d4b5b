package api

import (
	"net/http"
	"strings"

	"clipriver/internal/models"
)

type playlistNameRequest struct {
	Name string `json:"name"`
}

// Playlists serves the collection route. The playlist routes are owner
// scoped: callers always operate on their own playlist, addressed
// implicitly.
func (h *Handler) Playlists(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		playlists, err := h.Store.PlaylistsByOwner(actor.ID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		response := make([]playlistResponse, 0, len(playlists))
		for _, playlist := range playlists {
			response = append(response, newPlaylistResponse(playlist))
		}
		writeData(w, http.StatusOK, response)
	case http.MethodPost:
		var req playlistNameRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, ValidationError("name is required"))
			return
		}
		playlist, err := h.Store.CreatePlaylist(actor.ID, req.Name)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusCreated, newPlaylistResponse(playlist))
	case http.MethodPatch:
		playlist, ok := h.ownPlaylist(w, actor)
		if !ok {
			return
		}
		var req playlistNameRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, ValidationError("name is required"))
			return
		}
		renamed, err := h.Store.RenamePlaylist(playlist.ID, req.Name)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newPlaylistResponse(renamed))
	case http.MethodDelete:
		playlist, ok := h.ownPlaylist(w, actor)
		if !ok {
			return
		}
		if err := h.Store.DeletePlaylist(playlist.ID); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "playlist deleted")
	default:
		methodNotAllowed(w, r, "GET, POST, PATCH, DELETE")
	}
}

// PlaylistByVideo serves membership changes: POST adds a video to the
// caller's playlist, PATCH removes it.
func (h *Handler) PlaylistByVideo(w http.ResponseWriter, r *http.Request) {
	videoID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/playlists/"), "/")
	if videoID == "" || strings.Contains(videoID, "/") {
		writeError(w, NotFoundError("video id missing"))
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	playlist, ok := h.ownPlaylist(w, actor)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		updated, err := h.Store.AddToPlaylist(playlist.ID, videoID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newPlaylistResponse(updated))
	case http.MethodPatch:
		updated, err := h.Store.RemoveFromPlaylist(playlist.ID, videoID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newPlaylistResponse(updated))
	default:
		methodNotAllowed(w, r, "POST, PATCH")
	}
}

func (h *Handler) ownPlaylist(w http.ResponseWriter, actor models.User) (models.Playlist, bool) {
	playlists, err := h.Store.PlaylistsByOwner(actor.ID)
	if err != nil {
		writeStorageError(w, err)
		return models.Playlist{}, false
	}
	if len(playlists) == 0 {
		writeError(w, NotFoundError("no playlist for this account"))
		return models.Playlist{}, false
	}
	return playlists[0], true
}
