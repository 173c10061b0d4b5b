package api

import (
	"net/http"
	"strings"

	"clipriver/internal/storage"
)

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type updateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Categories serves the collection route: public listing, admin creation.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories := h.Store.ListCategories()
		response := make([]categoryResponse, 0, len(categories))
		for _, category := range categories {
			response = append(response, newCategoryResponse(category))
		}
		writeData(w, http.StatusOK, response)
	case http.MethodPost:
		actor, ok := h.requireAdmin(w, r)
		if !ok {
			return
		}
		var req createCategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, ValidationError("name is required"))
			return
		}
		category, err := h.Store.CreateCategory(req.Name, req.Description, actor.ID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusCreated, newCategoryResponse(category))
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// CategoryByID serves the by-id routes plus the per-category video listing.
func (h *Handler) CategoryByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/categories/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("category id missing"))
		return
	}
	id := parts[0]
	if len(parts) == 2 && parts[1] == "videos" {
		h.videosByCategory(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeError(w, NotFoundError("unknown category path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		category, exists := h.Store.GetCategory(id)
		if !exists {
			writeError(w, NotFoundError("category %s not found", id))
			return
		}
		writeData(w, http.StatusOK, newCategoryResponse(category))
	case http.MethodPatch:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		var req updateCategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		category, err := h.Store.UpdateCategory(id, storage.CategoryUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newCategoryResponse(category))
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteCategory(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "category deleted")
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

func (h *Handler) videosByCategory(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	videos, err := h.Store.VideosByCategory(id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusOK, newVideoListResponse(videos))
}
