package api

import (
	"net/http"
	"strings"

	"clipriver/internal/storage"
)

type updateUserRequest struct {
	UserName     *string `json:"userName"`
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Age          *int    `json:"age"`
	ProfileImage *string `json:"profileImage"`
	CoverImage   *string `json:"coverImage"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Users serves the collection route: admin listing plus self-service update
// and deletion of the calling account.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		result, err := storage.NewQuery(r.URL.Query()).Apply(h.Store.ListUsers(),
			"userName", "firstName", "lastName", "email")
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, result)
	case http.MethodPatch:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		user, err := h.Store.UpdateUser(actor.ID, storage.UserUpdate{
			UserName:     req.UserName,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			Phone:        req.Phone,
			Age:          req.Age,
			ProfileImage: req.ProfileImage,
			CoverImage:   req.CoverImage,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newUserResponse(user))
	case http.MethodDelete:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		if err := h.Store.DeleteUser(actor.ID); err != nil {
			writeStorageError(w, err)
			return
		}
		if token := ExtractToken(r); token != "" {
			_ = h.sessionManager().Revoke(token)
			h.recorder().SessionClosed()
		}
		clearSessionCookie(w, r)
		writeMessage(w, http.StatusOK, "account deleted")
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

// UserByID dispatches the subresource routes under /users/: current-user,
// change-password, subscribe, unsubscribe, sub-channels, and the admin
// by-id operations.
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("user path missing"))
		return
	}

	switch parts[0] {
	case "current-user":
		h.currentUser(w, r)
	case "change-password":
		h.changePassword(w, r)
	case "subscribe":
		h.subscription(w, r, parts[1:], true)
	case "unsubscribe":
		h.subscription(w, r, parts[1:], false)
	case "sub-channels":
		h.subscribedChannels(w, r)
	default:
		h.userAdminByID(w, r, parts[0])
	}
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, newUserResponse(actor))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, ValidationError("password must be at least 8 characters"))
		return
	}
	user, err := h.Store.ChangePassword(actor.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	// The change invalidated every outstanding token for this account.
	h.issueSession(w, r, user, http.StatusOK)
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request, rest []string, subscribe bool) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("channel id missing"))
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var err error
	var channel = actor
	if subscribe {
		channel, err = h.Store.Subscribe(actor.ID, rest[0])
	} else {
		channel, err = h.Store.Unsubscribe(actor.ID, rest[0])
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusOK, newUserResponse(channel))
}

func (h *Handler) subscribedChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	channels := make([]userResponse, 0, len(actor.SubscribedChannels))
	for _, id := range actor.SubscribedChannels {
		if channel, exists := h.Store.GetUser(id); exists {
			channels = append(channels, newUserResponse(channel))
		}
	}
	writeData(w, http.StatusOK, channels)
}

func (h *Handler) userAdminByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		user, exists := h.Store.GetUser(id)
		if !exists {
			writeError(w, NotFoundError("user %s not found", id))
			return
		}
		writeData(w, http.StatusOK, newUserResponse(user))
	case http.MethodDelete:
		if _, ok := h.requireAdmin(w, r); !ok {
			return
		}
		if err := h.Store.DeleteUser(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "account deleted")
	default:
		methodNotAllowed(w, r, "GET, DELETE")
	}
}
