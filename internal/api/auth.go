package api

import (
	"context"
	"net/http"

	"clipriver/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// AuthenticateRequest validates the session token on the request and returns
// the account it belongs to. Tokens issued before the account's last password
// change are revoked and rejected.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, UnauthorizedError("missing session token")
	}
	record, ok, err := h.sessionManager().Validate(token)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, UnauthorizedError("invalid or expired session")
	}
	user, exists := h.Store.GetUser(record.UserID)
	if !exists {
		// The account was deleted out from under a live session.
		_ = h.sessionManager().Revoke(token)
		return models.User{}, NotFoundError("account no longer exists")
	}
	if user.PasswordChangedAt != nil && record.IssuedAt.Before(*user.PasswordChangedAt) {
		_ = h.sessionManager().Revoke(token)
		return models.User{}, UnauthorizedError("password changed, please log in again")
	}
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, true
	}
	user, err := h.AuthenticateRequest(r)
	if err != nil {
		writeError(w, err)
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if !user.IsAdmin() {
		writeError(w, ForbiddenError("admin role required"))
		return models.User{}, false
	}
	return user, true
}

// canManage reports whether the actor owns the resource or is an admin.
func canManage(actor models.User, ownerID string) bool {
	return actor.ID == ownerID || actor.IsAdmin()
}
