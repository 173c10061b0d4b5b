package api

import (
	"fmt"
	"net/http"
	"time"

	"clipriver/internal/models"
	"clipriver/internal/storage"
)

type signupRequest struct {
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
	Age       int    `json:"age,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

type authResponse struct {
	ExpiresAt string       `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func newAuthResponse(user models.User, expires time.Time) authResponse {
	return authResponse{
		ExpiresAt: expires.UTC().Format(time.RFC3339Nano),
		User:      newUserResponse(user),
	}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Password) < 8 {
		writeError(w, ValidationError("password must be at least 8 characters"))
		return
	}

	_, err := h.Store.CreateUser(storage.CreateUserParams{
		UserName:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.RoleUser,
		Phone:     req.Phone,
		Age:       req.Age,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	// Records the caller's public address into the login IP set.
	user, err := h.Store.AuthenticateUser(req.Email, req.Password, h.loginIP(r))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	h.issueSession(w, r, user, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.Store.AuthenticateUser(req.Email, req.Password, h.loginIP(r))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user models.User, status int) {
	token, expiresAt, err := h.sessionManager().Create(user.ID)
	if err != nil {
		writeError(w, fmt.Errorf("create session: %w", err))
		return
	}
	h.recorder().SessionOpened()
	setSessionCookie(w, r, token, expiresAt)
	writeData(w, status, newAuthResponse(user, expiresAt))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	token := ExtractToken(r)
	if token != "" {
		if err := h.sessionManager().Revoke(token); err != nil {
			writeError(w, err)
			return
		}
		h.recorder().SessionClosed()
	}
	clearSessionCookie(w, r)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, code, err := h.Store.BeginPasswordReset(req.Email, h.resetTTL())
	if err != nil {
		writeStorageError(w, err)
		return
	}

	subject := "Your password reset code"
	body := fmt.Sprintf("Hi %s,\r\n\r\nYour password reset code is %s. It expires in %d minutes.\r\n\r\nIf you did not request a reset, ignore this message.\r\n",
		user.FirstName, code, int(h.resetTTL().Minutes()))
	if err := h.sender().Send(r.Context(), user.Email, subject, body); err != nil {
		h.recorder().ObserveMailEvent("failed")
		// The stored code is unusable if the mail never went out.
		if clearErr := h.Store.ClearPasswordReset(user.ID); clearErr != nil {
			writeStorageError(w, clearErr)
			return
		}
		writeError(w, UpstreamError("send reset email: %v", err))
		return
	}
	h.recorder().ObserveMailEvent("sent")

	writeMessage(w, http.StatusOK, "reset code sent to email")
}

func (h *Handler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req verifyResetCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.Store.VerifyResetCode(req.Email, req.Code); err != nil {
		writeStorageError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "reset code verified")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, "PUT")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, ValidationError("password must be at least 8 characters"))
		return
	}

	user, err := h.Store.ResetPassword(req.Email, req.NewPassword)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	// Existing sessions were invalidated by the password change; hand the
	// caller a fresh one.
	h.issueSession(w, r, user, http.StatusOK)
}
