package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"clipriver/internal/auth"
	"clipriver/internal/mail"
	"clipriver/internal/models"
	"clipriver/internal/netinfo"
	"clipriver/internal/observability/metrics"
	"clipriver/internal/storage"
)

const defaultResetCodeTTL = 10 * time.Minute

// Handler bundles the collaborators the HTTP layer needs: the document
// repository, session manager, media file store, outbound mail, and the
// public-IP client used to record login addresses.
type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Media    *storage.MediaStore
	Mail     mail.Sender
	NetInfo  *netinfo.Client
	Metrics  *metrics.Recorder
	ResetTTL time.Duration
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return h.Sessions
}

func (h *Handler) sender() mail.Sender {
	if h.Mail == nil {
		return mail.NoopSender{}
	}
	return h.Mail
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics == nil {
		return metrics.Default()
	}
	return h.Metrics
}

func (h *Handler) resetTTL() time.Duration {
	if h.ResetTTL <= 0 {
		return defaultResetCodeTTL
	}
	return h.ResetTTL
}

type healthServiceStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
}

// Health reports the reachability of the document store and the session
// store and mirrors the outcome into the dependency-health gauge.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := []healthServiceStatus{}
	overall := "ok"

	storageStatus := "ok"
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			storageStatus = "degraded"
			overall = "degraded"
		}
	} else {
		storageStatus = "disabled"
	}
	services = append(services, healthServiceStatus{Component: "storage", Status: storageStatus})

	sessionStatus := "ok"
	if err := h.sessionManager().Ping(r.Context()); err != nil {
		sessionStatus = "degraded"
		overall = "degraded"
	}
	services = append(services, healthServiceStatus{Component: "sessions", Status: sessionStatus})

	for _, service := range services {
		h.recorder().SetDependencyHealth(service.Component, service.Status)
	}

	status := http.StatusOK
	if overall != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeData(w, status, map[string]any{
		"status":   overall,
		"services": services,
	})
}

// extractClientIP resolves the requesting address, trusting forwarding
// headers set by the reverse proxy before falling back to the socket peer.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loginIP discovers the caller's public address, falling back to the
// request's client address when discovery fails.
func (h *Handler) loginIP(r *http.Request) string {
	if h.NetInfo != nil {
		if ip, err := h.NetInfo.CurrentIP(r.Context()); err == nil && ip != "" {
			return ip
		}
	}
	return extractClientIP(r)
}

// Response shaping. Timestamps render as RFC3339Nano strings; the password
// hash and reset fields never leave the API.

type userResponse struct {
	ID                 string   `json:"id"`
	UserName           string   `json:"userName"`
	FirstName          string   `json:"firstName"`
	LastName           string   `json:"lastName"`
	Slug               string   `json:"slug"`
	Email              string   `json:"email"`
	Role               string   `json:"role"`
	Videos             []string `json:"videos"`
	Subscribers        []string `json:"subscribers"`
	SubscribedChannels []string `json:"subscribedChannels"`
	Phone              string   `json:"phone,omitempty"`
	Age                int      `json:"age,omitempty"`
	ProfileImage       string   `json:"profileImage,omitempty"`
	CoverImage         string   `json:"coverImage,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:                 user.ID,
		UserName:           user.UserName,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		Slug:               user.Slug,
		Email:              user.Email,
		Role:               string(user.Role),
		Videos:             append([]string{}, user.Videos...),
		Subscribers:        append([]string{}, user.Subscribers...),
		SubscribedChannels: append([]string{}, user.SubscribedChannels...),
		Phone:              user.Phone,
		Age:                user.Age,
		ProfileImage:       user.ProfileImage,
		CoverImage:         user.CoverImage,
		CreatedAt:          user.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:          user.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type videoResponse struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"ownerId"`
	Name         string   `json:"name"`
	VideoPath    string   `json:"videoPath"`
	Tags         []string `json:"tags"`
	Likes        []string `json:"likes"`
	Dislikes     []string `json:"dislikes"`
	ViewCount    int      `json:"viewCount"`
	Comments     []string `json:"comments"`
	CommentCount int      `json:"commentCount"`
	CategoryID   string   `json:"categoryId,omitempty"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

func newVideoResponse(video models.Video) videoResponse {
	return videoResponse{
		ID:           video.ID,
		OwnerID:      video.OwnerID,
		Name:         video.Name,
		VideoPath:    video.VideoPath,
		Tags:         append([]string{}, video.Tags...),
		Likes:        append([]string{}, video.Likes...),
		Dislikes:     append([]string{}, video.Dislikes...),
		ViewCount:    video.ViewCount(),
		Comments:     append([]string{}, video.Comments...),
		CommentCount: video.CommentCount(),
		CategoryID:   video.CategoryID,
		CreatedAt:    video.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    video.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newVideoListResponse(videos []models.Video) []videoResponse {
	response := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		response = append(response, newVideoResponse(video))
	}
	return response
}

type commentResponse struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	UserID     string   `json:"userId"`
	VideoID    string   `json:"videoId"`
	Likes      []string `json:"likes"`
	Dislikes   []string `json:"dislikes"`
	Replies    []string `json:"replies"`
	ReplyCount int      `json:"replyCount"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
}

func newCommentResponse(comment models.Comment) commentResponse {
	return commentResponse{
		ID:         comment.ID,
		Content:    comment.Content,
		UserID:     comment.UserID,
		VideoID:    comment.VideoID,
		Likes:      append([]string{}, comment.Likes...),
		Dislikes:   append([]string{}, comment.Dislikes...),
		Replies:    append([]string{}, comment.Replies...),
		ReplyCount: comment.ReplyCount(),
		CreatedAt:  comment.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  comment.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type replyResponse struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	UserID    string   `json:"userId"`
	CommentID string   `json:"commentId"`
	Likes     []string `json:"likes"`
	Dislikes  []string `json:"dislikes"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func newReplyResponse(reply models.Reply) replyResponse {
	return replyResponse{
		ID:        reply.ID,
		Content:   reply.Content,
		UserID:    reply.UserID,
		CommentID: reply.CommentID,
		Likes:     append([]string{}, reply.Likes...),
		Dislikes:  append([]string{}, reply.Dislikes...),
		CreatedAt: reply.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: reply.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type playlistResponse struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"ownerId"`
	Name      string   `json:"name"`
	Videos    []string `json:"videos"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func newPlaylistResponse(playlist models.Playlist) playlistResponse {
	return playlistResponse{
		ID:        playlist.ID,
		OwnerID:   playlist.OwnerID,
		Name:      playlist.Name,
		Videos:    append([]string{}, playlist.Videos...),
		CreatedAt: playlist.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: playlist.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type categoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UserID      string `json:"userId"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func newCategoryResponse(category models.Category) categoryResponse {
	return categoryResponse{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		UserID:      category.UserID,
		CreatedAt:   category.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   category.UpdatedAt.Format(time.RFC3339Nano),
	}
}
