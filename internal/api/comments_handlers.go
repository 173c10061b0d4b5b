package api

import (
	"net/http"
	"strings"
)

type createCommentRequest struct {
	VideoID string `json:"videoId"`
	Content string `json:"content"`
}

type updateContentRequest struct {
	Content string `json:"content"`
}

type createReplyRequest struct {
	CommentID string `json:"commentId"`
	Content   string `json:"content"`
}

// Comments serves the collection route: authenticated creation.
func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, ValidationError("content is required"))
		return
	}
	comment, err := h.Store.CreateComment(req.VideoID, actor.ID, req.Content)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusCreated, newCommentResponse(comment))
}

// CommentByID dispatches the subresource routes under /comments/: the
// per-video listing, like/dislike, and the by-id operations.
func (h *Handler) CommentByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/comments/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("comment path missing"))
		return
	}

	switch parts[0] {
	case "video":
		h.commentsByVideo(w, r, parts[1:])
	case "like":
		h.commentReaction(w, r, parts[1:], true)
	case "dislike":
		h.commentReaction(w, r, parts[1:], false)
	default:
		h.commentCRUD(w, r, parts[0])
	}
}

func (h *Handler) commentsByVideo(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("video id missing"))
		return
	}
	comments, err := h.Store.CommentsByVideo(rest[0])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	response := make([]commentResponse, 0, len(comments))
	for _, comment := range comments {
		response = append(response, newCommentResponse(comment))
	}
	writeData(w, http.StatusOK, response)
}

func (h *Handler) commentCRUD(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		comment, exists := h.Store.GetComment(id)
		if !exists {
			writeError(w, NotFoundError("comment %s not found", id))
			return
		}
		writeData(w, http.StatusOK, newCommentResponse(comment))
	case http.MethodPatch:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		comment, exists := h.Store.GetComment(id)
		if !exists {
			writeError(w, NotFoundError("comment %s not found", id))
			return
		}
		if !canManage(actor, comment.UserID) {
			writeError(w, ForbiddenError("not the comment author"))
			return
		}
		var req updateContentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, ValidationError("content is required"))
			return
		}
		updated, err := h.Store.UpdateComment(id, req.Content)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newCommentResponse(updated))
	case http.MethodDelete:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		comment, exists := h.Store.GetComment(id)
		if !exists {
			writeError(w, NotFoundError("comment %s not found", id))
			return
		}
		if !h.canManageComment(actor.ID, comment.UserID, comment.VideoID) && !actor.IsAdmin() {
			writeError(w, ForbiddenError("not the comment author"))
			return
		}
		if err := h.Store.DeleteComment(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "comment deleted")
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

// canManageComment lets the comment author and the owner of the video the
// comment sits on moderate it.
func (h *Handler) canManageComment(actorID, authorID, videoID string) bool {
	if actorID == authorID {
		return true
	}
	if video, exists := h.Store.GetVideo(videoID); exists {
		return video.OwnerID == actorID
	}
	return false
}

func (h *Handler) commentReaction(w http.ResponseWriter, r *http.Request, rest []string, like bool) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("comment id missing"))
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	react := h.Store.DislikeComment
	if like {
		react = h.Store.LikeComment
	}
	comment, err := react(rest[0], actor.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusOK, newCommentResponse(comment))
}

// Replies serves the collection route: authenticated creation.
func (h *Handler) Replies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req createReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, ValidationError("content is required"))
		return
	}
	reply, err := h.Store.CreateReply(req.CommentID, actor.ID, req.Content)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusCreated, newReplyResponse(reply))
}

// ReplyByID dispatches the subresource routes under /replies/.
func (h *Handler) ReplyByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/replies/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("reply path missing"))
		return
	}

	switch parts[0] {
	case "comment":
		h.repliesByComment(w, r, parts[1:])
	case "like":
		h.replyReaction(w, r, parts[1:], true)
	case "dislike":
		h.replyReaction(w, r, parts[1:], false)
	default:
		h.replyCRUD(w, r, parts[0])
	}
}

func (h *Handler) repliesByComment(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("comment id missing"))
		return
	}
	replies, err := h.Store.RepliesByComment(rest[0])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	response := make([]replyResponse, 0, len(replies))
	for _, reply := range replies {
		response = append(response, newReplyResponse(reply))
	}
	writeData(w, http.StatusOK, response)
}

func (h *Handler) replyCRUD(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		reply, exists := h.Store.GetReply(id)
		if !exists {
			writeError(w, NotFoundError("reply %s not found", id))
			return
		}
		writeData(w, http.StatusOK, newReplyResponse(reply))
	case http.MethodPatch:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		reply, exists := h.Store.GetReply(id)
		if !exists {
			writeError(w, NotFoundError("reply %s not found", id))
			return
		}
		if !canManage(actor, reply.UserID) {
			writeError(w, ForbiddenError("not the reply author"))
			return
		}
		var req updateContentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, ValidationError("content is required"))
			return
		}
		updated, err := h.Store.UpdateReply(id, req.Content)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeData(w, http.StatusOK, newReplyResponse(updated))
	case http.MethodDelete:
		actor, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		reply, exists := h.Store.GetReply(id)
		if !exists {
			writeError(w, NotFoundError("reply %s not found", id))
			return
		}
		if !canManage(actor, reply.UserID) {
			writeError(w, ForbiddenError("not the reply author"))
			return
		}
		if err := h.Store.DeleteReply(id); err != nil {
			writeStorageError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "reply deleted")
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

func (h *Handler) replyReaction(w http.ResponseWriter, r *http.Request, rest []string, like bool) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, NotFoundError("reply id missing"))
		return
	}
	actor, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	react := h.Store.DislikeReply
	if like {
		react = h.Store.LikeReply
	}
	reply, err := react(rest[0], actor.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeData(w, http.StatusOK, newReplyResponse(reply))
}
