package storage

import (
	"errors"
	"sort"
	"strings"

	"clipriver/internal/models"
)

// CreateComment attaches a comment to a video and mirrors the relation on the
// video's comment list.
func (s *Storage) CreateComment(videoID, userID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errors.New("content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[videoID]
	if !ok {
		return models.Comment{}, notFound("video", videoID)
	}
	if _, ok := updatedData.Users[userID]; !ok {
		return models.Comment{}, notFound("user", userID)
	}

	id, err := s.generateID()
	if err != nil {
		return models.Comment{}, err
	}

	now := nowUTC()
	comment := models.Comment{
		ID:        id,
		Content:   content,
		UserID:    userID,
		VideoID:   videoID,
		Likes:     []string{},
		Dislikes:  []string{},
		Replies:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	updatedData.Comments[id] = comment
	video.Comments, _ = addToSet(video.Comments, id)
	video.UpdatedAt = now
	updatedData.Videos[videoID] = video

	if err := s.persistDataset(updatedData); err != nil {
		return models.Comment{}, err
	}

	s.data = updatedData

	return comment, nil
}

func (s *Storage) GetComment(id string) (models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.data.Comments[id]
	if !ok {
		return models.Comment{}, false
	}
	cloned := comment
	cloned.Likes = append([]string(nil), comment.Likes...)
	cloned.Dislikes = append([]string(nil), comment.Dislikes...)
	cloned.Replies = append([]string(nil), comment.Replies...)
	return cloned, true
}

// CommentsByVideo returns the video's comments in chronological order.
func (s *Storage) CommentsByVideo(videoID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return nil, notFound("video", videoID)
	}

	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.VideoID != videoID {
			continue
		}
		cloned := comment
		cloned.Likes = append([]string(nil), comment.Likes...)
		cloned.Dislikes = append([]string(nil), comment.Dislikes...)
		cloned.Replies = append([]string(nil), comment.Replies...)
		comments = append(comments, cloned)
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

// UpdateComment replaces the comment body.
func (s *Storage) UpdateComment(id, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errors.New("content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	comment, ok := updatedData.Comments[id]
	if !ok {
		return models.Comment{}, notFound("comment", id)
	}

	comment.Content = content
	comment.UpdatedAt = nowUTC()
	updatedData.Comments[id] = comment
	if err := s.persistDataset(updatedData); err != nil {
		return models.Comment{}, err
	}

	s.data = updatedData

	return comment, nil
}

// DeleteComment removes the comment, its replies, and the back reference on
// the owning video.
func (s *Storage) DeleteComment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Comments[id]; !ok {
		return notFound("comment", id)
	}

	removeCommentLocked(&updatedData, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// removeCommentLocked deletes a comment, its reply tree and the back
// reference on the owning video. Callers hold the write lock.
func removeCommentLocked(data *dataset, id string) {
	comment, ok := data.Comments[id]
	if !ok {
		return
	}

	for _, replyID := range comment.Replies {
		delete(data.Replies, replyID)
	}

	if video, ok := data.Videos[comment.VideoID]; ok {
		if comments, changed := removeFromSet(video.Comments, id); changed {
			video.Comments = comments
			video.UpdatedAt = nowUTC()
			data.Videos[video.ID] = video
		}
	}

	delete(data.Comments, id)
}

// LikeComment toggles userID's like on the comment with the same mutual
// exclusivity rules as video reactions.
func (s *Storage) LikeComment(commentID, userID string) (models.Comment, error) {
	return s.reactToComment(commentID, userID, true)
}

// DislikeComment mirrors LikeComment for the dislike set.
func (s *Storage) DislikeComment(commentID, userID string) (models.Comment, error) {
	return s.reactToComment(commentID, userID, false)
}

func (s *Storage) reactToComment(commentID, userID string, like bool) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	comment, ok := updatedData.Comments[commentID]
	if !ok {
		return models.Comment{}, notFound("comment", commentID)
	}
	if _, ok := updatedData.Users[userID]; !ok {
		return models.Comment{}, notFound("user", userID)
	}

	comment.Likes, comment.Dislikes = toggleReaction(comment.Likes, comment.Dislikes, userID, like)
	comment.UpdatedAt = nowUTC()
	updatedData.Comments[commentID] = comment
	if err := s.persistDataset(updatedData); err != nil {
		return models.Comment{}, err
	}

	s.data = updatedData

	return comment, nil
}

// CreateReply attaches a reply to a comment and mirrors the relation on the
// comment's reply list.
func (s *Storage) CreateReply(commentID, userID, content string) (models.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Reply{}, errors.New("content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	comment, ok := updatedData.Comments[commentID]
	if !ok {
		return models.Reply{}, notFound("comment", commentID)
	}
	if _, ok := updatedData.Users[userID]; !ok {
		return models.Reply{}, notFound("user", userID)
	}

	id, err := s.generateID()
	if err != nil {
		return models.Reply{}, err
	}

	now := nowUTC()
	reply := models.Reply{
		ID:        id,
		Content:   content,
		UserID:    userID,
		CommentID: commentID,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	updatedData.Replies[id] = reply
	comment.Replies, _ = addToSet(comment.Replies, id)
	comment.UpdatedAt = now
	updatedData.Comments[commentID] = comment

	if err := s.persistDataset(updatedData); err != nil {
		return models.Reply{}, err
	}

	s.data = updatedData

	return reply, nil
}

func (s *Storage) GetReply(id string) (models.Reply, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reply, ok := s.data.Replies[id]
	if !ok {
		return models.Reply{}, false
	}
	cloned := reply
	cloned.Likes = append([]string(nil), reply.Likes...)
	cloned.Dislikes = append([]string(nil), reply.Dislikes...)
	return cloned, true
}

// RepliesByComment returns the comment's replies in chronological order.
func (s *Storage) RepliesByComment(commentID string) ([]models.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Comments[commentID]; !ok {
		return nil, notFound("comment", commentID)
	}

	replies := make([]models.Reply, 0)
	for _, reply := range s.data.Replies {
		if reply.CommentID != commentID {
			continue
		}
		cloned := reply
		cloned.Likes = append([]string(nil), reply.Likes...)
		cloned.Dislikes = append([]string(nil), reply.Dislikes...)
		replies = append(replies, cloned)
	}
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies, nil
}

// UpdateReply replaces the reply body.
func (s *Storage) UpdateReply(id, content string) (models.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Reply{}, errors.New("content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	reply, ok := updatedData.Replies[id]
	if !ok {
		return models.Reply{}, notFound("reply", id)
	}

	reply.Content = content
	reply.UpdatedAt = nowUTC()
	updatedData.Replies[id] = reply
	if err := s.persistDataset(updatedData); err != nil {
		return models.Reply{}, err
	}

	s.data = updatedData

	return reply, nil
}

// DeleteReply removes the reply and the back reference on its comment.
func (s *Storage) DeleteReply(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Replies[id]; !ok {
		return notFound("reply", id)
	}

	removeReplyLocked(&updatedData, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// removeReplyLocked deletes a reply and the back reference on its comment.
// Callers hold the write lock.
func removeReplyLocked(data *dataset, id string) {
	reply, ok := data.Replies[id]
	if !ok {
		return
	}

	if comment, ok := data.Comments[reply.CommentID]; ok {
		if replies, changed := removeFromSet(comment.Replies, id); changed {
			comment.Replies = replies
			comment.UpdatedAt = nowUTC()
			data.Comments[comment.ID] = comment
		}
	}

	delete(data.Replies, id)
}

// LikeReply toggles userID's like on the reply.
func (s *Storage) LikeReply(replyID, userID string) (models.Reply, error) {
	return s.reactToReply(replyID, userID, true)
}

// DislikeReply mirrors LikeReply for the dislike set.
func (s *Storage) DislikeReply(replyID, userID string) (models.Reply, error) {
	return s.reactToReply(replyID, userID, false)
}

func (s *Storage) reactToReply(replyID, userID string, like bool) (models.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	reply, ok := updatedData.Replies[replyID]
	if !ok {
		return models.Reply{}, notFound("reply", replyID)
	}
	if _, ok := updatedData.Users[userID]; !ok {
		return models.Reply{}, notFound("user", userID)
	}

	reply.Likes, reply.Dislikes = toggleReaction(reply.Likes, reply.Dislikes, userID, like)
	reply.UpdatedAt = nowUTC()
	updatedData.Replies[replyID] = reply
	if err := s.persistDataset(updatedData); err != nil {
		return models.Reply{}, err
	}

	s.data = updatedData

	return reply, nil
}
