package storage

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"clipriver/internal/models"
)

// CreateVideoParams captures the attributes that can be set when publishing a
// video.
type CreateVideoParams struct {
	OwnerID    string
	Name       string
	VideoPath  string
	Tags       []string
	CategoryID string
}

func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Video{}, errors.New("name is required")
	}
	if strings.TrimSpace(params.VideoPath) == "" {
		return models.Video{}, errors.New("videoPath is required")
	}

	updatedData := cloneDataset(s.data)

	owner, ok := updatedData.Users[params.OwnerID]
	if !ok {
		return models.Video{}, notFound("user", params.OwnerID)
	}
	for _, existing := range updatedData.Videos {
		if existing.VideoPath == params.VideoPath {
			return models.Video{}, fmt.Errorf("videoPath %s already in use: %w", params.VideoPath, ErrConflict)
		}
	}
	if params.CategoryID != "" {
		if _, ok := updatedData.Categories[params.CategoryID]; !ok {
			return models.Video{}, notFound("category", params.CategoryID)
		}
	}

	id, err := s.generateID()
	if err != nil {
		return models.Video{}, err
	}

	now := nowUTC()
	video := models.Video{
		ID:         id,
		OwnerID:    params.OwnerID,
		Name:       name,
		VideoPath:  params.VideoPath,
		Tags:       normalizeTags(params.Tags),
		Likes:      []string{},
		Dislikes:   []string{},
		Views:      []string{},
		Comments:   []string{},
		CategoryID: params.CategoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	updatedData.Videos[id] = video
	owner.Videos, _ = addToSet(owner.Videos, id)
	owner.UpdatedAt = now
	updatedData.Users[owner.ID] = owner

	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData

	return cloneVideo(video), nil
}

func (s *Storage) ListVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		videos = append(videos, cloneVideo(video))
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.Before(videos[j].CreatedAt)
	})
	return videos
}

func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, false
	}
	return cloneVideo(video), true
}

// VideoUpdate represents the fields that can be modified on a video.
type VideoUpdate struct {
	Name       *string
	Tags       *[]string
	CategoryID *string
}

func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return models.Video{}, notFound("video", id)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Video{}, errors.New("name cannot be empty")
		}
		video.Name = name
	}
	if update.Tags != nil {
		video.Tags = normalizeTags(*update.Tags)
	}
	if update.CategoryID != nil {
		categoryID := strings.TrimSpace(*update.CategoryID)
		if categoryID != "" {
			if _, ok := updatedData.Categories[categoryID]; !ok {
				return models.Video{}, notFound("category", categoryID)
			}
		}
		video.CategoryID = categoryID
	}

	video.UpdatedAt = nowUTC()
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData

	return cloneVideo(video), nil
}

// DeleteVideo removes the video, its comment tree, every playlist entry that
// referenced it and the media file on disk.
func (s *Storage) DeleteVideo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Videos[id]; !ok {
		return notFound("video", id)
	}

	mediaPaths := removeVideoLocked(&updatedData, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	s.removeMediaFiles(mediaPaths)

	return nil
}

// removeVideoLocked deletes the video and everything referencing it from the
// working dataset and reports the media paths that should be unlinked once
// the dataset persists. Callers hold the write lock.
func removeVideoLocked(data *dataset, id string) []string {
	video, ok := data.Videos[id]
	if !ok {
		return nil
	}

	now := nowUTC()

	for commentID, comment := range data.Comments {
		if comment.VideoID != id {
			continue
		}
		for _, replyID := range comment.Replies {
			delete(data.Replies, replyID)
		}
		delete(data.Comments, commentID)
	}

	if owner, ok := data.Users[video.OwnerID]; ok {
		if videos, changed := removeFromSet(owner.Videos, id); changed {
			owner.Videos = videos
			owner.UpdatedAt = now
			data.Users[owner.ID] = owner
		}
	}

	for playlistID, playlist := range data.Playlists {
		if videos, changed := removeFromSet(playlist.Videos, id); changed {
			playlist.Videos = videos
			playlist.UpdatedAt = now
			data.Playlists[playlistID] = playlist
		}
	}

	delete(data.Videos, id)

	return []string{video.VideoPath}
}

// LikeVideo toggles userID's like on the video. Liking removes any standing
// dislike; liking twice withdraws the like.
func (s *Storage) LikeVideo(videoID, userID string) (models.Video, error) {
	return s.reactToVideo(videoID, userID, true)
}

// DislikeVideo mirrors LikeVideo for the dislike set.
func (s *Storage) DislikeVideo(videoID, userID string) (models.Video, error) {
	return s.reactToVideo(videoID, userID, false)
}

func (s *Storage) reactToVideo(videoID, userID string, like bool) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[videoID]
	if !ok {
		return models.Video{}, notFound("video", videoID)
	}
	if _, ok := updatedData.Users[userID]; !ok {
		return models.Video{}, notFound("user", userID)
	}

	video.Likes, video.Dislikes = toggleReaction(video.Likes, video.Dislikes, userID, like)
	video.UpdatedAt = nowUTC()
	updatedData.Videos[videoID] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData

	return cloneVideo(video), nil
}

// toggleReaction enforces like/dislike mutual exclusivity on a pair of
// reaction sets. A repeated reaction withdraws itself; the opposite reaction
// is always cleared first.
func toggleReaction(likes, dislikes []string, userID string, like bool) ([]string, []string) {
	if like {
		dislikes, _ = removeFromSet(dislikes, userID)
		if updated, added := addToSet(likes, userID); added {
			likes = updated
		} else {
			likes, _ = removeFromSet(likes, userID)
		}
		return likes, dislikes
	}
	likes, _ = removeFromSet(likes, userID)
	if updated, added := addToSet(dislikes, userID); added {
		dislikes = updated
	} else {
		dislikes, _ = removeFromSet(dislikes, userID)
	}
	return likes, dislikes
}

// RecordView adds the viewer's public IP to the video's distinct view set.
func (s *Storage) RecordView(videoID, viewerIP string) (models.Video, error) {
	if strings.TrimSpace(viewerIP) == "" {
		return models.Video{}, errors.New("viewer IP is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[videoID]
	if !ok {
		return models.Video{}, notFound("video", videoID)
	}

	views, changed := addToSet(video.Views, viewerIP)
	if !changed {
		return cloneVideo(video), nil
	}

	updated := cloneVideo(video)
	updated.Views = views
	updated.UpdatedAt = nowUTC()
	s.data.Videos[videoID] = updated
	if err := s.persist(); err != nil {
		s.data.Videos[videoID] = video
		return models.Video{}, err
	}

	return cloneVideo(updated), nil
}

// RandomVideos returns up to limit videos in shuffled order.
func (s *Storage) RandomVideos(limit int) []models.Video {
	videos := s.ListVideos()
	rand.Shuffle(len(videos), func(i, j int) {
		videos[i], videos[j] = videos[j], videos[i]
	})
	if limit > 0 && limit < len(videos) {
		videos = videos[:limit]
	}
	return videos
}

// TrendingVideos returns up to limit videos ordered by distinct view count,
// most viewed first. Ties fall back to recency.
func (s *Storage) TrendingVideos(limit int) []models.Video {
	videos := s.ListVideos()
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].ViewCount() != videos[j].ViewCount() {
			return videos[i].ViewCount() > videos[j].ViewCount()
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	if limit > 0 && limit < len(videos) {
		videos = videos[:limit]
	}
	return videos
}

// VideosByTag returns all videos carrying the tag, matched case-insensitively.
func (s *Storage) VideosByTag(tag string) []models.Video {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	all := s.ListVideos()
	matched := make([]models.Video, 0, len(all))
	for _, video := range all {
		for _, candidate := range video.Tags {
			if strings.ToLower(candidate) == normalized {
				matched = append(matched, video)
				break
			}
		}
	}
	return matched
}

// VideosByCategory returns all videos filed under the category.
func (s *Storage) VideosByCategory(categoryID string) ([]models.Video, error) {
	s.mu.RLock()
	exists := false
	if _, ok := s.data.Categories[categoryID]; ok {
		exists = true
	}
	s.mu.RUnlock()
	if !exists {
		return nil, notFound("category", categoryID)
	}

	all := s.ListVideos()
	matched := make([]models.Video, 0, len(all))
	for _, video := range all {
		if video.CategoryID == categoryID {
			matched = append(matched, video)
		}
	}
	return matched, nil
}

// VideosByOwner returns all videos published by the user.
func (s *Storage) VideosByOwner(ownerID string) ([]models.Video, error) {
	s.mu.RLock()
	_, exists := s.data.Users[ownerID]
	s.mu.RUnlock()
	if !exists {
		return nil, notFound("user", ownerID)
	}

	all := s.ListVideos()
	matched := make([]models.Video, 0, len(all))
	for _, video := range all {
		if video.OwnerID == ownerID {
			matched = append(matched, video)
		}
	}
	return matched, nil
}

func normalizeTags(input []string) []string {
	tags := make([]string, 0, len(input))
	seen := make(map[string]struct{})
	for _, tag := range input {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, trimmed)
	}
	return tags
}
