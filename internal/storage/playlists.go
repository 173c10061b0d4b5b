package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"clipriver/internal/models"
)

// CreatePlaylist creates an empty playlist owned by ownerID. Names are
// unique across the collection.
func (s *Storage) CreatePlaylist(ownerID, name string) (models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Playlist{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Users[ownerID]; !ok {
		return models.Playlist{}, notFound("user", ownerID)
	}
	for _, existing := range updatedData.Playlists {
		if existing.Name == name {
			return models.Playlist{}, fmt.Errorf("playlist %s already exists: %w", name, ErrConflict)
		}
	}

	id, err := s.generateID()
	if err != nil {
		return models.Playlist{}, err
	}

	now := nowUTC()
	playlist := models.Playlist{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Videos:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	updatedData.Playlists[id] = playlist
	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}

	s.data = updatedData

	return playlist, nil
}

func (s *Storage) GetPlaylist(id string) (models.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	playlist, ok := s.data.Playlists[id]
	if !ok {
		return models.Playlist{}, false
	}
	cloned := playlist
	cloned.Videos = append([]string(nil), playlist.Videos...)
	return cloned, true
}

// PlaylistsByOwner returns the user's playlists in creation order.
func (s *Storage) PlaylistsByOwner(ownerID string) ([]models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return nil, notFound("user", ownerID)
	}

	playlists := make([]models.Playlist, 0)
	for _, playlist := range s.data.Playlists {
		if playlist.OwnerID != ownerID {
			continue
		}
		cloned := playlist
		cloned.Videos = append([]string(nil), playlist.Videos...)
		playlists = append(playlists, cloned)
	}
	sort.Slice(playlists, func(i, j int) bool {
		return playlists[i].CreatedAt.Before(playlists[j].CreatedAt)
	})
	return playlists, nil
}

// RenamePlaylist updates the playlist name.
func (s *Storage) RenamePlaylist(id, name string) (models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Playlist{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	playlist, ok := updatedData.Playlists[id]
	if !ok {
		return models.Playlist{}, notFound("playlist", id)
	}
	for otherID, existing := range updatedData.Playlists {
		if otherID != id && existing.Name == name {
			return models.Playlist{}, fmt.Errorf("playlist %s already exists: %w", name, ErrConflict)
		}
	}

	playlist.Name = name
	playlist.UpdatedAt = nowUTC()
	updatedData.Playlists[id] = playlist
	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}

	s.data = updatedData

	return playlist, nil
}

// AddToPlaylist appends a video to the playlist unless it is already present.
func (s *Storage) AddToPlaylist(playlistID, videoID string) (models.Playlist, error) {
	return s.updatePlaylistMembership(playlistID, videoID, true)
}

// RemoveFromPlaylist pulls a video out of the playlist.
func (s *Storage) RemoveFromPlaylist(playlistID, videoID string) (models.Playlist, error) {
	return s.updatePlaylistMembership(playlistID, videoID, false)
}

func (s *Storage) updatePlaylistMembership(playlistID, videoID string, add bool) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	playlist, ok := updatedData.Playlists[playlistID]
	if !ok {
		return models.Playlist{}, notFound("playlist", playlistID)
	}
	if add {
		if _, ok := updatedData.Videos[videoID]; !ok {
			return models.Playlist{}, notFound("video", videoID)
		}
	}

	var changed bool
	if add {
		playlist.Videos, changed = addToSet(playlist.Videos, videoID)
	} else {
		playlist.Videos, changed = removeFromSet(playlist.Videos, videoID)
	}
	if !changed {
		return playlist, nil
	}

	playlist.UpdatedAt = nowUTC()
	updatedData.Playlists[playlistID] = playlist
	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}

	s.data = updatedData

	return playlist, nil
}

// DeletePlaylist removes the playlist. Videos themselves are untouched.
func (s *Storage) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Playlists[id]; !ok {
		return notFound("playlist", id)
	}

	delete(updatedData.Playlists, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}
