package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"clipriver/internal/models"
)

// CreateCategory registers a new category. Names are unique
// case-insensitively.
func (s *Storage) CreateCategory(name, description, userID string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if userID != "" {
		if _, ok := updatedData.Users[userID]; !ok {
			return models.Category{}, notFound("user", userID)
		}
	}
	for _, existing := range updatedData.Categories {
		if strings.EqualFold(existing.Name, name) {
			return models.Category{}, fmt.Errorf("category %s already exists: %w", name, ErrConflict)
		}
	}

	id, err := s.generateID()
	if err != nil {
		return models.Category{}, err
	}

	now := nowUTC()
	category := models.Category{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	updatedData.Categories[id] = category
	if err := s.persistDataset(updatedData); err != nil {
		return models.Category{}, err
	}

	s.data = updatedData

	return category, nil
}

func (s *Storage) ListCategories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]models.Category, 0, len(s.data.Categories))
	for _, category := range s.data.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].CreatedAt.Before(categories[j].CreatedAt)
	})
	return categories
}

func (s *Storage) GetCategory(id string) (models.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.data.Categories[id]
	return category, ok
}

// CategoryUpdate represents the fields that can be modified on a category.
type CategoryUpdate struct {
	Name        *string
	Description *string
}

func (s *Storage) UpdateCategory(id string, update CategoryUpdate) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	category, ok := updatedData.Categories[id]
	if !ok {
		return models.Category{}, notFound("category", id)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Category{}, errors.New("name cannot be empty")
		}
		for existingID, existing := range updatedData.Categories {
			if existingID == id {
				continue
			}
			if strings.EqualFold(existing.Name, name) {
				return models.Category{}, fmt.Errorf("category %s already exists: %w", name, ErrConflict)
			}
		}
		category.Name = name
	}
	if update.Description != nil {
		category.Description = strings.TrimSpace(*update.Description)
	}

	category.UpdatedAt = nowUTC()
	updatedData.Categories[id] = category
	if err := s.persistDataset(updatedData); err != nil {
		return models.Category{}, err
	}

	s.data = updatedData

	return category, nil
}

// DeleteCategory removes the category and clears the category reference on
// any videos filed under it.
func (s *Storage) DeleteCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Categories[id]; !ok {
		return notFound("category", id)
	}

	now := nowUTC()
	for videoID, video := range updatedData.Videos {
		if video.CategoryID == id {
			video.CategoryID = ""
			video.UpdatedAt = now
			updatedData.Videos[videoID] = video
		}
	}

	delete(updatedData.Categories, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}
