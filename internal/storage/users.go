package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"clipriver/internal/models"
)

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	UserName  string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      models.Role
	Phone     string
	Age       int
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userName := strings.TrimSpace(params.UserName)
	if userName == "" {
		return models.User{}, errors.New("userName is required")
	}
	normalizedEmail := strings.TrimSpace(strings.ToLower(params.Email))
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	for _, user := range s.data.Users {
		if user.Email == normalizedEmail {
			return models.User{}, fmt.Errorf("email %s already in use: %w", params.Email, ErrConflict)
		}
		if strings.EqualFold(user.UserName, userName) {
			return models.User{}, fmt.Errorf("userName %s already in use: %w", userName, ErrConflict)
		}
	}

	role := params.Role
	if role == "" {
		role = models.RoleUser
	}

	id, err := s.generateID()
	if err != nil {
		return models.User{}, err
	}

	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := nowUTC()
	user := models.User{
		ID:                 id,
		UserName:           userName,
		FirstName:          strings.TrimSpace(params.FirstName),
		LastName:           strings.TrimSpace(params.LastName),
		Slug:               slugify(userName),
		Email:              normalizedEmail,
		PasswordHash:       passwordHash,
		Role:               role,
		Videos:             []string{},
		Subscribers:        []string{},
		SubscribedChannels: []string{},
		LoginIPs:           []string{},
		Phone:              strings.TrimSpace(params.Phone),
		Age:                params.Age,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) ListUsers() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, false
	}
	return cloneUser(user), true
}

// FindUserByEmail looks up a user by their normalized email address.
func (s *Storage) FindUserByEmail(email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	for _, user := range s.data.Users {
		if user.Email == normalizedEmail {
			return cloneUser(user), true
		}
	}
	return models.User{}, false
}

// AuthenticateUser verifies credentials and, on success, records the caller's
// public IP in the user's login history.
func (s *Storage) AuthenticateUser(email, password, loginIP string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	var user models.User
	found := false
	for _, candidate := range s.data.Users {
		if candidate.Email == normalizedEmail {
			user = candidate
			found = true
			break
		}
	}
	if !found {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if loginIP != "" {
		updated := cloneUser(user)
		ips, changed := addToSet(updated.LoginIPs, loginIP)
		if changed {
			updated.LoginIPs = ips
			updated.UpdatedAt = nowUTC()
			s.data.Users[updated.ID] = updated
			if err := s.persist(); err != nil {
				s.data.Users[user.ID] = user
				return models.User{}, err
			}
			return cloneUser(updated), nil
		}
	}

	return cloneUser(user), nil
}

// UserUpdate represents the fields that can be modified for an existing user.
type UserUpdate struct {
	UserName     *string
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	Age          *int
	Role         *models.Role
	ProfileImage *string
	CoverImage   *string
}

// UpdateUser mutates user metadata while enforcing uniqueness constraints.
// Changing the user name recomputes the slug.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, notFound("user", id)
	}

	if update.UserName != nil {
		name := strings.TrimSpace(*update.UserName)
		if name == "" {
			return models.User{}, errors.New("userName cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if strings.EqualFold(existing.UserName, name) {
				return models.User{}, fmt.Errorf("userName %s already in use: %w", name, ErrConflict)
			}
		}
		user.UserName = name
		user.Slug = slugify(name)
	}

	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if existing.Email == email {
				return models.User{}, fmt.Errorf("email %s already in use: %w", email, ErrConflict)
			}
		}
		user.Email = email
	}

	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Age != nil {
		user.Age = *update.Age
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.ProfileImage != nil {
		user.ProfileImage = strings.TrimSpace(*update.ProfileImage)
	}
	if update.CoverImage != nil {
		user.CoverImage = strings.TrimSpace(*update.CoverImage)
	}

	user.UpdatedAt = nowUTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return cloneUser(user), nil
}

// ChangePassword verifies the current password before installing a new hash
// and stamping PasswordChangedAt, which invalidates sessions issued earlier.
func (s *Storage) ChangePassword(id, currentPassword, newPassword string) (models.User, error) {
	if newPassword == "" {
		return models.User{}, errors.New("new password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, notFound("user", id)
	}
	if err := verifyPassword(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := nowUTC()
	user.PasswordHash = hashed
	user.PasswordChangedAt = &now
	user.UpdatedAt = now
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return cloneUser(user), nil
}

// SetUserPassword installs a new hash without checking the current password.
// Operator tooling only; request paths go through ChangePassword or
// ResetPassword instead.
func (s *Storage) SetUserPassword(id, newPassword string) (models.User, error) {
	if newPassword == "" {
		return models.User{}, errors.New("new password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, notFound("user", id)
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := nowUTC()
	user.PasswordHash = hashed
	user.PasswordChangedAt = &now
	user.UpdatedAt = now
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return cloneUser(user), nil
}

// Subscribe records viewerID as a subscriber of channelID and mirrors the
// relation on the viewer's subscribed channel list.
func (s *Storage) Subscribe(viewerID, channelID string) (models.User, error) {
	return s.updateSubscription(viewerID, channelID, true)
}

// Unsubscribe removes the bidirectional subscription relation.
func (s *Storage) Unsubscribe(viewerID, channelID string) (models.User, error) {
	return s.updateSubscription(viewerID, channelID, false)
}

func (s *Storage) updateSubscription(viewerID, channelID string, subscribe bool) (models.User, error) {
	if viewerID == channelID {
		return models.User{}, errors.New("cannot subscribe to yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	viewer, ok := updatedData.Users[viewerID]
	if !ok {
		return models.User{}, notFound("user", viewerID)
	}
	channel, ok := updatedData.Users[channelID]
	if !ok {
		return models.User{}, notFound("user", channelID)
	}

	var viewerChanged, channelChanged bool
	if subscribe {
		viewer.SubscribedChannels, viewerChanged = addToSet(viewer.SubscribedChannels, channelID)
		channel.Subscribers, channelChanged = addToSet(channel.Subscribers, viewerID)
	} else {
		viewer.SubscribedChannels, viewerChanged = removeFromSet(viewer.SubscribedChannels, channelID)
		channel.Subscribers, channelChanged = removeFromSet(channel.Subscribers, viewerID)
	}
	if !viewerChanged && !channelChanged {
		return cloneUser(viewer), nil
	}

	now := nowUTC()
	viewer.UpdatedAt = now
	channel.UpdatedAt = now
	updatedData.Users[viewerID] = viewer
	updatedData.Users[channelID] = channel
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return cloneUser(channel), nil
}

// BeginPasswordReset issues a six digit reset code for the account with the
// given email. Only the sha256 digest of the code is stored; the plain code
// is returned so the caller can deliver it by email, and must be discarded
// with ClearPasswordReset if delivery fails.
func (s *Storage) BeginPasswordReset(email string, ttl time.Duration) (models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	var user models.User
	found := false
	for _, candidate := range updatedData.Users {
		if candidate.Email == normalizedEmail {
			user = candidate
			found = true
			break
		}
	}
	if !found {
		return models.User{}, "", notFound("user", email)
	}

	code, err := generateResetCode()
	if err != nil {
		return models.User{}, "", err
	}

	now := nowUTC()
	expires := now.Add(ttl)
	user.PasswordResetCodeHash = hashResetCode(code)
	user.PasswordResetExpires = &expires
	user.PasswordResetVerified = false
	user.UpdatedAt = now
	updatedData.Users[user.ID] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, "", err
	}

	s.data = updatedData

	return cloneUser(user), code, nil
}

// ClearPasswordReset rolls back reset state, e.g. when the code email could
// not be sent.
func (s *Storage) ClearPasswordReset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return notFound("user", id)
	}

	user.PasswordResetCodeHash = ""
	user.PasswordResetExpires = nil
	user.PasswordResetVerified = false
	user.UpdatedAt = nowUTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// VerifyResetCode checks a candidate code against the stored digest and
// expiry and marks the reset as verified on success.
func (s *Storage) VerifyResetCode(email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	var user models.User
	found := false
	for _, candidate := range updatedData.Users {
		if candidate.Email == normalizedEmail {
			user = candidate
			found = true
			break
		}
	}
	if !found {
		return ErrResetCodeInvalid
	}
	if user.PasswordResetCodeHash == "" || user.PasswordResetExpires == nil {
		return ErrResetCodeInvalid
	}
	if nowUTC().After(*user.PasswordResetExpires) {
		return ErrResetCodeInvalid
	}
	if hashResetCode(code) != user.PasswordResetCodeHash {
		return ErrResetCodeInvalid
	}

	user.PasswordResetVerified = true
	user.UpdatedAt = nowUTC()
	updatedData.Users[user.ID] = user
	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// ResetPassword installs a new password for an account whose reset code has
// been verified, clearing reset state and stamping PasswordChangedAt.
func (s *Storage) ResetPassword(email, newPassword string) (models.User, error) {
	if newPassword == "" {
		return models.User{}, errors.New("new password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	var user models.User
	found := false
	for _, candidate := range updatedData.Users {
		if candidate.Email == normalizedEmail {
			user = candidate
			found = true
			break
		}
	}
	if !found {
		return models.User{}, notFound("user", email)
	}
	if !user.PasswordResetVerified {
		return models.User{}, ErrResetCodeInvalid
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := nowUTC()
	user.PasswordHash = hashed
	user.PasswordChangedAt = &now
	user.PasswordResetCodeHash = ""
	user.PasswordResetExpires = nil
	user.PasswordResetVerified = false
	user.UpdatedAt = now
	updatedData.Users[user.ID] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return cloneUser(user), nil
}

// DeleteUser removes the user together with everything that hangs off the
// account: owned videos (and their comment trees and media files), the
// user's own comments and replies, playlists, subscription links and every
// reaction or view the user left elsewhere.
func (s *Storage) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Users[id]; !ok {
		return notFound("user", id)
	}

	var mediaPaths []string
	for videoID, video := range updatedData.Videos {
		if video.OwnerID == id {
			mediaPaths = append(mediaPaths, removeVideoLocked(&updatedData, videoID)...)
		}
	}

	// Comments and replies the user authored on surviving videos.
	for commentID, comment := range updatedData.Comments {
		if comment.UserID == id {
			removeCommentLocked(&updatedData, commentID)
		}
	}
	for replyID, reply := range updatedData.Replies {
		if reply.UserID == id {
			removeReplyLocked(&updatedData, replyID)
		}
	}

	for playlistID, playlist := range updatedData.Playlists {
		if playlist.OwnerID == id {
			delete(updatedData.Playlists, playlistID)
		}
	}

	now := nowUTC()
	for otherID, other := range updatedData.Users {
		if otherID == id {
			continue
		}
		changed := false
		if subs, ok := removeFromSet(other.Subscribers, id); ok {
			other.Subscribers = subs
			changed = true
		}
		if channels, ok := removeFromSet(other.SubscribedChannels, id); ok {
			other.SubscribedChannels = channels
			changed = true
		}
		if changed {
			other.UpdatedAt = now
			updatedData.Users[otherID] = other
		}
	}

	for videoID, video := range updatedData.Videos {
		changed := false
		if likes, ok := removeFromSet(video.Likes, id); ok {
			video.Likes = likes
			changed = true
		}
		if dislikes, ok := removeFromSet(video.Dislikes, id); ok {
			video.Dislikes = dislikes
			changed = true
		}
		if changed {
			video.UpdatedAt = now
			updatedData.Videos[videoID] = video
		}
	}
	for commentID, comment := range updatedData.Comments {
		changed := false
		if likes, ok := removeFromSet(comment.Likes, id); ok {
			comment.Likes = likes
			changed = true
		}
		if dislikes, ok := removeFromSet(comment.Dislikes, id); ok {
			comment.Dislikes = dislikes
			changed = true
		}
		if changed {
			comment.UpdatedAt = now
			updatedData.Comments[commentID] = comment
		}
	}
	for replyID, reply := range updatedData.Replies {
		changed := false
		if likes, ok := removeFromSet(reply.Likes, id); ok {
			reply.Likes = likes
			changed = true
		}
		if dislikes, ok := removeFromSet(reply.Dislikes, id); ok {
			reply.Dislikes = dislikes
			changed = true
		}
		if changed {
			reply.UpdatedAt = now
			updatedData.Replies[replyID] = reply
		}
	}

	delete(updatedData.Users, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	s.removeMediaFiles(mediaPaths)

	return nil
}

func (s *Storage) removeMediaFiles(paths []string) {
	if s.media == nil {
		return
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		_ = s.media.Remove(path)
	}
}
