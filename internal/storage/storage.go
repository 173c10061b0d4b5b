package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipriver/internal/models"
	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials is returned for any email/password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrResetCodeInvalid covers both wrong and expired password reset codes.
	ErrResetCodeInvalid = errors.New("reset code invalid or expired")
)

type dataset struct {
	Users      map[string]models.User     `json:"users"`
	Videos     map[string]models.Video    `json:"videos"`
	Comments   map[string]models.Comment  `json:"comments"`
	Replies    map[string]models.Reply    `json:"replies"`
	Playlists  map[string]models.Playlist `json:"playlists"`
	Categories map[string]models.Category `json:"categories"`
}

// backend abstracts where datasets are durably kept: a JSON file on disk or
// Postgres JSONB tables.
type backend interface {
	loadDataset() (dataset, error)
	persistDataset(dataset) error
	ping(ctx context.Context) error
	close(ctx context.Context) error
}

type Storage struct {
	mu      sync.RWMutex
	backend backend
	data    dataset
	media   *MediaStore
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// Option mutates storage configuration.
type Option func(*Storage)

// WithMediaStore installs the media store used to remove files when their
// owning documents are deleted.
func WithMediaStore(media *MediaStore) Option {
	return func(s *Storage) {
		s.media = media
	}
}

func newDataset() dataset {
	return dataset{
		Users:      make(map[string]models.User),
		Videos:     make(map[string]models.Video),
		Comments:   make(map[string]models.Comment),
		Replies:    make(map[string]models.Reply),
		Playlists:  make(map[string]models.Playlist),
		Categories: make(map[string]models.Category),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
	if s.data.Comments == nil {
		s.data.Comments = make(map[string]models.Comment)
	}
	if s.data.Replies == nil {
		s.data.Replies = make(map[string]models.Reply)
	}
	if s.data.Playlists == nil {
		s.data.Playlists = make(map[string]models.Playlist)
	}
	if s.data.Categories == nil {
		s.data.Categories = make(map[string]models.Category)
	}
}

// NewStorage opens a JSON-file backed store at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	return newStorage(&fileBackend{filePath: path}, opts...)
}

func newStorage(b backend, opts ...Option) (*Storage, error) {
	store := &Storage{backend: b}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.loadDataset()
	if err != nil {
		return err
	}
	s.data = data
	s.ensureDatasetInitializedLocked()

	return nil
}

// Ping verifies the persistence backend is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.ping(ctx)
}

// Close releases backend resources. The file backend is a no-op; the
// Postgres backend closes its pool.
func (s *Storage) Close(ctx context.Context) error {
	return s.backend.close(ctx)
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}
	return s.backend.persistDataset(data)
}

// fileBackend keeps the dataset in a single JSON file, replaced atomically
// on every write.
type fileBackend struct {
	filePath string
}

func (b *fileBackend) loadDataset() (dataset, error) {
	if err := os.MkdirAll(filepath.Dir(b.filePath), 0o755); err != nil {
		return dataset{}, fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(b.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return newDataset(), nil
	} else if err != nil {
		return dataset{}, fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var data dataset
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return newDataset(), nil
		}
		return dataset{}, fmt.Errorf("decode store file: %w", err)
	}
	return data, nil
}

func (b *fileBackend) persistDataset(data dataset) error {
	dir := filepath.Dir(b.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, b.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (b *fileBackend) ping(ctx context.Context) error {
	dir := filepath.Dir(b.filePath)
	probe, err := os.CreateTemp(dir, "ping-*")
	if err != nil {
		return fmt.Errorf("store dir unavailable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func (b *fileBackend) close(context.Context) error {
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := dataset{}

	if src.Users != nil {
		clone.Users = make(map[string]models.User, len(src.Users))
		for id, user := range src.Users {
			clone.Users[id] = cloneUser(user)
		}
	}

	if src.Videos != nil {
		clone.Videos = make(map[string]models.Video, len(src.Videos))
		for id, video := range src.Videos {
			clone.Videos[id] = cloneVideo(video)
		}
	}

	if src.Comments != nil {
		clone.Comments = make(map[string]models.Comment, len(src.Comments))
		for id, comment := range src.Comments {
			cloned := comment
			cloned.Likes = append([]string(nil), comment.Likes...)
			cloned.Dislikes = append([]string(nil), comment.Dislikes...)
			cloned.Replies = append([]string(nil), comment.Replies...)
			clone.Comments[id] = cloned
		}
	}

	if src.Replies != nil {
		clone.Replies = make(map[string]models.Reply, len(src.Replies))
		for id, reply := range src.Replies {
			cloned := reply
			cloned.Likes = append([]string(nil), reply.Likes...)
			cloned.Dislikes = append([]string(nil), reply.Dislikes...)
			clone.Replies[id] = cloned
		}
	}

	if src.Playlists != nil {
		clone.Playlists = make(map[string]models.Playlist, len(src.Playlists))
		for id, playlist := range src.Playlists {
			cloned := playlist
			cloned.Videos = append([]string(nil), playlist.Videos...)
			clone.Playlists[id] = cloned
		}
	}

	if src.Categories != nil {
		clone.Categories = make(map[string]models.Category, len(src.Categories))
		for id, category := range src.Categories {
			clone.Categories[id] = category
		}
	}

	return clone
}

func cloneUser(user models.User) models.User {
	cloned := user
	cloned.Videos = append([]string(nil), user.Videos...)
	cloned.Subscribers = append([]string(nil), user.Subscribers...)
	cloned.SubscribedChannels = append([]string(nil), user.SubscribedChannels...)
	cloned.LoginIPs = append([]string(nil), user.LoginIPs...)
	if user.PasswordChangedAt != nil {
		changed := *user.PasswordChangedAt
		cloned.PasswordChangedAt = &changed
	}
	if user.PasswordResetExpires != nil {
		expires := *user.PasswordResetExpires
		cloned.PasswordResetExpires = &expires
	}
	return cloned
}

func cloneVideo(video models.Video) models.Video {
	cloned := video
	cloned.Tags = append([]string(nil), video.Tags...)
	cloned.Likes = append([]string(nil), video.Likes...)
	cloned.Dislikes = append([]string(nil), video.Dislikes...)
	cloned.Views = append([]string(nil), video.Views...)
	cloned.Comments = append([]string(nil), video.Comments...)
	return cloned
}

func (s *Storage) generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// addToSet appends value only when it is not already present, mirroring the
// semantics the document arrays rely on for likes, views and back references.
func addToSet(set []string, value string) ([]string, bool) {
	for _, existing := range set {
		if existing == value {
			return set, false
		}
	}
	return append(set, value), true
}

// removeFromSet filters value out of set, reporting whether anything changed.
func removeFromSet(set []string, value string) ([]string, bool) {
	filtered := make([]string, 0, len(set))
	removed := false
	for _, existing := range set {
		if existing == value {
			removed = true
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return set, false
	}
	return filtered, true
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// hashResetCode digests a reset code for at-rest storage. Codes are short
// lived so a plain sha256 digest is sufficient.
func hashResetCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateResetCode returns a six digit numeric code drawn from crypto/rand.
func generateResetCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	n := uint32(bytes[0])<<24 | uint32(bytes[1])<<16 | uint32(bytes[2])<<8 | uint32(bytes[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}

// slugify lowercases the name and replaces whitespace runs with hyphens.
func slugify(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "-")
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
