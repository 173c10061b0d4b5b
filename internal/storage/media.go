package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidMediaName is returned when a requested file name would escape the
// media directory.
var ErrInvalidMediaName = errors.New("invalid media file name")

// MediaStore keeps uploaded files on local disk under a single root
// directory, one subdirectory per kind of upload.
type MediaStore struct {
	root string
}

func NewMediaStore(root string) (*MediaStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &MediaStore{root: root}, nil
}

// Root returns the media root directory.
func (m *MediaStore) Root() string {
	return m.root
}

// Save streams an upload into folder under the media root, prefixing the
// sanitized original name with random hex so uploads never collide. It
// returns the path relative to the root.
func (m *MediaStore) Save(folder, originalName string, src io.Reader) (string, error) {
	cleanFolder, err := sanitizeMediaName(folder)
	if err != nil {
		return "", err
	}
	cleanName, err := sanitizeMediaName(originalName)
	if err != nil {
		return "", err
	}

	prefix := make([]byte, 8)
	if _, err := rand.Read(prefix); err != nil {
		return "", fmt.Errorf("generate upload name: %w", err)
	}
	fileName := hex.EncodeToString(prefix) + "-" + cleanName

	dir := filepath.Join(m.root, cleanFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	fullPath := filepath.Join(dir, fileName)
	dst, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(cleanFolder, fileName)), nil
}

// Open resolves a stored path and returns the open file plus its size. Paths
// are re-sanitized per element so stored values can never reach outside the
// root.
func (m *MediaStore) Open(storedPath string) (*os.File, int64, error) {
	fullPath, err := m.resolve(storedPath)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, 0, os.ErrNotExist
	}
	return file, info.Size(), nil
}

// Remove deletes a stored file. A missing file is not an error.
func (m *MediaStore) Remove(storedPath string) error {
	fullPath, err := m.resolve(storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func (m *MediaStore) resolve(storedPath string) (string, error) {
	parts := strings.Split(filepath.ToSlash(storedPath), "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean, err := sanitizeMediaName(part)
		if err != nil {
			return "", err
		}
		cleaned = append(cleaned, clean)
	}
	if len(cleaned) == 0 {
		return "", ErrInvalidMediaName
	}
	return filepath.Join(append([]string{m.root}, cleaned...)...), nil
}

// sanitizeMediaName accepts a single path element: no separators, no
// dot-dot, nothing hidden.
func sanitizeMediaName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidMediaName
	}
	if strings.ContainsAny(name, "/\\") {
		return "", ErrInvalidMediaName
	}
	if filepath.Base(name) != name {
		return "", ErrInvalidMediaName
	}
	if strings.HasPrefix(name, ".") {
		return "", ErrInvalidMediaName
	}
	return name, nil
}
