package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carshine/internal/models"

	"github.com/rs/zerolog"
)

// BucketConfig is stored next to the bucket directory so EnsureBucket can
// detect drift between runs.
type BucketConfig struct {
	Name          string   `json:"name"`
	Public        bool     `json:"public"`
	FileSizeLimit int64    `json:"file_size_limit"`
	AllowedTypes  []string `json:"allowed_types"`
}

// LocalStore keeps uploaded files on disk, one directory per bucket, and
// serves them through the HTTP file handler.
type LocalStore struct {
	root          string
	publicBaseURL string
	logger        *zerolog.Logger
}

func NewLocalStore(root, publicBaseURL string, logger *zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Calling it for
// an existing bucket is a no-op that refreshes the stored config.
func (s *LocalStore) EnsureBucket(cfg BucketConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("bucket name is required")
	}
	if cfg.FileSizeLimit <= 0 {
		cfg.FileSizeLimit = models.MaxPhotoSize
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = []string{"image/*"}
	}

	dir := filepath.Join(s.root, cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", cfg.Name, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode bucket config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, cfg.Name+".bucket.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write bucket config: %w", err)
	}

	s.logger.Info().Str("bucket", cfg.Name).Bool("public", cfg.Public).Msg("bucket ready")
	return nil
}

func (s *LocalStore) bucketConfig(bucket string) (BucketConfig, error) {
	data, err := os.ReadFile(filepath.Join(s.root, bucket+".bucket.json"))
	if err != nil {
		return BucketConfig{}, fmt.Errorf("bucket %s not found: %w", bucket, err)
	}
	var cfg BucketConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return BucketConfig{}, fmt.Errorf("failed to decode bucket config: %w", err)
	}
	return cfg, nil
}

// SaveProgressPhoto stores a progress image for a booking and returns its
// public URL. Size and content type are checked against the bucket config.
func (s *LocalStore) SaveProgressPhoto(bucket, bookingID, filename, contentType string, size int64, r io.Reader) (string, error) {
	cfg, err := s.bucketConfig(bucket)
	if err != nil {
		return "", err
	}

	if size <= 0 || size > cfg.FileSizeLimit {
		return "", fmt.Errorf("file size %d exceeds limit %d", size, cfg.FileSizeLimit)
	}
	if !typeAllowed(cfg.AllowedTypes, contentType) {
		return "", fmt.Errorf("content type %s is not allowed", contentType)
	}

	name := fmt.Sprintf("progress_%s_%d%s", bookingID, time.Now().Unix(), fileExt(filename, contentType))
	path := filepath.Join(s.root, bucket, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	// Limit the copy too: the declared size is client input.
	written, err := io.Copy(f, io.LimitReader(r, cfg.FileSizeLimit+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if written > cfg.FileSizeLimit {
		os.Remove(path)
		return "", fmt.Errorf("file size %d exceeds limit %d", written, cfg.FileSizeLimit)
	}

	return s.PublicURL(bucket, name), nil
}

// PublicURL renders the URL the HTTP server exposes the file under.
func (s *LocalStore) PublicURL(bucket, name string) string {
	return fmt.Sprintf("%s/files/%s/%s", s.publicBaseURL, bucket, name)
}

// Dir returns the directory served for a bucket.
func (s *LocalStore) Dir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

// Root returns the base directory holding all buckets.
func (s *LocalStore) Root() string {
	return s.root
}

func typeAllowed(allowed []string, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, a := range allowed {
		if a == ct {
			return true
		}
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(ct, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}

func fileExt(filename, contentType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
