package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores homework artifacts in Cloudinary. Keys returned by Save are
// Cloudinary public IDs; they are opaque to the rest of the system.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary-backed storage service.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Save uploads the file and returns its storage key.
func (s *Service) Save(ctx context.Context, name string, reader io.Reader) (string, error) {
	folder := strings.Trim(s.folder, "/")
	publicID := buildPublicID(name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().Str("key", result.PublicID).Msg("file uploaded to storage")

	return result.PublicID, nil
}

// Delete removes the stored asset. A missing key is logged and treated as a
// no-op rather than a failure.
func (s *Service) Delete(ctx context.Context, key string) error {
	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: key})
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", key, err)
	}

	if result.Result == "not found" {
		s.logger.Warn().Str("key", key).Msg("delete of missing storage key ignored")
		return nil
	}

	s.logger.Info().Str("key", key).Msg("file deleted from storage")
	return nil
}

// SignedURL returns a time-bounded access reference for the stored asset.
// Callers must re-request after expiry.
func (s *Service) SignedURL(key string, ttl time.Duration) (string, error) {
	asset, err := s.client.Image(key)
	if err != nil {
		return "", fmt.Errorf("failed to build asset reference: %w", err)
	}

	asset.Config.URL.SignURL = true
	asset.Config.AuthToken.Duration = int64(ttl.Seconds())

	url, err := asset.String()
	if err != nil {
		return "", fmt.Errorf("failed to sign asset url: %w", err)
	}

	return url, nil
}

func buildPublicID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	return fmt.Sprintf("%s-%d", base, time.Now().Unix())
}
