package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/storage"
)

// UploadedFile describes a stored upload and its signed download token.
type UploadedFile struct {
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// allowed upload extensions for course materials.
var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".zip":  "application/zip",
}

// UploadService stores course-material files on local disk and hands out
// HMAC-signed, expiring download tokens instead of raw filesystem paths.
type UploadService struct {
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	maxSize int64
	logger  *zap.Logger
}

// NewUploadService constructs an UploadService instance.
func NewUploadService(store *storage.LocalStorage, signer *storage.SignedURLSigner, maxSize int64, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &UploadService{store: store, signer: signer, maxSize: maxSize, logger: logger}
}

// Store saves an uploaded stream. Students may not upload.
func (s *UploadService) Store(_ context.Context, p models.Principal, filename string, size int64, r io.Reader) (*UploadedFile, error) {
	if p.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may upload files")
	}
	if size > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxSize))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not allowed", ext))
	}

	fileID := uuid.NewString()
	relPath := filepath.Join(time.Now().UTC().Format("2006/01"), fileID+ext)
	if _, err := s.store.SaveStream(relPath, io.LimitReader(r, s.maxSize)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	token, expiresAt, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	return &UploadedFile{
		FileID:      fileID,
		Filename:    filepath.Base(filename),
		Size:        size,
		ContentType: contentType,
		DownloadURL: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Open validates a download token and returns the file handle plus its
// content type. The caller closes the file.
func (s *UploadService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	contentType := allowedExtensions[strings.ToLower(filepath.Ext(relPath))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}

// Refresh re-signs a token for a file that still exists, extending its expiry.
func (s *UploadService) Refresh(token string) (*UploadedFile, error) {
	fileID, relPath, _, err := s.signer.Parse(token, true)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid")
	}
	next, expiresAt, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &UploadedFile{
		FileID:      fileID,
		Filename:    filepath.Base(relPath),
		DownloadURL: next,
		ExpiresAt:   expiresAt,
	}, nil
}

// CleanupLoop periodically removes stored files older than ttl. Blocks until
// ctx is cancelled; run it in its own goroutine.
func (s *UploadService) CleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.store.CleanupOlderThan(ttl)
			if err != nil {
				s.logger.Warn("upload cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Info("stale uploads removed", zap.Int("count", len(deleted)))
			}
		}
	}
}
