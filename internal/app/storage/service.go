/*
Package storage issues presigned S3 URLs for user avatars.

Clients upload avatar images straight to the bucket with a presigned PUT URL and then point their
profile at the resulting object key. The server never proxies image bytes.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"quickchat/internal/app/user"
	"quickchat/internal/pkg/errs"
)

const (
	// MaxAvatarSize is the largest avatar upload accepted, in bytes.
	MaxAvatarSize = 2 * 1024 * 1024

	// PresignedURLDuration is how long a presigned upload or download URL stays valid.
	PresignedURLDuration = 15 * time.Minute
)

// ErrObjectNotFound is returned by ObjectInfo when the key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// allowedAvatarTypes maps accepted MIME types to the file extensions allowed with them.
var allowedAvatarTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
}

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ObjectInfo is the subset of object metadata the server checks.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageService defines the public interface for the avatar storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, duration time.Duration) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a file.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error

	// ObjectInfo returns the object's metadata, or ErrObjectNotFound.
	ObjectInfo(ctx context.Context, key string) (ObjectInfo, error)
}

// NewStorageService is the factory function for StorageService.
// Only S3-compatible backends are supported.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}

// ValidateAvatarUpload checks a requested upload before a URL is presigned for it.
func ValidateAvatarUpload(fileName, mimeType string, fileSize int64) *errs.CustomError {
	if fileSize <= 0 || fileSize > MaxAvatarSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	exts, ok := allowedAvatarTypes[strings.ToLower(mimeType)]
	if !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range exts {
		if ext == allowed {
			return nil
		}
	}
	return errs.NewError(errs.ErrFileTypeInvalid)
}

// NewAvatarKey returns a fresh object key owned by userID, keeping the file's extension.
func NewAvatarKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s%s/%s%s", user.AvatarKeyPrefix, userID, uuid.NewString(), ext)
}

// IsUploadedAvatar reports whether key names an uploaded object rather than a built-in preset.
func IsUploadedAvatar(key string) bool {
	return strings.HasPrefix(key, user.AvatarKeyPrefix)
}
