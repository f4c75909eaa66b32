// Package media stores and serves user avatars. It speaks the S3 API via
// minio-go so the same code works against Garage, MinIO, AWS S3, or any
// other S3-compatible backend, and computes a blurhash placeholder for
// each upload so clients can render a preview before the full image loads.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"strings"

	"github.com/buckket/go-blurhash"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

var contentTypeExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Avatar is an uploaded avatar's identity and computed metadata.
type Avatar struct {
	Hash        string
	Ext         string
	ContentType string
	Blurhash    string
}

// Store puts and fetches avatars in an S3-compatible bucket, preserving the
// logical {user-id}/{sha256}.{ext} layout as the object key.
type Store struct {
	client    *minio.Client
	bucket    string
	maxUpload int64
	logger    *slog.Logger
}

// New constructs a Store and ensures its bucket exists.
func New(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("media: creating s3 client: %w", err)
	}

	maxUpload, err := cfg.MaxUploadSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("media: checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("media: creating bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("created avatar bucket", slog.String("bucket", cfg.Bucket))
	}

	return &Store{client: client, bucket: cfg.Bucket, maxUpload: maxUpload, logger: logger}, nil
}

// UploadAvatar stores data as userID's avatar, keyed by its content sha256,
// and returns the hash, extension, and a blurhash placeholder. Any prior
// avatar object for this user is left in place; callers swap
// models.User.AvatarHash to point at the new one and may call DeleteAvatar
// for the old one.
func (s *Store) UploadAvatar(ctx context.Context, userID models.ULID, contentType string, data []byte) (Avatar, error) {
	if int64(len(data)) > s.maxUpload {
		return Avatar{}, corerr.BadRequest("avatar exceeds the configured upload size limit")
	}
	ext, ok := contentTypeExt[contentType]
	if !ok {
		return Avatar{}, corerr.BadRequest("unsupported avatar content type: " + contentType)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := objectKey(userID, hash, ext)

	bh, err := computeBlurhash(data)
	if err != nil {
		s.logger.Warn("blurhash computation failed, continuing without it", slog.String("error", err.Error()))
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Avatar{}, corerr.Internal(fmt.Errorf("uploading avatar: %w", err))
	}

	return Avatar{Hash: hash, Ext: ext, ContentType: contentType, Blurhash: bh}, nil
}

// FetchAvatar resolves a hash prefix within a user's avatar directory and
// streams the matching object. Callers must Close the returned reader.
func (s *Store) FetchAvatar(ctx context.Context, userID models.ULID, hashPrefix string) (io.ReadCloser, string, error) {
	prefix := fmt.Sprintf("avatars/%s/%s", userID.String(), hashPrefix)

	var matchKey string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, "", corerr.Internal(fmt.Errorf("listing avatar objects: %w", obj.Err))
		}
		matchKey = obj.Key
		break
	}
	if matchKey == "" {
		return nil, "", corerr.NotFound("avatar not found")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, matchKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", corerr.Internal(fmt.Errorf("fetching avatar: %w", err))
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", corerr.NotFound("avatar not found")
	}
	return obj, info.ContentType, nil
}

// DeleteAvatar removes a user's prior avatar object, keeping storage from
// accumulating every avatar a user has ever uploaded.
func (s *Store) DeleteAvatar(ctx context.Context, userID models.ULID, hash, ext string) error {
	key := objectKey(userID, hash, ext)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return corerr.Internal(fmt.Errorf("deleting avatar: %w", err))
	}
	return nil
}

func objectKey(userID models.ULID, hash, ext string) string {
	return fmt.Sprintf("avatars/%s/%s.%s", userID.String(), hash, ext)
}

func computeBlurhash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return blurhash.Encode(4, 3, img)
}

// HealthCheck verifies the configured bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("media: checking bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("media: bucket %q does not exist", s.bucket)
	}
	return nil
}

// IsSupportedContentType reports whether ct is an avatar format this store
// accepts, for early validation before reading the upload body.
func IsSupportedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	_, ok := contentTypeExt[ct]
	return ok
}
