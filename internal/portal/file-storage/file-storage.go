// Пакет предоставляет интерфейс и реализации файлового хранилища для изображений вики:
// Minio (S3), Supabase Storage и локальный каталог для разработки и тестов.
//
// Основные возможности:
//   - Единый метод Upload, возвращающий публичную ссылку на файл.
//   - Повтор выгрузки в Minio и Supabase при временных ошибках.
//   - Уникальные имена файлов (время в миллисекундах и случайный суффикс).
//   - Уменьшение слишком широких изображений перед выгрузкой.
package filestorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/comunidadeds/portal/internal/portal/config"
)

const (
	UploadTries = 5
)

var uploadRetryDelay = time.Second * 2

// ErrEmptyPath возвращается при выгрузке без имени объекта.
var ErrEmptyPath = errors.New("empty object path")

type FileStorage interface {
	// Upload сохраняет содержимое r под именем path в bucket и возвращает публичную ссылку.
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error)
}

// New создает хранилище по драйверу из конфигурации.
func New(cfg *config.Config) (FileStorage, error) {
	switch cfg.StorageDriver {
	case config.StorageMinio:
		return NewMinioStorage(cfg.AWSEndpoint, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.StorageUseSSL, cfg.StorageBucket)
	case config.StorageSupabase:
		return NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	case config.StorageLocal:
		return NewLocalStorage(cfg.LocalStoragePath, "/uploads")
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// UniqueName возвращает имя вида <unix-ms>-<8 случайных символов><ext>.
func UniqueName(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.Must(uuid.NewV4()).String()[:8], ext)
}

// objectPath чистит путь объекта от ведущих слешей и переходов вверх.
func objectPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return "", ErrEmptyPath
	}
	return p, nil
}

// sleepCtx ждет d или отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type LocalStorage struct {
	rootDir string
	baseURL string
}

func NewLocalStorage(rootPath, baseURL string) (FileStorage, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, err
	}
	return &LocalStorage{rootPath, strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) (string, error) {
	obj, err := objectPath(path.Join(bucket, name))
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := filepath.Join(s.rootDir, filepath.FromSlash(obj))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return s.baseURL + "/" + obj, nil
}

type MinioStorage struct {
	client     *minio.Client
	bucketName string
	publicURL  *url.URL
}

func NewMinioStorage(endpoint string, accessKeyID string, secretAccessKey string, useSSL bool, bucketName string) (FileStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStorage{client, bucketName, client.EndpointURL()}, nil
}

func (s *MinioStorage) Upload(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) (string, error) {
	if bucket == "" {
		bucket = s.bucketName
	}
	obj, err := objectPath(name)
	if err != nil {
		return "", err
	}

	// Тело читается целиком, чтобы повторить попытку с начала.
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	putOptions := minio.PutObjectOptions{ContentType: contentType}
	for i := range UploadTries {
		_, err = s.client.PutObject(ctx,
			bucket,
			obj,
			bytes.NewReader(data),
			int64(len(data)),
			putOptions,
		)
		if err == nil {
			break
		}
		resp := minio.ToErrorResponse(err)
		slog.Error("Upload file to minio", "name", obj, "try", i+1, "code", resp.StatusCode, "msg", resp.Message, "err", err)
		if i+1 < UploadTries {
			if err := sleepCtx(ctx, uploadRetryDelay); err != nil {
				return "", err
			}
		}
	}
	if err != nil {
		return "", err
	}

	return s.publicURL.JoinPath(bucket, obj).String(), nil
}
