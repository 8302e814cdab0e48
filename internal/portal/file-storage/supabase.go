package filestorage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// SupabaseStorage выгружает файлы через REST API Supabase Storage.
type SupabaseStorage struct {
	client     *retryablehttp.Client
	baseURL    *url.URL
	serviceKey string
}

func NewSupabaseStorage(projectURL, serviceKey string) (FileStorage, error) {
	if projectURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase storage requires url and service key")
	}
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil {
		return nil, err
	}

	cl := retryablehttp.NewClient()
	cl.RetryMax = UploadTries - 1
	cl.RetryWaitMin = time.Millisecond * 500
	cl.RetryWaitMax = time.Second * 5
	cl.Logger = slog.Default()

	return &SupabaseStorage{client: cl, baseURL: u, serviceKey: serviceKey}, nil
}

func (s *SupabaseStorage) Upload(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) (string, error) {
	obj, err := objectPath(name)
	if err != nil {
		return "", err
	}

	// retryablehttp буферизует тело и переотправляет его при повторе.
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL.JoinPath("storage/v1/object", bucket, obj).String(), r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("Upload file to supabase", "name", obj, "code", resp.StatusCode, "msg", string(body))
		return "", fmt.Errorf("supabase upload %s: status %d", obj, resp.StatusCode)
	}

	return s.baseURL.JoinPath("storage/v1/object/public", bucket, obj).String(), nil
}
