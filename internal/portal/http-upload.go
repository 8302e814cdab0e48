package portal

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

type uploadResponse struct {
	URL string `json:"url"`
}

func (s *Services) AddUploadServices(g *echo.Group) {
	g.POST("/uploads", s.uploadImage)
}

// uploadImage выгружает изображение из поля multipart "file" в хранилище и возвращает ссылку на него.
func (s *Services) uploadImage(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return EErrorDefined(c, apierrors.ErrUploadFileRequired)
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes() {
		return EErrorDefined(c, apierrors.ErrUploadTooLarge.WithFormattedMessage(s.cfg.MaxUploadMB))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return EError(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return EError(c, err)
	}

	data, contentType, ext, err := filestorage.PrepareImage(fileHeader.Filename, fileHeader.Header.Get(echo.HeaderContentType), data, s.cfg.MaxImageWidth)
	if errors.Is(err, filestorage.ErrNotImage) {
		return EErrorDefined(c, apierrors.ErrUploadNotImage)
	}
	if err != nil {
		return EError(c, err)
	}

	if s.storage == nil {
		slog.Error("Upload image without file storage")
		return EErrorDefined(c, apierrors.ErrUploadFailed)
	}
	name := path.Join(s.cfg.StoragePathPrefix, filestorage.UniqueName(ext))
	url, err := s.storage.Upload(c.Request().Context(), s.cfg.StorageBucket, name, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		slog.Error("Upload image to storage", "name", name, "err", err)
		return EErrorDefined(c, apierrors.ErrUploadFailed)
	}

	return c.JSON(http.StatusCreated, uploadResponse{URL: url})
}
