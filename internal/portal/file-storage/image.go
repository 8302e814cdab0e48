package filestorage

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"path"
	"strings"

	_ "image/gif"

	"github.com/nfnt/resize"
)

// ShrinkImage уменьшает изображение до ширины maxWidth с сохранением пропорций.
// Изображения уже подходящего размера, анимации (gif) и нераспознанные форматы возвращаются без изменений.
//
// Параметры:
//   - data: содержимое файла.
//   - maxWidth: максимальная ширина в пикселях, 0 отключает уменьшение.
//
// Возвращает:
//   - []byte: содержимое для выгрузки.
//   - string: content-type результата (пустой, если формат не распознан).
//   - bool: было ли изображение уменьшено.
func ShrinkImage(data []byte, maxWidth int) ([]byte, string, bool) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, "", false
	}
	contentType := "image/" + format
	if maxWidth <= 0 || cfg.Width <= maxWidth || format == "gif" {
		return data, contentType, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, contentType, false
	}
	thmb := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	buf := new(bytes.Buffer)
	switch format {
	case "png":
		err = png.Encode(buf, thmb)
	default:
		contentType = "image/jpeg"
		err = jpeg.Encode(buf, thmb, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return data, "image/" + format, false
	}
	return buf.Bytes(), contentType, true
}

// ErrNotImage - содержимое файла не является изображением.
var ErrNotImage = errors.New("is not an image")

var imageExts = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// PrepareImage готовит изображение к выгрузке: уменьшает его (ShrinkImage), определяет content-type
// по содержимому и выбирает расширение имени объекта. Заявленный клиентом тип используется,
// только если формат не распознан.
func PrepareImage(name, contentType string, data []byte, maxWidth int) ([]byte, string, string, error) {
	data, detected, shrunk := ShrinkImage(data, maxWidth)
	switch {
	case detected != "":
		contentType = detected
	case contentType == "":
		contentType = http.DetectContentType(data)
	}
	if shrunk {
		slog.Debug("Shrink uploaded image", "name", name, "size", len(data))
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", "", ErrNotImage
	}

	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = imageExts[contentType]
	}
	return data, contentType, ext, nil
}
