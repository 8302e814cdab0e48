package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

// UploadSource - откуда пришел файл. Состояние "идет выгрузка" показывается только для явных выгрузок.
type UploadSource int

const (
	SourceExplicit UploadSource = iota
	SourcePaste
	SourceDrop
)

func (s UploadSource) String() string {
	switch s {
	case SourcePaste:
		return "paste"
	case SourceDrop:
		return "drop"
	}
	return "explicit"
}

// ParseUploadSource разбирает источник из сообщения клиента, неизвестное значение - явная выгрузка.
func ParseUploadSource(s string) UploadSource {
	switch s {
	case "paste":
		return SourcePaste
	case "drop":
		return SourceDrop
	}
	return SourceExplicit
}

type pendingUpload struct {
	pos    Pos
	atom   bool
	source UploadSource
}

// UploadHandle - выгрузка, начатая BeginUpload. Завершается ровно один раз: Complete или Fail.
type UploadHandle struct {
	e    *Engine
	id   uint64
	alt  string
	done chan struct{}
}

// BeginUpload запоминает текущую позицию курсора для будущей вставки изображения.
func (e *Engine) BeginUpload(source UploadSource) *UploadHandle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextUpload++
	p := e.sel.To.clone()
	if e.sel.Node {
		p = e.sel.From.clone()
	}
	e.uploads[e.nextUpload] = &pendingUpload{pos: p, atom: e.sel.Node, source: source}
	return &UploadHandle{e: e, id: e.nextUpload, done: make(chan struct{})}
}

// Uploading возвращает число явных выгрузок в процессе.
func (e *Engine) Uploading() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uploading()
}

func (e *Engine) uploading() int {
	count := 0
	for _, u := range e.uploads {
		if u.source == SourceExplicit {
			count++
		}
	}
	return count
}

// Position возвращает захваченную позицию с учетом правок, сделанных после BeginUpload.
func (h *UploadHandle) Position() (Pos, bool) {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	u, ok := h.e.uploads[h.id]
	if !ok {
		return Pos{}, false
	}
	return u.pos.clone(), true
}

// Done закрывается после Complete или Fail.
func (h *UploadHandle) Done() <-chan struct{} {
	return h.done
}

// Complete вставляет изображение по ссылке url в захваченную позицию. Выделение пользователя
// переносится, но не перемещается к изображению.
func (h *UploadHandle) Complete(url string) bool {
	e := h.e
	e.mu.Lock()
	u, ok := e.uploads[h.id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.uploads, h.id)
	defer close(h.done)

	if !validImageSrc(url) {
		e.mu.Unlock()
		e.reportError(fmt.Errorf("upload returned invalid url %q", url))
		return false
	}

	image := e.reg.Create(tiptap.TypeImage, map[string]any{"src": url, "alt": h.alt})
	change, err := e.apply("uploadImage", func(t *tx) error {
		p := u.pos
		if !u.atom {
			p = resolve(t.reg, t.doc, p)
		} else if !isAtom(t.reg, t.node(p.Path)) {
			p = resolve(t.reg, t.doc, p)
			u.atom = false
		}
		_, _, err := t.insertBlocks(p, u.atom, false, image)
		return err
	})
	if err != nil {
		e.mu.Unlock()
		e.reportError(fmt.Errorf("insert uploaded image: %w", err))
		return false
	}
	e.publish(change)
	return true
}

// Fail сообщает об ошибке выгрузки. Документ не меняется.
func (h *UploadHandle) Fail(err error) {
	e := h.e
	e.mu.Lock()
	_, ok := e.uploads[h.id]
	delete(e.uploads, h.id)
	e.mu.Unlock()
	if !ok {
		return
	}
	defer close(h.done)
	e.reportError(fmt.Errorf("%w: %w", ErrUploadFailed, err))
}

// File - файл для выгрузки.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
	Source      UploadSource
}

// Upload начинает выгрузку файла в хранилище и сразу возвращает управление. Позиция курсора
// захватывается синхронно, изображение вставляется после ответа хранилища.
func (e *Engine) Upload(ctx context.Context, f File) *UploadHandle {
	h := e.BeginUpload(f.Source)
	h.alt = strings.TrimSuffix(path.Base(filepath.ToSlash(f.Name)), path.Ext(f.Name))

	go func() {
		url, err := e.store(ctx, f)
		if err != nil {
			h.Fail(err)
			return
		}
		h.Complete(url)
	}()
	return h
}

func (e *Engine) store(ctx context.Context, f File) (string, error) {
	if e.opts.Storage == nil {
		return "", ErrNoStorage
	}
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return "", err
	}

	data, contentType, ext, err := filestorage.PrepareImage(f.Name, f.ContentType, data, e.opts.MaxImageWidth)
	if err != nil {
		return "", fmt.Errorf("file %q: %w", f.Name, err)
	}
	name := path.Join(e.opts.PathPrefix, filestorage.UniqueName(ext))

	return e.opts.Storage.Upload(ctx, e.opts.Bucket, name, bytes.NewReader(data), int64(len(data)), contentType)
}
