package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

func waitDone(t *testing.T, h *UploadHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
}

func collectErrors() (func(error), func() []error) {
	ch := make(chan error, 16)
	return func(err error) { ch <- err }, func() []error {
		var out []error
		for {
			select {
			case err := <-ch:
				out = append(out, err)
			default:
				return out
			}
		}
	}
}

func TestUploadInsertsAtCapturedPosition(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("início")), p(text("fim"))), Options{})
	require.True(t, e.Select(Cursor(6, 0)))

	h := e.BeginUpload(SourceExplicit)
	assert.Equal(t, 1, e.Uploading())
	e.BeginUpload(SourcePaste)
	assert.Equal(t, 1, e.Uploading(), "paste uploads do not show progress")

	// правки во время выгрузки
	require.True(t, e.Select(Cursor(3, 1)))
	require.True(t, e.Exec(InsertText{Text: "!!!"}))
	require.True(t, e.Select(Cursor(0, 0)))
	require.True(t, e.Exec(SplitBlock{}))

	captured, ok := h.Position()
	require.True(t, ok)
	assert.Equal(t, Cursor(6, 1).To, captured)
	userSel := e.Selection()

	require.True(t, h.Complete("https://cdn.dados.br/wiki/a.png"))
	waitDone(t, h)

	doc := e.Doc()
	require.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeParagraph, tiptap.TypeImage, tiptap.TypeParagraph}, blockTypes(doc))
	assert.Equal(t, "https://cdn.dados.br/wiki/a.png", tiptap.GetAttrString(doc.Content[2].Attrs, "src"))
	assert.Equal(t, "fim!!!", doc.Content[3].TextContent())
	assert.Equal(t, userSel, e.Selection(), "user selection does not jump to the image")
	assert.Equal(t, 0, e.Uploading())

	assert.False(t, h.Complete("https://cdn.dados.br/wiki/b.png"), "handle completes once")
}

func TestUploadsCompleteOutOfOrder(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("a")), p(text("b"))), Options{})

	require.True(t, e.Select(Cursor(1, 0)))
	first := e.BeginUpload(SourceExplicit)
	require.True(t, e.Select(Cursor(1, 1)))
	second := e.BeginUpload(SourceDrop)

	require.True(t, second.Complete("/uploads/2.png"))
	require.True(t, first.Complete("/uploads/1.png"))

	doc := e.Doc()
	require.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeImage, tiptap.TypeParagraph, tiptap.TypeImage}, blockTypes(doc))
	assert.Equal(t, "/uploads/1.png", tiptap.GetAttrString(doc.Content[1].Attrs, "src"))
	assert.Equal(t, "/uploads/2.png", tiptap.GetAttrString(doc.Content[3].Attrs, "src"))
}

func TestUploadsAtSamePositionKeepCompletionOrder(t *testing.T) {
	e := New(schema.Default(), nil, Options{})
	first := e.BeginUpload(SourceExplicit)
	second := e.BeginUpload(SourceExplicit)
	assert.Equal(t, 2, e.Uploading())

	require.True(t, second.Complete("/uploads/2.png"))
	require.True(t, first.Complete("/uploads/1.png"))

	doc := e.Doc()
	require.Equal(t, []string{tiptap.TypeImage, tiptap.TypeImage, tiptap.TypeParagraph}, blockTypes(doc))
	assert.Equal(t, "/uploads/2.png", tiptap.GetAttrString(doc.Content[0].Attrs, "src"))
	assert.Equal(t, "/uploads/1.png", tiptap.GetAttrString(doc.Content[1].Attrs, "src"))
}

func TestUploadFailureLeavesDocumentUntouched(t *testing.T) {
	onError, errs := collectErrors()
	var changes int
	e := New(schema.Default(), tiptap.NewDoc(p(text("abc"))), Options{OnError: onError, OnChange: func(Change) { changes++ }})
	before := e.Doc()

	h := e.BeginUpload(SourceExplicit)
	h.Fail(errors.New("timeout"))
	waitDone(t, h)

	assert.True(t, tiptap.Equal(before, e.Doc()))
	assert.Equal(t, uint64(0), e.Version())
	assert.Zero(t, changes)
	assert.Equal(t, 0, e.Uploading())
	got := errs()
	require.Len(t, got, 1)
	assert.ErrorContains(t, got[0], "timeout")

	assert.False(t, h.Complete("/uploads/late.png"))
	assert.True(t, tiptap.Equal(before, e.Doc()))
}

func TestUploadRejectsUnsafeURL(t *testing.T) {
	onError, errs := collectErrors()
	e := New(schema.Default(), nil, Options{OnError: onError})

	h := e.BeginUpload(SourceExplicit)
	assert.False(t, h.Complete("javascript:alert(1)"))
	waitDone(t, h)
	assert.Equal(t, uint64(0), e.Version())
	assert.Len(t, errs(), 1)
}

func TestUploadWithNodeSelection(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("a")), tiptap.NewNode(tiptap.TypeHorizontalRule, nil), p(text("b"))), Options{})
	require.True(t, e.Select(NodeAt(1)))
	h := e.BeginUpload(SourceExplicit)

	require.True(t, h.Complete("/uploads/x.png"))
	assert.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeHorizontalRule, tiptap.TypeImage, tiptap.TypeParagraph}, blockTypes(e.Doc()))
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func localStorage(t *testing.T, root string) filestorage.FileStorage {
	t.Helper()
	s, err := filestorage.NewLocalStorage(root, "/uploads")
	require.NoError(t, err)
	return s
}

func TestUploadToStorage(t *testing.T) {
	root := t.TempDir()
	onError, errs := collectErrors()
	e := New(schema.Default(), nil, Options{
		Storage:       localStorage(t, root),
		Bucket:        "wiki",
		PathPrefix:    "paginas",
		MaxImageWidth: 100,
		OnError:       onError,
	})

	h := e.Upload(context.Background(), File{
		Name:        "fotos/foto.png",
		ContentType: "image/png",
		Reader:      bytes.NewReader(testPNG(t, 400, 200)),
		Source:      SourcePaste,
	})
	waitDone(t, h)
	require.Empty(t, errs())

	img := e.Doc().Content[0]
	require.Equal(t, tiptap.TypeImage, img.Type)
	assert.Equal(t, "foto", tiptap.GetAttrString(img.Attrs, "alt"))
	src := tiptap.GetAttrString(img.Attrs, "src")
	assert.Regexp(t, regexp.MustCompile(`^/uploads/wiki/paginas/\d+-[0-9a-f]{8}\.png$`), src)

	data, err := os.ReadFile(filepath.Join(root, "wiki", strings.TrimPrefix(src, "/uploads/wiki/")))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name        string
		withStorage bool
		file        File
		wantErr     error
		msg         string
	}{
		{
			name:    "no storage",
			file:    File{Name: "a.png", ContentType: "image/png", Reader: strings.NewReader("x")},
			wantErr: ErrNoStorage,
		},
		{
			name:        "not an image",
			withStorage: true,
			file:        File{Name: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("oi")},
			msg:         "is not an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			onError, errs := collectErrors()
			opts := Options{OnError: onError, Bucket: "wiki"}
			if tt.withStorage {
				opts.Storage = localStorage(t, t.TempDir())
			}
			e := New(schema.Default(), nil, opts)

			h := e.Upload(context.Background(), tt.file)
			waitDone(t, h)

			got := errs()
			require.Len(t, got, 1)
			assert.ErrorIs(t, got[0], ErrUploadFailed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, got[0], tt.wantErr)
			}
			if tt.msg != "" {
				assert.ErrorContains(t, got[0], tt.msg)
			}
			assert.Equal(t, uint64(0), e.Version())
		})
	}
}

func TestParseUploadSource(t *testing.T) {
	for _, s := range []UploadSource{SourceExplicit, SourcePaste, SourceDrop} {
		assert.Equal(t, s, ParseUploadSource(s.String()))
	}
	assert.Equal(t, SourceExplicit, ParseUploadSource("webcam"))
}

func TestUploadCompletesWhileChangeIsDelivered(t *testing.T) {
	var h *UploadHandle
	var changes []Change
	completed := make(chan bool, 1)

	e := New(schema.Default(), tiptap.NewDoc(p(text("abc"))), Options{OnChange: func(ch Change) {
		changes = append(changes, ch)
		if len(changes) == 1 {
			// выгрузка завершается, пока уведомление о команде еще обрабатывается
			go func() { completed <- h.Complete("/uploads/wiki/a.png") }()
			time.Sleep(50 * time.Millisecond)
		}
	}})
	require.True(t, e.Select(Cursor(3, 0)))
	h = e.BeginUpload(SourceExplicit)

	execDone := make(chan bool, 1)
	go func() { execDone <- e.Exec(InsertText{Text: "d"}) }()

	for _, ch := range []chan bool{execDone, completed} {
		select {
		case ok := <-ch:
			assert.True(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("engine is blocked")
		}
	}

	require.Len(t, changes, 2)
	assert.Equal(t, "insertText", changes[0].Command)
	assert.Equal(t, 1, changes[0].Uploading)
	assert.Equal(t, Cursor(4, 0), changes[0].Selection)
	assert.Equal(t, "uploadImage", changes[1].Command)
	assert.Equal(t, 0, changes[1].Uploading)
	assert.Equal(t, e.Selection(), changes[1].Selection)
	assert.False(t, changes[1].Palette.Open)
}
