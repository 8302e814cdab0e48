package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	"github.com/comunidadeds/portal/internal/portal/config"
	"github.com/comunidadeds/portal/internal/portal/dao"
	editsession "github.com/comunidadeds/portal/internal/portal/edit-session"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

const testDoc = `{"type":"doc","content":[
	{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Introdução"}]},
	{"type":"paragraph","content":[{"type":"text","text":"olá "},{"type":"text","text":"mundo","marks":[{"type":"bold"}]}]},
	{"type":"mention","attrs":{"id":"x"}}
]}`

func setupTestServer(t *testing.T) (*echo.Echo, *gorm.DB) {
	t.Helper()
	t.Setenv("WEB_URL", "http://localhost:3000")
	t.Setenv("LOCAL_STORAGE_PATH", t.TempDir())
	t.Setenv("MAX_UPLOAD_MB", "1")
	t.Setenv("MAX_IMAGE_WIDTH", "100")
	t.Setenv("METRICS_ENABLE", "true")
	t.Setenv("HIGHLIGHT_CODE", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, dao.Migrate(db))

	storage, err := filestorage.New(cfg)
	require.NoError(t, err)

	e, _ := NewServer(db, cfg, storage, "test")
	return e, db
}

func doRequest(e *echo.Echo, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doJSON(e *echo.Echo, method, target string, body any) *httptest.ResponseRecorder {
	var data []byte
	switch v := body.(type) {
	case nil:
	case string:
		data = []byte(v)
	default:
		data, _ = json.Marshal(v)
	}
	return doRequest(e, method, target, echo.MIMEApplicationJSON, data)
}

func multipartFile(t *testing.T, field, name string, data []byte, values map[string]string) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf.Bytes()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierrors.DefinedError {
	t.Helper()
	var got apierrors.DefinedError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got), rec.Body.String())
	return got
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) dao.WikiPage {
	t.Helper()
	var page dao.WikiPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page), rec.Body.String())
	return page
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestWikiPageLifecycle(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/wiki", `{"title":"Guia de Estilo","content":`+testDoc+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePage(t, rec)
	assert.Equal(t, "guia-de-estilo", created.Slug)
	// неизвестный узел отброшен при сохранении
	assert.Len(t, created.Content.Content, 2)

	rec = doJSON(e, http.MethodGet, "/api/wiki/guia-de-estilo/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "Guia de Estilo", page.Title)
	assert.Equal(t, "Introduçãoolá mundo", page.Content.TextContent())

	rec = doJSON(e, http.MethodGet, "/api/wiki/guia-de-estilo/html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h2>Introdução</h2><p>olá <strong>mundo</strong></p>", rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/wiki/guia-de-estilo/markdown?download=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "## Introdução")
	assert.Contains(t, rec.Body.String(), "olá **mundo**")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="guia-de-estilo.md"`)

	rec = doJSON(e, http.MethodPut, "/api/wiki/guia-de-estilo", `{"content":"<p>texto antigo</p>","title":"Guia","draft":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page = decodePage(t, rec)
	assert.Equal(t, "Guia", page.Title)
	assert.True(t, page.Draft)
	assert.Equal(t, "texto antigo", page.Content.TextContent())

	rec = doJSON(e, http.MethodGet, "/api/wiki", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/wiki?drafts=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"slug":"guia-de-estilo","title":"Guia","draft":true}]`, rec.Body.String())
}

func TestWikiErrors(t *testing.T) {
	e, _ := setupTestServer(t)
	rec := doJSON(e, http.MethodPost, "/api/wiki", `{"title":"Existe","slug":"existe"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   int
	}{
		{"empty title", http.MethodPost, "/api/wiki", `{"title":"  "}`, http.StatusBadRequest, 1003},
		{"long title", http.MethodPost, "/api/wiki", `{"title":"` + strings.Repeat("a", 201) + `"}`, http.StatusBadRequest, 1004},
		{"invalid slug", http.MethodPost, "/api/wiki", `{"title":"Nova","slug":"Não Válido"}`, http.StatusBadRequest, 9002},
		{"slug taken", http.MethodPost, "/api/wiki", `{"title":"Outra","slug":"existe"}`, http.StatusConflict, 1002},
		{"broken json", http.MethodPost, "/api/wiki", `{"title":`, http.StatusBadRequest, 9001},
		{"page not found", http.MethodGet, "/api/wiki/nao-existe", ``, http.StatusNotFound, 1001},
		{"html not found", http.MethodGet, "/api/wiki/nao-existe/html", ``, http.StatusNotFound, 1001},
		{"save not found", http.MethodPut, "/api/wiki/nao-existe", `{"content":null}`, http.StatusNotFound, 1001},
		{"empty save", http.MethodPut, "/api/wiki/existe", `{}`, http.StatusBadRequest, 9001},
		{"save empty title", http.MethodPut, "/api/wiki/existe", `{"title":""}`, http.StatusBadRequest, 1003},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			got := decodeError(t, rec)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.PtErr)
		})
	}
}

func TestSlugFromTitle(t *testing.T) {
	e, _ := setupTestServer(t)

	for _, want := range []string{"reuniao-de-marco", "reuniao-de-marco-2"} {
		rec := doJSON(e, http.MethodPost, "/api/wiki", `{"title":"Reunião de Março"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, want, decodePage(t, rec).Slug)
	}
}

func TestImportDocument(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/wiki/import", importRequest{
		Format: "markdown",
		Source: "# Título\n\n- [x] feito\n\n$$x^2$$\n",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	var types []string
	for _, n := range res.Doc.Content {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{tiptap.TypeHeading, tiptap.TypeTaskList, tiptap.TypeMath}, types)
	assert.Contains(t, res.HTML, "<h1>Título</h1>")

	rec = doJSON(e, http.MethodPost, "/api/wiki/import", importRequest{Format: "html", Source: `<p>a<script>x</script></p>`})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "<p>a</p>", res.HTML)

	rec = doJSON(e, http.MethodPost, "/api/wiki/import", importRequest{Format: "docx", Source: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 3001, decodeError(t, rec).Code)

	contentType, body := multipartFile(t, "file", "notas.md", []byte("Texto **forte**"), map[string]string{"title": "Notas"})
	rec = doRequest(e, http.MethodPost, "/api/wiki/import", contentType, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	page := decodePage(t, rec)
	assert.Equal(t, "notas", page.Slug)
	assert.Equal(t, "Texto forte", page.Content.TextContent())
}

func TestUploadImage(t *testing.T) {
	e, _ := setupTestServer(t)

	contentType, body := multipartFile(t, "file", "grafico.png", testPNG(t, 300, 150), nil)
	rec := doRequest(e, http.MethodPost, "/api/uploads", contentType, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Regexp(t, `^/uploads/wiki/\d+-[0-9a-f]{8}\.png$`, res.URL)

	rec = doRequest(e, http.MethodGet, res.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg, err := png.DecodeConfig(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)

	tests := []struct {
		name   string
		field  string
		file   string
		data   []byte
		status int
		code   int
	}{
		{"not an image", "file", "a.txt", []byte("olá"), http.StatusUnsupportedMediaType, 2003},
		{"missing file", "arquivo", "a.png", []byte("x"), http.StatusBadRequest, 2001},
		{"too large", "file", "a.png", make([]byte, 1<<20+1), http.StatusRequestEntityTooLarge, 2002},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contentType, body := multipartFile(t, tt.field, tt.file, tt.data, nil)
			rec := doRequest(e, http.MethodPost, "/api/uploads", contentType, body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestHighlightCSSAndMetrics(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doRequest(e, http.MethodGet, "/highlight.css", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/css")
	assert.Contains(t, rec.Body.String(), ".chroma")

	rec = doRequest(e, http.MethodGet, "/api/_health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Portal", rec.Header().Get(echo.HeaderServer))

	rec = doRequest(e, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_render_dropped_nodes_total")
	assert.Contains(t, rec.Body.String(), "portal_boot_time")

	rec = doRequest(e, http.MethodGet, "/nao/existe", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestEditSessionRoute(t *testing.T) {
	e, _ := setupTestServer(t)
	rec := doJSON(e, http.MethodPost, "/api/wiki", `{"title":"Editar","content":`+testDoc+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, srv.URL+"/api/wiki/editar/edit", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	var msg editsession.ServerMessage
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	assert.Equal(t, editsession.MsgDoc, msg.Type)
	require.NotNil(t, msg.Doc)
	assert.Equal(t, "Introduçãoolá mundo", msg.Doc.TextContent())

	_, resp, err := websocket.Dial(ctx, srv.URL+"/api/wiki/nao-existe/edit", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
