package editsession

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/comunidadeds/portal/internal/portal/dao"
	"github.com/comunidadeds/portal/internal/portal/editor/engine"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

type testEnv struct {
	db  *gorm.DB
	svc *Service
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	storage, err := filestorage.NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)

	svc := NewService(db, schema.Default(), Options{
		AutoSaveDelay:  time.Hour,
		Storage:        storage,
		Bucket:         "wiki",
		MaxImageWidth:  100,
		MaxUploadBytes: 1 << 20,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc.Handle(strings.TrimPrefix(r.URL.Path, "/edit/"), w, r)
	}))
	t.Cleanup(srv.Close)

	_, err = dao.CreatePage(context.Background(), db, "Teste", "", tiptap.NewDoc(tiptap.NewParagraph(tiptap.NewText("olá"))), false)
	require.NoError(t, err)

	return &testEnv{db: db, svc: svc, srv: srv}
}

func (env *testEnv) dial(t *testing.T, pageSlug string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, env.srv.URL+"/edit/"+pageSlug, nil)
	require.NoError(t, err)
	c.SetReadLimit(1 << 22)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, msg))
}

// readUntil читает сообщения, пока не придет сообщение нужного типа.
func readUntil(t *testing.T, c *websocket.Conn, typ string) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg ServerMessage
		require.NoError(t, wsjson.Read(ctx, c, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSessionEditAndSave(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "teste")

	first := readUntil(t, c, MsgDoc)
	require.NotNil(t, first.Doc)
	assert.Equal(t, "olá", first.Doc.TextContent())
	assert.Equal(t, uint64(0), first.Version)
	require.NotNil(t, first.Selection)

	assert.Eventually(t, func() bool { return env.svc.Active("teste") == 1 }, 2*time.Second, 10*time.Millisecond)

	sel := engine.Cursor(3, 0)
	write(t, c, ClientMessage{Type: MsgSelect, Selection: &sel})
	readUntil(t, c, MsgPalette)

	write(t, c, ClientMessage{Type: MsgText, Text: " mundo"})
	changed := readUntil(t, c, MsgDoc)
	assert.Equal(t, "olá mundo", changed.Doc.TextContent())
	assert.Equal(t, uint64(1), changed.Version)

	write(t, c, ClientMessage{Type: MsgExec, Command: "toggleHeading", Args: json.RawMessage(`{"level":2}`)})
	changed = readUntil(t, c, MsgDoc)
	assert.Equal(t, tiptap.TypeHeading, changed.Doc.Content[0].Type)

	write(t, c, ClientMessage{Type: MsgSave})
	readUntil(t, c, MsgSaved)

	page, err := dao.GetPageBySlug(context.Background(), env.db, "teste")
	require.NoError(t, err)
	assert.Equal(t, "olá mundo", page.Content.TextContent())
	assert.Equal(t, tiptap.TypeHeading, page.Content.Content[0].Type)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "teste")
	readUntil(t, c, MsgDoc)

	tests := []struct {
		name string
		msg  ClientMessage
		code int
	}{
		{"unknown command", ClientMessage{Type: MsgExec, Command: "explodir"}, 3003},
		{"rejected command", ClientMessage{Type: MsgExec, Command: "addRowAfter"}, 3004},
		{"invalid selection", ClientMessage{Type: MsgSelect}, 3006},
		{"unknown message", ClientMessage{Type: "dançar"}, 3005},
		{"empty upload", ClientMessage{Type: MsgUpload, Name: "a.png"}, 2001},
		{"upload too large", ClientMessage{Type: MsgUpload, Name: "a.png", Data: make([]byte, 1<<20+1)}, 2002},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write(t, c, tt.msg)
			got := readUntil(t, c, MsgError)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestSessionPaletteKeys(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "teste")
	readUntil(t, c, MsgDoc)

	sel := engine.Cursor(3, 0)
	write(t, c, ClientMessage{Type: MsgSelect, Selection: &sel})
	readUntil(t, c, MsgPalette)

	write(t, c, ClientMessage{Type: MsgText, Text: " "})
	readUntil(t, c, MsgPalette)
	write(t, c, ClientMessage{Type: MsgText, Text: "/"})
	palette := readUntil(t, c, MsgPalette)
	require.NotNil(t, palette.Palette)
	assert.True(t, palette.Palette.Open)

	write(t, c, ClientMessage{Type: MsgKey, Key: "ArrowDown"})
	ack := readUntil(t, c, MsgAck)
	assert.True(t, ack.Handled)
	assert.Equal(t, 1, ack.Palette.Index)

	write(t, c, ClientMessage{Type: MsgKey, Key: "Escape"})
	ack = readUntil(t, c, MsgAck)
	assert.True(t, ack.Handled)
	assert.False(t, ack.Palette.Open)

	// без палитры enter разбивает блок
	write(t, c, ClientMessage{Type: MsgKey, Key: "Enter"})
	changed := readUntil(t, c, MsgDoc)
	assert.Len(t, changed.Doc.Content, 2)
	ack = readUntil(t, c, MsgAck)
	assert.True(t, ack.Handled)

	write(t, c, ClientMessage{Type: MsgKey, Key: "Tab"})
	ack = readUntil(t, c, MsgAck)
	assert.False(t, ack.Handled)
}

func TestSessionUpload(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "teste")
	readUntil(t, c, MsgDoc)

	write(t, c, ClientMessage{
		Type:        MsgUpload,
		Name:        "grafico.png",
		ContentType: "image/png",
		Data:        testPNG(t, 300, 100),
		Source:      "drop",
	})

	changed := readUntil(t, c, MsgDoc)
	var img *tiptap.Node
	for i := range changed.Doc.Content {
		if changed.Doc.Content[i].Type == tiptap.TypeImage {
			img = &changed.Doc.Content[i]
		}
	}
	require.NotNil(t, img)
	assert.Equal(t, "grafico", tiptap.GetAttrString(img.Attrs, "alt"))
	assert.True(t, strings.HasPrefix(tiptap.GetAttrString(img.Attrs, "src"), "/uploads/wiki/"))
}

func TestSessionUnknownPage(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, env.srv.URL+"/edit/nao-existe", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
