// Сессии редактирования страниц вики через вебсокет. На каждое соединение создается свой движок редактора,
// сообщения клиента превращаются в команды, изменения документа отправляются обратно.
//
// Основные возможности:
//   - Обмен JSON сообщениями (coder/websocket, wsjson) в порядке применения команд.
//   - Автосохранение и явное сохранение в базу через dao.SavePageContent.
//   - Выгрузка изображений из сообщения клиента в файловое хранилище.
//   - Пинг для поддержания соединения и учет активных сессий по страницам.
package editsession

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	"github.com/comunidadeds/portal/internal/portal/dao"
	"github.com/comunidadeds/portal/internal/portal/editor/engine"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

const (
	pingPeriod = time.Second * 20
	timeout    = time.Minute

	outQueueSize = 64
)

type Options struct {
	AutoSaveDelay  time.Duration
	Storage        filestorage.FileStorage
	Bucket         string
	PathPrefix     string
	MaxImageWidth  int
	MaxUploadBytes int64
	// OriginPatterns передаются в websocket.AcceptOptions. Пустой список - только тот же origin.
	OriginPatterns []string
}

type Service struct {
	db   *gorm.DB
	reg  *schema.Registry
	opts Options

	sessions map[string]map[uuid.UUID]*session
	mutex    sync.RWMutex
}

func NewService(db *gorm.DB, reg *schema.Registry, opts Options) *Service {
	return &Service{
		db:       db,
		reg:      reg,
		opts:     opts,
		sessions: make(map[string]map[uuid.UUID]*session),
	}
}

type session struct {
	id   uuid.UUID
	slug string
	conn *websocket.Conn
	eng  *engine.Engine
	out  chan ServerMessage
	ctx  context.Context
}

// Handle открывает сессию редактирования страницы. Если страницы нет, отвечает 404 без установки соединения.
func (s *Service) Handle(pageSlug string, w http.ResponseWriter, req *http.Request) {
	page, err := dao.GetPageBySlug(req.Context(), s.db, pageSlug)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = http.StatusNotFound
		} else {
			slog.Error("Load page for edit session", "slug", pageSlug, "err", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	c, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		slog.Error("Open websocket connection", "err", err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(s.opts.MaxUploadBytes*2 + 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ss := &session{
		id:   uuid.Must(uuid.NewV4()),
		slug: pageSlug,
		conn: c,
		out:  make(chan ServerMessage, outQueueSize),
		ctx:  ctx,
	}
	ss.eng = engine.New(s.reg, page.Content, engine.Options{
		OnChange: func(ch engine.Change) {
			ss.send(docMessage(ch))
		},
		OnAutoSave:    s.saveFunc(ss),
		OnError:       func(err error) { ss.send(errorMessage(err)) },
		AutoSaveDelay: s.opts.AutoSaveDelay,
		Storage:       s.opts.Storage,
		Bucket:        s.opts.Bucket,
		PathPrefix:    s.opts.PathPrefix,
		MaxImageWidth: s.opts.MaxImageWidth,
	})
	defer ss.eng.Close()

	s.add(ss)
	defer s.remove(ss)

	go ss.writeLoop()
	go s.pingLoop(ss)

	ss.send(docMessage(engine.Change{
		Doc:       ss.eng.Doc(),
		Version:   ss.eng.Version(),
		Selection: ss.eng.Selection(),
		Palette:   ss.eng.Palette(),
	}))

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("Read edit session message", "slug", pageSlug, "err", err)
			}
			break
		}
		for _, reply := range s.handleMessage(ctx, ss.eng, msg) {
			ss.send(reply)
		}
	}

	c.Close(websocket.StatusNormalClosure, "")
}

func (s *Service) saveFunc(ss *session) engine.SaveFunc {
	return func(ctx context.Context, doc tiptap.Node) error {
		if _, err := dao.SavePageContent(ctx, s.db, ss.slug, doc); err != nil {
			slog.Error("Save page content", "slug", ss.slug, "err", err)
			return apierrors.ErrPageSaveFailed
		}
		ss.send(ServerMessage{Type: MsgSaved})
		return nil
	}
}

// send ставит сообщение в очередь на отправку. Сообщения после закрытия сессии отбрасываются.
func (ss *session) send(msg ServerMessage) {
	select {
	case ss.out <- msg:
	case <-ss.ctx.Done():
	}
}

func (ss *session) writeLoop() {
	for {
		select {
		case <-ss.ctx.Done():
			return
		case msg := <-ss.out:
			ctx, cancel := context.WithTimeout(ss.ctx, timeout)
			err := wsjson.Write(ctx, ss.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("Write edit session message", "slug", ss.slug, "err", err)
				ss.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *Service) pingLoop(ss *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ss.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(ss.ctx, timeout)
		err := ss.conn.Ping(ctx)
		cancel()
		if err != nil {
			slog.Debug("Ping to websocket failed", "slug", ss.slug, "err", err)
			ss.conn.Close(websocket.StatusNormalClosure, "Ping failed, connection closed")
			return
		}
	}
}

func (s *Service) add(ss *session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cons, ok := s.sessions[ss.slug]
	if !ok {
		cons = make(map[uuid.UUID]*session)
		s.sessions[ss.slug] = cons
	}
	cons[ss.id] = ss
}

func (s *Service) remove(ss *session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions[ss.slug], ss.id)
	if len(s.sessions[ss.slug]) == 0 {
		delete(s.sessions, ss.slug)
	}
}

// Active возвращает число открытых сессий редактирования страницы.
func (s *Service) Active(pageSlug string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions[pageSlug])
}

// CloseAll закрывает все сессии (остановка сервера).
func (s *Service) CloseAll() {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, cons := range s.sessions {
		for _, ss := range cons {
			ss.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}
}

func (s *Service) upload(ctx context.Context, eng *engine.Engine, msg ClientMessage) *ServerMessage {
	if len(msg.Data) == 0 {
		m := errorMessage(apierrors.ErrUploadFileRequired)
		return &m
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(msg.Data)) > s.opts.MaxUploadBytes {
		m := errorMessage(apierrors.ErrUploadTooLarge.WithFormattedMessage(s.opts.MaxUploadBytes >> 20))
		return &m
	}

	eng.Upload(ctx, engine.File{
		Name:        msg.Name,
		ContentType: msg.ContentType,
		Size:        int64(len(msg.Data)),
		Reader:      bytes.NewReader(msg.Data),
		Source:      engine.ParseUploadSource(msg.Source),
	})
	return nil
}
