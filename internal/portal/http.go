// Пакет portal - HTTP сервер вики сообщества: страницы, их отрисовка и выгрузка, импорт документов,
// выгрузка изображений и сессии редактирования через вебсокет.
//
// Основные возможности:
//   - REST API страниц вики на echo.
//   - Отрисовка страниц в безопасный HTML и выгрузка в Markdown.
//   - Импорт Markdown и HTML в дерево документа.
//   - Сессии редактирования (edit-session) по вебсокету.
//   - Метрики prometheus (echoprometheus и метрики рендерера).
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	"github.com/comunidadeds/portal/internal/portal/config"
	editsession "github.com/comunidadeds/portal/internal/portal/edit-session"
	"github.com/comunidadeds/portal/internal/portal/editor/render"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
	stack_error "github.com/comunidadeds/portal/internal/portal/stack-error"
)

//go:generate go run ../../cmd/docsgen/main.go -mode errors -src apierrors/apierrors.go -out ../../docs/api_errors.md
//go:generate go run ../../cmd/docsgen/main.go -mode nodes -out ../../docs/document.md

const highlightStyle = "github"

type Services struct {
	db       *gorm.DB
	cfg      *config.Config
	reg      *schema.Registry
	storage  filestorage.FileStorage
	renderer *render.Renderer
	sessions *editsession.Service
	metrics  *prometheus.Registry

	version string
}

// ServerHeader middleware adds a `Server` header to the response.
func ServerHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderServer, "Portal")
		return next(c)
	}
}

// NewServer собирает echo со всеми маршрутами. Запуск и остановка - в Server.
func NewServer(db *gorm.DB, cfg *config.Config, storage filestorage.FileStorage, version string) (*echo.Echo, *Services) {
	reg := schema.Default()

	var renderOpts []render.Option
	if cfg.HighlightCode {
		renderOpts = append(renderOpts, render.WithHighlight())
	}
	if cfg.MinifyHTML {
		renderOpts = append(renderOpts, render.WithMinify())
	}

	s := &Services{
		db:       db,
		cfg:      cfg,
		reg:      reg,
		storage:  storage,
		renderer: render.New(reg, renderOpts...),
		sessions: editsession.NewService(db, reg, editsession.Options{
			AutoSaveDelay:  cfg.AutoSaveDelay(),
			Storage:        storage,
			Bucket:         cfg.StorageBucket,
			PathPrefix:     cfg.StoragePathPrefix,
			MaxImageWidth:  cfg.MaxImageWidth,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			OriginPatterns: originPatterns(cfg),
		}),
		version: version,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Validator = NewRequestValidator()

	// Global middlewares
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(ServerHeader)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.WebURL.Scheme + "://" + cfg.WebURL.Host},
	}))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		// multipart добавляет к файлу заголовки частей
		Limit: fmt.Sprintf("%dM", cfg.MaxUploadMB+1),
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/edit")
		},
	}))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:     5,
		MinLength: 2048,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/edit")
		},
	}))

	if cfg.MetricsEnable {
		s.metrics = prometheus.NewRegistry()
		s.metrics.MustRegister(render.Collectors()...)
		bootTimeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Name:      "boot_time",
			Help:      "Server startup time",
		})
		bootTimeGauge.Set(float64(time.Now().UnixMilli()))
		s.metrics.MustRegister(bootTimeGauge)

		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  "portal",
			Registerer: s.metrics,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics"
			},
		}))
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.metrics}))
	}

	apiGroup := e.Group("/api")
	s.AddWikiServices(apiGroup)
	s.AddUploadServices(apiGroup)

	// Version endpoint
	apiGroup.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"version":  s.version,
			"autosave": cfg.AutoSaveDelayMs,
		})
	})

	// Health endpoint
	apiGroup.GET("/_health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.GET("/highlight.css", s.highlightCSS)

	if cfg.StorageDriver == config.StorageLocal {
		e.Static("/uploads", cfg.LocalStoragePath)
	}

	return e, s
}

// Server запускает сервер и блокируется до SIGINT/SIGTERM. Сессии редактирования закрываются
// перед остановкой, ожидающие автосохранения успевают завершиться.
func Server(db *gorm.DB, cfg *config.Config, storage filestorage.FileStorage, version string) error {
	e, s := NewServer(db, cfg, storage, version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Start server", "addr", cfg.ListenAddr, "version", version)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func (s *Services) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	switch code {
	case http.StatusNotFound:
		// Ignore 404
		c.NoContent(http.StatusNotFound)
		return
	case http.StatusRequestEntityTooLarge:
		EErrorDefined(c, apierrors.ErrUploadTooLarge.WithFormattedMessage(s.cfg.MaxUploadMB))
		return
	case http.StatusMethodNotAllowed:
		EErrorMsgStatus(c, nil, code)
		return
	}

	stack_error.LogError(c, err)
	EErrorMsgStatus(c, nil, code)
}

func (s *Services) highlightCSS(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/css; charset=utf-8")
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=86400")
	c.Response().WriteHeader(http.StatusOK)
	return render.HighlightCSS(c.Response(), highlightStyle)
}

// originPatterns - адрес фронтенда для проверки Origin вебсокета.
func originPatterns(cfg *config.Config) []string {
	if cfg.WebURL == nil || cfg.WebURL.Host == "" {
		return nil
	}
	return []string{cfg.WebURL.Host}
}
