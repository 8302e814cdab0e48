package portal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	"github.com/comunidadeds/portal/internal/portal/dao"
	"github.com/comunidadeds/portal/internal/portal/editor"
	"github.com/comunidadeds/portal/internal/portal/editor/export"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	stack_error "github.com/comunidadeds/portal/internal/portal/stack-error"
)

// maxImportBytes ограничивает размер импортируемого документа.
const maxImportBytes = 5 << 20

func (s *Services) AddWikiServices(g *echo.Group) {
	g.GET("/wiki", s.listPages)
	g.POST("/wiki", s.createPage)
	g.POST("/wiki/import", s.importDocument)
	g.GET("/wiki/:slug", s.getPage)
	g.PUT("/wiki/:slug", s.savePage)
	g.GET("/wiki/:slug/html", s.getPageHTML)
	g.GET("/wiki/:slug/markdown", s.getPageMarkdown)
	g.GET("/wiki/:slug/edit", s.editPage)
}

type pageSummary struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Draft bool   `json:"draft"`
}

type createPageRequest struct {
	Title   string          `json:"title"`
	Slug    string          `json:"slug" validate:"omitempty,slug"`
	Content json.RawMessage `json:"content"`
	Draft   bool            `json:"draft"`
}

type savePageRequest struct {
	Content json.RawMessage `json:"content"`
	Title   *string         `json:"title"`
	Draft   *bool           `json:"draft"`
}

type importRequest struct {
	Format string `json:"format"`
	Source string `json:"source"`
	// Title - если задан, из импортированного документа сразу создается страница.
	Title string `json:"title"`
	Draft bool   `json:"draft"`
}

type importResponse struct {
	Doc  tiptap.Node `json:"doc"`
	HTML string      `json:"html"`
}

// rawContent превращает тело поля content в значение для нормализатора. Отсутствующее поле - пустой документ.
func rawContent(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return raw
}

// loadPage загружает страницу по :slug.
func (s *Services) loadPage(c echo.Context) (*dao.WikiPage, error) {
	pageSlug := c.Param("slug")
	page, err := dao.GetPageBySlug(c.Request().Context(), s.db, pageSlug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.ErrPageNotFound
	}
	if err != nil {
		return nil, stack_error.TrackErrorStack(err).AddContext("slug", pageSlug)
	}
	return page, nil
}

func (s *Services) listPages(c echo.Context) error {
	drafts, _ := strconv.ParseBool(c.QueryParam("drafts"))

	pages, err := dao.ListPages(c.Request().Context(), s.db, drafts)
	if err != nil {
		return EError(c, stack_error.TrackErrorStack(err))
	}

	res := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		res = append(res, pageSummary{Slug: p.Slug, Title: p.Title, Draft: p.Draft})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Services) getPage(c echo.Context) error {
	page, err := s.loadPage(c)
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Services) getPageHTML(c echo.Context) error {
	page, err := s.loadPage(c)
	if err != nil {
		return EError(c, err)
	}
	return c.HTML(http.StatusOK, s.renderer.Render(page.Content))
}

func (s *Services) getPageMarkdown(c echo.Context) error {
	page, err := s.loadPage(c)
	if err != nil {
		return EError(c, err)
	}

	if download, _ := strconv.ParseBool(c.QueryParam("download")); download {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", page.Slug+".md"))
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/markdown; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return export.ToMarkdown(c.Response(), page.Content)
}

func (s *Services) createPage(c echo.Context) error {
	var req createPageRequest
	if err := c.Bind(&req); err != nil {
		return EErrorDefined(c, apierrors.ErrInvalidRequest)
	}
	if err := checkTitle(req.Title); err != nil {
		return EError(c, err)
	}
	if err := c.Validate(req); err != nil {
		return EError(c, err)
	}

	page, err := dao.CreatePage(c.Request().Context(), s.db, strings.TrimSpace(req.Title), req.Slug, rawContent(req.Content), req.Draft)
	if errors.Is(err, dao.ErrSlugTaken) {
		return EErrorDefined(c, apierrors.ErrPageSlugConflict)
	}
	if err != nil {
		return EError(c, stack_error.TrackErrorStack(err).AddContext("title", req.Title))
	}
	return c.JSON(http.StatusCreated, page)
}

// savePage сохраняет содержимое и/или заголовок страницы. Открытые сессии редактирования
// перезапишут содержимое при следующем сохранении.
func (s *Services) savePage(c echo.Context) error {
	page, err := s.loadPage(c)
	if err != nil {
		return EError(c, err)
	}

	var req savePageRequest
	if err := c.Bind(&req); err != nil {
		return EErrorDefined(c, apierrors.ErrInvalidRequest)
	}
	if len(req.Content) == 0 && req.Title == nil && req.Draft == nil {
		return EErrorDefined(c, apierrors.ErrInvalidRequest)
	}

	ctx := c.Request().Context()
	if len(req.Content) > 0 {
		if n := s.sessions.Active(page.Slug); n > 0 {
			slog.Warn("Page saved while edit sessions are open", "slug", page.Slug, "sessions", n)
		}
		if page.Content, err = dao.SavePageContent(ctx, s.db, page.Slug, rawContent(req.Content)); err != nil {
			return EError(c, stack_error.TrackErrorStack(err).AddContext("slug", page.Slug))
		}
	}

	if req.Title != nil || req.Draft != nil {
		if req.Title != nil {
			if err := checkTitle(*req.Title); err != nil {
				return EError(c, err)
			}
			page.Title = strings.TrimSpace(*req.Title)
		}
		if req.Draft != nil {
			page.Draft = *req.Draft
		}
		if err := dao.UpdatePageMeta(ctx, s.db, page.Slug, page.Title, page.Draft); err != nil {
			return EError(c, stack_error.TrackErrorStack(err).AddContext("slug", page.Slug))
		}
	}

	return c.JSON(http.StatusOK, page)
}

// importDocument разбирает Markdown или HTML в документ. Источник передается в JSON (format, source)
// или файлом multipart "file", формат тогда определяется по расширению.
func (s *Services) importDocument(c echo.Context) error {
	var req importRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return EErrorDefined(c, apierrors.ErrUploadFileRequired)
		}
		f, err := fileHeader.Open()
		if err != nil {
			return EError(c, stack_error.TrackErrorStack(err))
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxImportBytes))
		if err != nil {
			return EError(c, stack_error.TrackErrorStack(err))
		}
		req = importRequest{
			Format: formatByName(fileHeader.Filename),
			Source: string(data),
			Title:  c.FormValue("title"),
		}
		req.Draft, _ = strconv.ParseBool(c.FormValue("draft"))
	} else if err := c.Bind(&req); err != nil {
		return EErrorDefined(c, apierrors.ErrInvalidRequest)
	}

	var doc tiptap.Node
	var err error
	switch strings.ToLower(req.Format) {
	case FormatMarkdown, "md":
		doc, err = editor.ImportMarkdown(s.reg, []byte(req.Source))
	case FormatHTML:
		doc, err = editor.ImportHTML(s.reg, strings.NewReader(req.Source))
	default:
		return EErrorDefined(c, apierrors.ErrImportFormat.WithFormattedMessage(req.Format))
	}
	if err != nil {
		slog.Warn("Import document", "format", req.Format, "err", err)
		return EErrorDefined(c, apierrors.ErrImportFailed)
	}

	if req.Title == "" {
		return c.JSON(http.StatusOK, importResponse{Doc: doc, HTML: s.renderer.Render(doc)})
	}

	if err := checkTitle(req.Title); err != nil {
		return EError(c, err)
	}
	page, err := dao.CreatePage(c.Request().Context(), s.db, strings.TrimSpace(req.Title), "", doc, req.Draft)
	if err != nil {
		return EError(c, stack_error.TrackErrorStack(err).AddContext("title", req.Title))
	}
	return c.JSON(http.StatusCreated, page)
}

func formatByName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	}
	return strings.TrimPrefix(path.Ext(name), ".")
}

// editPage открывает сессию редактирования. Для отсутствующей страницы отвечает 404 до рукопожатия.
func (s *Services) editPage(c echo.Context) error {
	s.sessions.Handle(c.Param("slug"), c.Response(), c.Request())
	return nil
}
