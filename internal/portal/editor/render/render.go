// Пакет render выводит документ в безопасный HTML для страниц просмотра.
//
// Основные возможности:
//   - Обход дерева в глубину через реестр узлов (тот же, что использует редактор).
//   - Метки выводятся вложенными элементами в порядке ранга, поэтому один и тот же набор меток
//     всегда дает одинаковый HTML.
//   - Неизвестные узлы отбрасываются вместе с поддеревом, рендер никогда не паникует.
//   - Результат проходит через политику redactor-policy.
//   - Подсветка кода (chroma) и минификация (tdewolff/minify) включаются опциями.
package render

import (
	"bytes"
	"html"
	"io"
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	policy "github.com/comunidadeds/portal/internal/portal/redactor-policy"
)

var (
	droppedNodes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "render_dropped_nodes_total",
		Help:      "Unknown document nodes dropped while rendering HTML",
	})
	renderPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "render_panics_total",
		Help:      "Recovered panics in HTML renderer",
	})
)

// Collectors возвращает метрики рендерера для регистрации сервером.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{droppedNodes, renderPanics}
}

type Renderer struct {
	reg       *schema.Registry
	highlight bool
	minifier  *minify.M
	formatter *chromahtml.Formatter
}

type Option func(r *Renderer)

// WithHighlight включает подсветку блоков кода с известным языком. Выводятся только css-классы,
// стили берутся из HighlightCSS.
func WithHighlight() Option {
	return func(r *Renderer) {
		r.highlight = true
	}
}

// WithMinify включает минификацию результата.
func WithMinify() Option {
	return func(r *Renderer) {
		r.minifier = minify.New()
		r.minifier.AddFunc("text/html", minhtml.Minify)
	}
}

func New(reg *schema.Registry, opts ...Option) *Renderer {
	r := &Renderer{
		reg:       reg,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.PreventSurroundingPre(true)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render выводит документ в очищенный HTML. Значение любого формата сначала нормализуется.
func (r *Renderer) Render(doc tiptap.Node) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			renderPanics.Inc()
			slog.Error("Render document panic", "panic", rec)
			out = ""
		}
	}()

	out = policy.Sanitize(r.render(doc))
	if r.minifier != nil {
		minified, err := r.minifier.String("text/html", out)
		if err != nil {
			slog.Warn("Minify rendered document", "err", err)
			return out
		}
		out = minified
	}
	return out
}

// render выводит HTML до очистки.
func (r *Renderer) render(doc tiptap.Node) string {
	conformed, rep := r.reg.Conform(tiptap.Normalize(doc))
	if n := len(rep.Dropped); n > 0 {
		droppedNodes.Add(float64(n))
	}

	var sb strings.Builder
	for _, n := range conformed.Content {
		r.writeNode(&sb, n)
	}
	return sb.String()
}

func (r *Renderer) writeNode(sb *strings.Builder, n tiptap.Node) {
	if n.IsText() {
		r.writeText(sb, n)
		return
	}
	if n.Type == tiptap.TypeImage && tiptap.GetAttrString(n.Attrs, "src") == "" {
		return
	}

	el, ok := r.reg.ToHTML(n)
	if !ok {
		return
	}

	if n.Type == tiptap.TypeCodeBlock && r.highlight && el.Inner != nil {
		lang := tiptap.GetAttrString(n.Attrs, "language")
		if code, ok := r.highlightCode(lang, n.TextContent()); ok {
			el.Inner.Raw = code
			el.Inner.HasChildren = false
			el.Write(sb, nil)
			return
		}
	}

	el.Write(sb, func(sb *strings.Builder) {
		for _, child := range n.Content {
			r.writeNode(sb, child)
		}
	})
}

func (r *Renderer) writeText(sb *strings.Builder, n tiptap.Node) {
	var wrappers []schema.Element
	for _, m := range n.Marks {
		if el, ok := r.reg.MarkToHTML(m); ok {
			wrappers = append(wrappers, el)
		}
	}
	for _, w := range wrappers {
		w.WriteOpen(sb)
	}
	sb.WriteString(html.EscapeString(n.Text))
	for i := len(wrappers) - 1; i >= 0; i-- {
		wrappers[i].WriteClose(sb)
	}
}

func (r *Renderer) highlightCode(lang, code string) (string, bool) {
	if lang == "" {
		return "", false
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return "", false
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		slog.Debug("Tokenise code block", "language", lang, "err", err)
		return "", false
	}

	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, styles.Fallback, it); err != nil {
		slog.Debug("Format code block", "language", lang, "err", err)
		return "", false
	}
	return buf.String(), true
}

// HighlightCSS пишет таблицу стилей для классов подсветки кода.
func HighlightCSS(w io.Writer, style string) error {
	s := styles.Get(style)
	return chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(w, s)
}
