package schema

import (
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/comunidadeds/portal/internal/portal/editor/mathml"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Допустимые значения выравнивания изображения.
var ImageAligns = []string{"left", "center", "right", "none"}

// Варианты оформления блока-выноски.
var CalloutVariants = []string{"info", "warning", "success", "danger", "note"}

func blockAlign(attrs map[string]any) []Attr {
	align := tiptap.GetAttrString(attrs, "textAlign")
	if align == "" || align == "left" {
		return nil
	}
	return []Attr{{"data-text-align", align}}
}

func parseTextAlign(el *html.Node) map[string]any {
	if v, ok := AttrValue(el, "data-text-align"); ok {
		return map[string]any{"textAlign": v}
	}
	style, _ := AttrValue(el, "style")
	if v := StyleValue(style, "text-align"); v != "" {
		return map[string]any{"textAlign": v}
	}
	return nil
}

func intAttr(el *html.Node, key string) (int, bool) {
	v, ok := AttrValue(el, key)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil {
		return 0, false
	}
	return i, true
}

func headingRule(level int) ParseRule {
	return ParseRule{
		Tag: "h" + strconv.Itoa(level),
		GetAttrs: func(el *html.Node) map[string]any {
			attrs := parseTextAlign(el)
			if attrs == nil {
				attrs = map[string]any{}
			}
			attrs["level"] = level
			return attrs
		},
	}
}

func cellToHTML(tag string) func(attrs map[string]any) Element {
	return func(attrs map[string]any) Element {
		el := Element{Tag: tag, HasChildren: true}
		if c := tiptap.GetAttrInt(attrs, "colspan"); c > 1 {
			el.Attrs = append(el.Attrs, Attr{"colspan", strconv.Itoa(c)})
		}
		if r := tiptap.GetAttrInt(attrs, "rowspan"); r > 1 {
			el.Attrs = append(el.Attrs, Attr{"rowspan", strconv.Itoa(r)})
		}
		return el
	}
}

func parseCell(el *html.Node) map[string]any {
	attrs := map[string]any{}
	if c, ok := intAttr(el, "colspan"); ok && c > 0 {
		attrs["colspan"] = c
	}
	if r, ok := intAttr(el, "rowspan"); ok && r > 0 {
		attrs["rowspan"] = r
	}
	return attrs
}

// ValidImageAlign приводит выравнивание изображения к допустимому значению.
func ValidImageAlign(align string) string {
	for _, a := range ImageAligns {
		if a == align {
			return align
		}
	}
	return "center"
}

func imageToHTML(attrs map[string]any) Element {
	el := Element{Tag: "img", Attrs: []Attr{{"src", tiptap.GetAttrString(attrs, "src")}}}
	if alt := tiptap.GetAttrString(attrs, "alt"); alt != "" {
		el.Attrs = append(el.Attrs, Attr{"alt", alt})
	}
	if title := tiptap.GetAttrString(attrs, "title"); title != "" {
		el.Attrs = append(el.Attrs, Attr{"title", title})
	}
	if w := tiptap.GetAttrInt(attrs, "width"); w > 0 {
		el.Attrs = append(el.Attrs, Attr{"width", strconv.Itoa(w)})
	}
	el.Attrs = append(el.Attrs, Attr{"data-align", ValidImageAlign(tiptap.GetAttrString(attrs, "align"))})
	return el
}

func parseImage(el *html.Node) map[string]any {
	attrs := map[string]any{}
	for _, key := range []string{"src", "alt", "title"} {
		if v, ok := AttrValue(el, key); ok {
			attrs[key] = v
		}
	}
	if w, ok := intAttr(el, "width"); ok {
		attrs["width"] = w
	}
	if v, ok := AttrValue(el, "data-align"); ok {
		attrs["align"] = ValidImageAlign(v)
	}
	return attrs
}

func mathToHTML(attrs map[string]any) Element {
	latex := tiptap.GetAttrString(attrs, "latex")
	display := tiptap.GetAttrBool(attrs, "display")

	class := "math math-inline"
	if display {
		class = "math math-display"
	}
	el := Element{Tag: "span", Attrs: []Attr{{"data-type", "math"}, {"class", class}}}

	out, err := mathml.Convert(latex, display)
	if err != nil {
		slog.Debug("Typeset formula, fallback to source", "latex", latex, "err", err)
		el.Text = latex
		return el
	}
	el.Raw = out
	return el
}

func parseMath(el *html.Node) map[string]any {
	attrs := map[string]any{"display": HasClass(el, "math-display")}
	if ann := FindElement(el, "annotation"); ann != nil {
		attrs["latex"] = strings.TrimSpace(TextOf(ann))
	} else {
		attrs["latex"] = strings.TrimSpace(TextOf(el))
	}
	return attrs
}

func calloutToHTML(attrs map[string]any) Element {
	variant := tiptap.GetAttrString(attrs, "variant")
	emoji := tiptap.GetAttrString(attrs, "emoji")
	el := Element{
		Tag: "div",
		Attrs: []Attr{
			{"data-type", "callout"},
			{"data-variant", variant},
			{"data-emoji", emoji},
			{"role", "note"},
		},
		Inner: &Element{Tag: "div", Attrs: []Attr{{"class", "callout-content"}}, HasChildren: true},
	}
	if emoji != "" {
		el.Prefix = []Element{{
			Tag:   "span",
			Attrs: []Attr{{"class", "callout-emoji"}, {"aria-hidden", "true"}},
			Text:  emoji,
		}}
	}
	return el
}

func toggleToHTML(attrs map[string]any) Element {
	open := tiptap.GetAttrBool(attrs, "open")
	summary := tiptap.GetAttrString(attrs, "summary")
	el := Element{
		Tag: "details",
		Attrs: []Attr{
			{"data-type", "toggle"},
			{"data-open", strconv.FormatBool(open)},
			{"data-summary", summary},
		},
		Prefix: []Element{{Tag: "summary", Text: summary}},
		Inner:  &Element{Tag: "div", HasChildren: true},
	}
	if open {
		el.Attrs = append(el.Attrs, Attr{"open", ""})
	}
	return el
}

func parseToggle(el *html.Node) map[string]any {
	attrs := map[string]any{}
	_, hasOpen := AttrValue(el, "open")
	dataOpen, _ := AttrValue(el, "data-open")
	attrs["open"] = hasOpen || dataOpen == "true"
	if v, ok := AttrValue(el, "data-summary"); ok {
		attrs["summary"] = v
	} else if s := FindElement(el, "summary"); s != nil {
		attrs["summary"] = strings.TrimSpace(TextOf(s))
	}
	return attrs
}

func codeBlockToHTML(attrs map[string]any) Element {
	code := &Element{Tag: "code", HasChildren: true}
	if lang := tiptap.GetAttrString(attrs, "language"); lang != "" {
		code.Attrs = []Attr{{"class", "language-" + lang}}
	}
	return Element{Tag: "pre", Inner: code}
}

func parseCodeBlock(el *html.Node) map[string]any {
	if v, ok := AttrValue(el, "data-language"); ok {
		return map[string]any{"language": v}
	}
	target := el
	if code := FindElement(el, "code"); code != nil {
		target = code
	}
	cls, _ := AttrValue(target, "class")
	for _, c := range strings.Fields(cls) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			return map[string]any{"language": lang}
		}
	}
	return nil
}

func defaultNodes() []NodeSpec {
	return []NodeSpec{
		{
			Name:        tiptap.TypeDoc,
			Content:     ContentModel{Kind: ContentBlock},
			Description: "Raiz do documento.",
		},
		{
			Name:        tiptap.TypeText,
			Groups:      []string{GroupInline},
			Description: "Texto com formatação (marcas).",
		},
		{
			Name:    tiptap.TypeParagraph,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentInline},
			Attrs:   map[string]any{"textAlign": "left"},
			ToHTML: func(attrs map[string]any) Element {
				return Element{Tag: "p", Attrs: blockAlign(attrs), HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "p", GetAttrs: parseTextAlign}},
			Description: "Parágrafo de texto.",
		},
		{
			Name:    tiptap.TypeHeading,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentInline},
			Attrs:   map[string]any{"level": 1, "textAlign": "left"},
			ToHTML: func(attrs map[string]any) Element {
				level := min(max(tiptap.GetAttrInt(attrs, "level"), 1), 6)
				return Element{Tag: "h" + strconv.Itoa(level), Attrs: blockAlign(attrs), HasChildren: true}
			},
			Parse: []ParseRule{
				headingRule(1), headingRule(2), headingRule(3),
				headingRule(4), headingRule(5), headingRule(6),
			},
			Description: "Título de nível 1 a 6.",
		},
		{
			Name:    tiptap.TypeTaskList,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentChildren, Children: []string{tiptap.TypeTaskItem}, Required: true},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "ul", Attrs: []Attr{{"data-type", "taskList"}}, HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "ul", Attrs: map[string]string{"data-type": "taskList"}}},
			Description: "Lista de tarefas.",
		},
		{
			Name:    tiptap.TypeTaskItem,
			Content: ContentModel{Kind: ContentBlock, Required: true},
			Attrs:   map[string]any{"checked": false},
			ToHTML: func(attrs map[string]any) Element {
				return Element{
					Tag: "li",
					Attrs: []Attr{
						{"data-type", "taskItem"},
						{"data-checked", strconv.FormatBool(tiptap.GetAttrBool(attrs, "checked"))},
					},
					HasChildren: true,
				}
			},
			Parse: []ParseRule{{
				Tag:   "li",
				Attrs: map[string]string{"data-type": "taskItem"},
				GetAttrs: func(el *html.Node) map[string]any {
					v, _ := AttrValue(el, "data-checked")
					return map[string]any{"checked": v == "true" || HasClass(el, "checked")}
				},
			}},
			Description: "Item de lista de tarefas com caixa de seleção.",
		},
		{
			Name:    tiptap.TypeBulletList,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentChildren, Children: []string{tiptap.TypeListItem}, Required: true},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "ul", HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "ul"}},
			Description: "Lista com marcadores.",
		},
		{
			Name:    tiptap.TypeOrderedList,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentChildren, Children: []string{tiptap.TypeListItem}, Required: true},
			Attrs:   map[string]any{"start": 1},
			ToHTML: func(attrs map[string]any) Element {
				el := Element{Tag: "ol", HasChildren: true}
				if start := tiptap.GetAttrInt(attrs, "start"); start > 1 {
					el.Attrs = []Attr{{"start", strconv.Itoa(start)}}
				}
				return el
			},
			Parse: []ParseRule{{
				Tag: "ol",
				GetAttrs: func(el *html.Node) map[string]any {
					if start, ok := intAttr(el, "start"); ok {
						return map[string]any{"start": start}
					}
					return nil
				},
			}},
			Description: "Lista numerada.",
		},
		{
			Name:    tiptap.TypeListItem,
			Content: ContentModel{Kind: ContentBlock, Required: true},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "li", HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "li"}},
			Description: "Item de lista.",
		},
		{
			Name:    tiptap.TypeBlockquote,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentBlock, Required: true},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "blockquote", HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "blockquote"}},
			Description: "Citação.",
		},
		{
			Name:        tiptap.TypeCodeBlock,
			Groups:      []string{GroupBlock},
			Content:     ContentModel{Kind: ContentText},
			Attrs:       map[string]any{"language": ""},
			ToHTML:      codeBlockToHTML,
			Parse:       []ParseRule{{Tag: "pre", GetAttrs: parseCodeBlock}},
			Description: "Bloco de código com linguagem opcional.",
		},
		{
			Name:   tiptap.TypeHorizontalRule,
			Groups: []string{GroupBlock},
			Atom:   true,
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "hr"}
			},
			Parse:       []ParseRule{{Tag: "hr"}},
			Description: "Linha divisória.",
		},
		{
			Name:   tiptap.TypeHardBreak,
			Groups: []string{GroupInline},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "br"}
			},
			Parse:       []ParseRule{{Tag: "br"}},
			Description: "Quebra de linha.",
		},
		{
			Name:    tiptap.TypeTable,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentChildren, Children: []string{tiptap.TypeTableRow}, Required: true},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "table", Inner: &Element{Tag: "tbody", HasChildren: true}}
			},
			Parse:       []ParseRule{{Tag: "table"}},
			Description: "Tabela.",
		},
		{
			Name: tiptap.TypeTableRow,
			Content: ContentModel{
				Kind:     ContentChildren,
				Children: []string{tiptap.TypeTableCell, tiptap.TypeTableHeader},
				Required: true,
			},
			ToHTML: func(map[string]any) Element {
				return Element{Tag: "tr", HasChildren: true}
			},
			Parse:       []ParseRule{{Tag: "tr"}},
			Description: "Linha de tabela.",
		},
		{
			Name:        tiptap.TypeTableHeader,
			Content:     ContentModel{Kind: ContentBlock, Required: true},
			Attrs:       map[string]any{"colspan": 1, "rowspan": 1},
			ToHTML:      cellToHTML("th"),
			Parse:       []ParseRule{{Tag: "th", GetAttrs: parseCell}},
			Description: "Célula de cabeçalho.",
		},
		{
			Name:        tiptap.TypeTableCell,
			Content:     ContentModel{Kind: ContentBlock, Required: true},
			Attrs:       map[string]any{"colspan": 1, "rowspan": 1},
			ToHTML:      cellToHTML("td"),
			Parse:       []ParseRule{{Tag: "td", GetAttrs: parseCell}},
			Description: "Célula de tabela.",
		},
		{
			Name:   tiptap.TypeImage,
			Groups: []string{GroupBlock, GroupInline},
			Atom:   true,
			Attrs: map[string]any{
				"src":   "",
				"alt":   "",
				"title": "",
				"align": "center",
				"width": 0,
			},
			ToHTML:      imageToHTML,
			Parse:       []ParseRule{{Tag: "img", Attrs: map[string]string{"src": ""}, GetAttrs: parseImage}},
			Description: "Imagem com alinhamento (left, center, right, none).",
		},
		{
			Name:        tiptap.TypeMath,
			Groups:      []string{GroupBlock, GroupInline},
			Atom:        true,
			Attrs:       map[string]any{"latex": "", "display": false},
			ToHTML:      mathToHTML,
			Parse:       []ParseRule{{Tag: "span", Attrs: map[string]string{"data-type": "math"}, GetAttrs: parseMath}},
			Description: "Fórmula LaTeX exibida como MathML.",
		},
		{
			Name:    tiptap.TypeCallout,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentBlock, Required: true},
			Attrs:   map[string]any{"variant": "info", "emoji": "💡"},
			ToHTML:  calloutToHTML,
			Parse: []ParseRule{{
				Tag:   "div",
				Attrs: map[string]string{"data-type": "callout"},
				GetAttrs: func(el *html.Node) map[string]any {
					attrs := map[string]any{}
					if v, ok := AttrValue(el, "data-variant"); ok {
						attrs["variant"] = v
					}
					if v, ok := AttrValue(el, "data-emoji"); ok {
						attrs["emoji"] = v
					}
					return attrs
				},
			}},
			Description: "Bloco de destaque com variante e emoji.",
		},
		{
			Name:    tiptap.TypeToggle,
			Groups:  []string{GroupBlock},
			Content: ContentModel{Kind: ContentBlock, Required: true},
			Attrs:   map[string]any{"open": false, "summary": "Detalhes"},
			ToHTML:  toggleToHTML,
			Parse: []ParseRule{
				{Tag: "details", Attrs: map[string]string{"data-type": "toggle"}, GetAttrs: parseToggle},
				{Tag: "details", GetAttrs: parseToggle},
			},
			Description: "Bloco recolhível com resumo.",
		},
	}
}
