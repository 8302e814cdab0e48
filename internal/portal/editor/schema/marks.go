package schema

import (
	"golang.org/x/net/html"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

func simpleMark(name string, rank int, tag string, description string, tags ...string) MarkSpec {
	rules := []ParseRule{{Tag: tag}}
	for _, t := range tags {
		rules = append(rules, ParseRule{Tag: t})
	}
	return MarkSpec{
		Name: name,
		Rank: rank,
		ToHTML: func(map[string]any) Element {
			return Element{Tag: tag, HasChildren: true}
		},
		Parse:       rules,
		Description: description,
	}
}

func defaultMarks() []MarkSpec {
	return []MarkSpec{
		{
			Name:  tiptap.MarkLink,
			Rank:  0,
			Attrs: map[string]any{"href": "", "target": ""},
			ToHTML: func(attrs map[string]any) Element {
				el := Element{Tag: "a", Attrs: []Attr{{"href", tiptap.GetAttrString(attrs, "href")}}, HasChildren: true}
				if tiptap.GetAttrString(attrs, "target") == "_blank" {
					el.Attrs = append(el.Attrs, Attr{"target", "_blank"})
				}
				el.Attrs = append(el.Attrs, Attr{"rel", "nofollow"})
				return el
			},
			Parse: []ParseRule{{
				Tag:   "a",
				Attrs: map[string]string{"href": ""},
				GetAttrs: func(el *html.Node) map[string]any {
					href, _ := AttrValue(el, "href")
					target, _ := AttrValue(el, "target")
					return map[string]any{"href": href, "target": target}
				},
			}},
			Description: "Link.",
		},
		{
			Name:  tiptap.MarkTextAlign,
			Rank:  1,
			Attrs: map[string]any{"align": "left"},
			ToHTML: func(attrs map[string]any) Element {
				return Element{
					Tag:         "span",
					Attrs:       []Attr{{"data-text-align", tiptap.GetAttrString(attrs, "align")}},
					HasChildren: true,
				}
			},
			Parse: []ParseRule{{
				Tag:   "span",
				Attrs: map[string]string{"data-text-align": ""},
				GetAttrs: func(el *html.Node) map[string]any {
					v, _ := AttrValue(el, "data-text-align")
					return map[string]any{"align": v}
				},
			}},
			Description: "Alinhamento de texto.",
		},
		{
			Name:  tiptap.MarkColor,
			Rank:  2,
			Attrs: map[string]any{"color": ""},
			ToHTML: func(attrs map[string]any) Element {
				return Element{
					Tag:         "span",
					Attrs:       []Attr{{"style", "color: " + tiptap.GetAttrString(attrs, "color")}},
					HasChildren: true,
				}
			},
			Parse: []ParseRule{{
				Tag:   "span",
				Style: "color",
				GetAttrs: func(el *html.Node) map[string]any {
					style, _ := AttrValue(el, "style")
					return map[string]any{"color": StyleValue(style, "color")}
				},
			}},
			Description: "Cor do texto.",
		},
		{
			Name:  tiptap.MarkHighlight,
			Rank:  3,
			Attrs: map[string]any{"color": ""},
			ToHTML: func(attrs map[string]any) Element {
				el := Element{Tag: "mark", HasChildren: true}
				if c := tiptap.GetAttrString(attrs, "color"); c != "" {
					el.Attrs = []Attr{{"data-color", c}, {"style", "background-color: " + c}}
				}
				return el
			},
			Parse: []ParseRule{{
				Tag: "mark",
				GetAttrs: func(el *html.Node) map[string]any {
					if v, ok := AttrValue(el, "data-color"); ok {
						return map[string]any{"color": v}
					}
					style, _ := AttrValue(el, "style")
					return map[string]any{"color": StyleValue(style, "background-color")}
				},
			}},
			Description: "Marca-texto.",
		},
		simpleMark(tiptap.MarkBold, 4, "strong", "Negrito.", "b"),
		simpleMark(tiptap.MarkItalic, 5, "em", "Itálico.", "i"),
		simpleMark(tiptap.MarkUnderline, 6, "u", "Sublinhado."),
		simpleMark(tiptap.MarkStrike, 7, "s", "Tachado.", "del", "strike"),
		simpleMark(tiptap.MarkSuperscript, 8, "sup", "Sobrescrito."),
		simpleMark(tiptap.MarkSubscript, 9, "sub", "Subscrito."),
		simpleMark(tiptap.MarkCode, 10, "code", "Código em linha."),
	}
}
