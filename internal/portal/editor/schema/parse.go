package schema

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// ParseRule сопоставляет HTML элемент с узлом или меткой.
type ParseRule struct {
	Tag string
	// Attrs - обязательные атрибуты. Пустое значение означает, что атрибут просто должен присутствовать.
	Attrs map[string]string
	// Style - обязательное css свойство в атрибуте style.
	Style string
	// GetAttrs извлекает атрибуты узла. Неизвестные атрибуты элемента игнорируются.
	GetAttrs func(el *html.Node) map[string]any
}

// Matches проверяет элемент на соответствие правилу.
func (r ParseRule) Matches(el *html.Node) bool {
	if el == nil || el.Type != html.ElementNode || el.Data != r.Tag {
		return false
	}
	for k, want := range r.Attrs {
		got, ok := AttrValue(el, k)
		if !ok || (want != "" && got != want) {
			return false
		}
	}
	if r.Style != "" {
		style, _ := AttrValue(el, "style")
		if StyleValue(style, r.Style) == "" {
			return false
		}
	}
	return true
}

func (r ParseRule) attrs(el *html.Node) map[string]any {
	if r.GetAttrs == nil {
		return nil
	}
	return r.GetAttrs(el)
}

// MatchNode ищет тип узла для HTML элемента. Правила проверяются в порядке регистрации узлов.
func (r *Registry) MatchNode(el *html.Node) (*NodeSpec, map[string]any, bool) {
	for _, name := range r.nodeOrder {
		spec := r.nodes[name]
		for _, rule := range spec.Parse {
			if rule.Matches(el) {
				return spec, r.Attrs(spec.Name, rule.attrs(el)), true
			}
		}
	}
	return nil, nil, false
}

// MatchMarks возвращает метки, которые задает HTML элемент. Один элемент может задавать несколько меток
// (например <span style="color: red; text-align: center">).
func (r *Registry) MatchMarks(el *html.Node) []tiptap.Mark {
	var marks []tiptap.Mark
	for _, name := range r.markOrder {
		spec := r.marks[name]
		for _, rule := range spec.Parse {
			if !rule.Matches(el) {
				continue
			}
			m := tiptap.Mark{Type: spec.Name}
			if len(spec.Attrs) > 0 {
				m.Attrs = r.Attrs(spec.Name, rule.attrs(el))
			}
			marks = append(marks, m)
			break
		}
	}
	return marks
}

// FromHTML возвращает атрибуты узла указанного типа, разобранные из элемента.
func (r *Registry) FromHTML(typ string, el *html.Node) (map[string]any, bool) {
	spec, ok := r.nodes[typ]
	if !ok {
		return nil, false
	}
	for _, rule := range spec.Parse {
		if rule.Matches(el) {
			return r.Attrs(typ, rule.attrs(el)), true
		}
	}
	return nil, false
}

// AttrValue возвращает значение атрибута HTML элемента.
func AttrValue(el *html.Node, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// StyleValue извлекает значение css свойства из атрибута style.
func StyleValue(style, prop string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// HasClass проверяет наличие класса у элемента.
func HasClass(el *html.Node, class string) bool {
	v, _ := AttrValue(el, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// TextOf возвращает текст поддерева HTML элемента.
func TextOf(el *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(el)
	return sb.String()
}

// FindElement ищет первого потомка с указанным тегом.
func FindElement(el *html.Node, tag string) *html.Node {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := FindElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
