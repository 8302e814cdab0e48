package tiptap

import (
	"bytes"
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// GetAttrString безопасно извлекает строковый атрибут из map.
func GetAttrString(attrs map[string]any, key string) string {
	if attrs == nil {
		return ""
	}
	switch v := attrs[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// GetAttrInt безопасно извлекает целочисленный атрибут из map.
func GetAttrInt(attrs map[string]any, key string) int {
	if attrs == nil {
		return 0
	}

	switch v := attrs[key].(type) {
	// Может быть float64 из JSON
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
		return i
	}
	return 0
}

// GetAttrBool безопасно извлекает булевый атрибут из map.
func GetAttrBool(attrs map[string]any, key string) bool {
	if attrs == nil {
		return false
	}
	switch v := attrs[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// EmptyDoc возвращает пустой документ {type:"doc", content:[]}.
func EmptyDoc() Node {
	return Node{Type: TypeDoc, Content: []Node{}}
}

// NewDoc собирает документ из блоков.
func NewDoc(blocks ...Node) Node {
	doc := EmptyDoc()
	doc.Content = append(doc.Content, blocks...)
	return doc
}

// NewText создает текстовую ноду с марками.
func NewText(text string, marks ...Mark) Node {
	n := Node{Type: TypeText, Text: text}
	if len(marks) > 0 {
		n.Marks = marks
	}
	return n
}

// NewParagraph создает параграф с указанным inline содержимым.
func NewParagraph(inline ...Node) Node {
	p := Node{Type: TypeParagraph}
	if len(inline) > 0 {
		p.Content = inline
	}
	return p
}

// NewNode создает ноду с атрибутами и содержимым.
func NewNode(nodeType string, attrs map[string]any, content ...Node) Node {
	n := Node{Type: nodeType, Attrs: attrs}
	if len(content) > 0 {
		n.Content = content
	}
	return n
}

// Clone выполняет глубокое копирование ноды.
func (n Node) Clone() Node {
	c := Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		c.Attrs = maps.Clone(n.Attrs)
	}
	if n.Marks != nil {
		c.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			c.Marks[i] = Mark{Type: m.Type}
			if m.Attrs != nil {
				c.Marks[i].Attrs = maps.Clone(m.Attrs)
			}
		}
	}
	if n.Content != nil {
		c.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = child.Clone()
		}
	}
	return c
}

// TextContent возвращает весь текст поддерева без разметки.
func (n Node) TextContent() string {
	if n.IsText() {
		return n.Text
	}
	var sb strings.Builder
	for _, child := range n.Content {
		sb.WriteString(child.TextContent())
	}
	return sb.String()
}

// Walk обходит дерево в глубину. Если fn возвращает false, потомки ноды не посещаются.
func (n Node) Walk(fn func(node Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n Node) walk(fn func(node Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Content {
		child.walk(fn, depth+1)
	}
}

// Equal сравнивает два дерева по их JSON представлению (ключи атрибутов сортируются encoding/json).
func Equal(a, b Node) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// SameMarks сравнивает наборы марок без учета порядка.
func SameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for _, ma := range a {
		found := false
		for _, mb := range b {
			if ma.Type == mb.Type && attrsEqual(ma.Attrs, mb.Attrs) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return bytes.Equal(ab, bb)
}
