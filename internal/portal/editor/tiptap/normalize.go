package tiptap

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

var (
	tagRegexp        = regexp.MustCompile(`<!--[\s\S]*?-->|<!?/?[a-zA-Z][^>]*>`)
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

// Normalizer приводит сохраненное значение произвольного формата к валидному документу.
//
// ImportHTML, если задан, используется для строк, которые не являются JSON: вместо удаления тегов
// HTML разбирается с сохранением структуры. При ошибке импорта применяется обычное удаление тегов.
type Normalizer struct {
	ImportHTML func(src string) (Node, error)
}

// Normalize приводит значение к документу с настройками по умолчанию (теги удаляются).
func Normalize(raw any) Node {
	return Normalizer{}.Normalize(raw)
}

// Normalize - тотальная функция: никогда не паникует и всегда возвращает корень "doc".
//
// Порядок правил:
//   - готовое дерево с корнем "doc" возвращается без изменений;
//   - строка разбирается как JSON: валидное дерево возвращается, любое другое значение
//     превращается в текст одного параграфа;
//   - строка, не являющаяся JSON (обычно HTML), очищается от тегов и оборачивается в параграф;
//   - все остальное (nil, объект без type "doc") дает пустой документ.
func (nz Normalizer) Normalize(raw any) (doc Node) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Normalize content panic, fallback to empty document", "panic", r)
			doc = EmptyDoc()
		}
	}()

	switch v := raw.(type) {
	case nil:
		return EmptyDoc()
	case Node:
		if v.Type == TypeDoc {
			return v
		}
	case *Node:
		if v != nil && v.Type == TypeDoc {
			return *v
		}
	case map[string]any:
		if tree, ok := treeFromValue(v); ok {
			return tree
		}
	case string:
		return nz.fromString(v)
	case []byte:
		return nz.fromString(string(v))
	case json.RawMessage:
		return nz.fromString(string(v))
	}
	return EmptyDoc()
}

func (nz Normalizer) fromString(s string) Node {
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nz.fromMarkup(s)
	}

	if tree, ok := treeFromValue(parsed); ok {
		return tree
	}

	switch p := parsed.(type) {
	case nil:
		return EmptyDoc()
	case string:
		return plainTextDoc(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return EmptyDoc()
		}
		return plainTextDoc(string(b))
	}
}

func (nz Normalizer) fromMarkup(s string) Node {
	if nz.ImportHTML != nil && strings.Contains(s, "<") {
		doc, err := nz.ImportHTML(s)
		if err == nil && doc.Type == TypeDoc && len(doc.Content) > 0 {
			return doc
		}
		if err != nil {
			slog.Debug("Legacy HTML import failed, strip tags", "err", err)
		}
	}
	return plainTextDoc(s)
}

// treeFromValue проверяет, что значение является деревом документа, и декодирует его в Node.
func treeFromValue(v any) (Node, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Node{}, false
	}
	if t, _ := m["type"].(string); t != TypeDoc {
		return Node{}, false
	}

	b, err := json.Marshal(m)
	if err != nil {
		return Node{}, false
	}
	var doc Node
	if err := json.Unmarshal(b, &doc); err != nil {
		return Node{}, false
	}
	if doc.Content == nil {
		doc.Content = []Node{}
	}
	return doc, true
}

// StripTags заменяет каждый тег пробелом, схлопывает пробельные символы и обрезает края.
// Структура HTML (списки, заголовки) не восстанавливается, остается только текст.
func StripTags(s string) string {
	s = tagRegexp.ReplaceAllString(s, " ")
	s = whitespaceRegexp.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func plainTextDoc(s string) Node {
	text := StripTags(s)
	if text == "" {
		return EmptyDoc()
	}
	return NewDoc(NewParagraph(NewText(text)))
}
