// Пакет tiptap описывает дерево документа в формате TipTap/ProseMirror JSON, в котором хранится
// содержимое вики-страниц, а также нормализацию любых сохраненных ранее значений в это дерево.
//
// Основные возможности:
//   - Типы Node и Mark, совпадающие с JSON-форматом редактора ({type, attrs, content, marks, text}).
//   - Сохранение документа в jsonb колонку (driver.Valuer, sql.Scanner, GormDataType).
//   - Тотальная нормализация старых форматов (HTML строки, JSON в строке, null) в валидный документ.
package tiptap

import (
	"database/sql/driver"
	"encoding/json"
)

// Типы нод документа.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeText           = "text"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeTaskList       = "taskList"
	TypeTaskItem       = "taskItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeHorizontalRule = "horizontalRule"
	TypeHardBreak      = "hardBreak"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableHeader    = "tableHeader"
	TypeTableCell      = "tableCell"
	TypeImage          = "image"
	TypeMath           = "math"
	TypeCallout        = "callout"
	TypeToggle         = "toggle"
)

// Типы марок (форматирование текста).
const (
	MarkLink        = "link"
	MarkBold        = "bold"
	MarkItalic      = "italic"
	MarkUnderline   = "underline"
	MarkStrike      = "strike"
	MarkCode        = "code"
	MarkHighlight   = "highlight"
	MarkColor       = "color"
	MarkSuperscript = "superscript"
	MarkSubscript   = "subscript"
	MarkTextAlign   = "textAlign"
)

// Node представляет узел в дереве документа.
// Корневой узел всегда имеет тип "doc", текст хранится только в листьях типа "text".
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Mark представляет форматирование текстовой ноды (bold, italic, link и т.д.).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// MarshalJSON сериализует ноду. У корня "doc" поле content выводится всегда, даже пустое.
func (n Node) MarshalJSON() ([]byte, error) {
	type plain Node
	if n.Type != TypeDoc {
		return json.Marshal(plain(n))
	}

	content := n.Content
	if content == nil {
		content = []Node{}
	}
	return json.Marshal(struct {
		Type    string         `json:"type"`
		Attrs   map[string]any `json:"attrs,omitempty"`
		Content []Node         `json:"content"`
	}{n.Type, n.Attrs, content})
}

// Value реализует интерфейс driver.Valuer для сохранения документа в PostgreSQL JSONB.
// В базу всегда пишется валидный документ: все, что не является корнем "doc", превращается в пустой документ.
func (n Node) Value() (driver.Value, error) {
	b, err := json.Marshal(Normalize(n))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ScanNormalizer применяется к значениям колонок при чтении из базы. Настраивается один раз при старте
// (например, импорт старых страниц в HTML).
var ScanNormalizer Normalizer

// Scan реализует интерфейс sql.Scanner. Значение колонки прогоняется через нормализатор,
// поэтому ошибка не возвращается никогда.
func (n *Node) Scan(value interface{}) error {
	*n = ScanNormalizer.Normalize(value)
	return nil
}

// GormDataType указывает GORM использовать тип JSONB для PostgreSQL колонок.
func (Node) GormDataType() string {
	return "jsonb"
}

// IsText возвращает true для текстовых листьев.
func (n Node) IsText() bool {
	return n.Type == TypeText
}

// HasMark проверяет наличие марки указанного типа у текстовой ноды.
func (n Node) HasMark(markType string) bool {
	for _, m := range n.Marks {
		if m.Type == markType {
			return true
		}
	}
	return false
}

// Mark возвращает марку указанного типа.
func (n Node) Mark(markType string) (Mark, bool) {
	for _, m := range n.Marks {
		if m.Type == markType {
			return m, true
		}
	}
	return Mark{}, false
}
