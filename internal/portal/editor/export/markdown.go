// Пакет export выгружает документ вики в Markdown (GFM) для скачивания страниц и зеркалирования в git.
//
// Основные возможности:
//   - Заголовки, списки, списки задач, цитаты, блоки кода, таблицы и разделители через github.com/nao1215/markdown.
//   - Формулы выводятся как $...$ и $$...$$.
//   - Выноска выводится цитатой с эмодзи, раскрывающийся блок тегом <details>.
//   - Форматирование без аналога в Markdown (подчеркивание, цвет, выделение) отбрасывается, текст сохраняется.
package export

import (
	"bytes"
	"html"
	"io"
	"strings"

	md "github.com/nao1215/markdown"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

var (
	textEscaper = strings.NewReplacer(
		`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", `\<`, "$", `\$`,
	)
	cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")
)

// ToMarkdown пишет документ в w. Значение сначала нормализуется и приводится к схеме реестра по умолчанию.
func ToMarkdown(w io.Writer, doc tiptap.Node) error {
	conformed, _ := schema.Default().Conform(tiptap.Normalize(doc))

	m := md.NewMarkdown(w)
	writeBlocks(m, conformed.Content)
	return m.Build()
}

// String возвращает Markdown документа.
func String(doc tiptap.Node) string {
	var buf bytes.Buffer
	// запись в bytes.Buffer не возвращает ошибок
	_ = ToMarkdown(&buf, doc)
	return buf.String()
}

func writeBlocks(m *md.Markdown, blocks []tiptap.Node) {
	for _, n := range blocks {
		if writeBlock(m, n) {
			m.PlainText("")
		}
	}
}

func writeBlock(m *md.Markdown, n tiptap.Node) bool {
	switch n.Type {
	case tiptap.TypeParagraph:
		text := inline(n.Content)
		if text == "" {
			return false
		}
		m.PlainText(text)
	case tiptap.TypeHeading:
		heading(m, tiptap.GetAttrInt(n.Attrs, "level"), inline(n.Content))
	case tiptap.TypeBulletList:
		m.BulletList(items(n, "  ")...)
	case tiptap.TypeOrderedList:
		m.OrderedList(items(n, "   ")...)
	case tiptap.TypeTaskList:
		var set []md.CheckBoxSet
		for _, item := range n.Content {
			set = append(set, md.CheckBoxSet{
				Checked: tiptap.GetAttrBool(item.Attrs, "checked"),
				Text:    itemText(item, "      "),
			})
		}
		m.CheckBox(set)
	case tiptap.TypeBlockquote:
		m.PlainText(quote(blocksString(n.Content)))
	case tiptap.TypeCallout:
		body := blocksString(n.Content)
		if emoji := tiptap.GetAttrString(n.Attrs, "emoji"); emoji != "" {
			body = emoji + " " + body
		}
		m.PlainText(quote(body))
	case tiptap.TypeToggle:
		open := ""
		if tiptap.GetAttrBool(n.Attrs, "open") {
			open = " open"
		}
		m.PlainText("<details" + open + ">")
		m.PlainText("<summary>" + html.EscapeString(tiptap.GetAttrString(n.Attrs, "summary")) + "</summary>")
		m.PlainText("")
		m.PlainText(blocksString(n.Content))
		m.PlainText("")
		m.PlainText("</details>")
	case tiptap.TypeCodeBlock:
		m.CodeBlocks(md.SyntaxHighlight(tiptap.GetAttrString(n.Attrs, "language")), n.TextContent())
	case tiptap.TypeHorizontalRule:
		m.HorizontalRule()
	case tiptap.TypeTable:
		writeTable(m, n)
	case tiptap.TypeImage:
		src := tiptap.GetAttrString(n.Attrs, "src")
		if src == "" {
			return false
		}
		m.PlainText(md.Image(textEscaper.Replace(tiptap.GetAttrString(n.Attrs, "alt")), src))
	case tiptap.TypeMath:
		m.PlainText("$$" + tiptap.GetAttrString(n.Attrs, "latex") + "$$")
	default:
		return false
	}
	return true
}

func heading(m *md.Markdown, level int, text string) {
	switch level {
	case 2:
		m.H2(text)
	case 3:
		m.H3(text)
	case 4:
		m.H4(text)
	case 5:
		m.H5(text)
	case 6:
		m.H6(text)
	default:
		m.H1(text)
	}
}

func writeTable(m *md.Markdown, table tiptap.Node) {
	var rows [][]string
	width := 0
	for _, row := range table.Content {
		var cells []string
		for _, cell := range row.Content {
			cells = append(cells, cellText(cell))
		}
		width = max(width, len(cells))
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}
	for i := range rows {
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
	}

	m.CustomTable(md.TableSet{
		Header: rows[0],
		Rows:   rows[1:],
	}, md.TableOptions{
		AutoWrapText: false,
	})
}

// cellText склеивает блоки ячейки в одну строку, разделяя их переводом строки HTML.
func cellText(cell tiptap.Node) string {
	var parts []string
	for _, block := range cell.Content {
		if text := inline(block.Content); text != "" {
			parts = append(parts, cellEscaper.Replace(text))
		}
	}
	return strings.Join(parts, "<br>")
}

func items(list tiptap.Node, indent string) []string {
	var out []string
	for _, item := range list.Content {
		out = append(out, itemText(item, indent))
	}
	return out
}

// itemText выводит пункт списка: первый текстовый блок в строку маркера, остальные блоки с отступом.
func itemText(item tiptap.Node, indent string) string {
	content := item.Content
	var first string
	if len(content) > 0 && content[0].Type == tiptap.TypeParagraph {
		first = inline(content[0].Content)
		content = content[1:]
	}
	if len(content) == 0 {
		return first
	}

	rest := strings.Split(blocksString(content), "\n")
	for i, line := range rest {
		if line != "" {
			rest[i] = indent + line
		}
	}
	return first + "\n" + strings.Join(rest, "\n")
}

func blocksString(blocks []tiptap.Node) string {
	var buf bytes.Buffer
	m := md.NewMarkdown(&buf)
	writeBlocks(m, blocks)
	_ = m.Build()
	return strings.Trim(buf.String(), "\n ")
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

func inline(content []tiptap.Node) string {
	var sb strings.Builder
	for _, n := range content {
		switch n.Type {
		case tiptap.TypeText:
			sb.WriteString(markText(n))
		case tiptap.TypeHardBreak:
			sb.WriteString("<br>")
		case tiptap.TypeMath:
			latex := tiptap.GetAttrString(n.Attrs, "latex")
			if tiptap.GetAttrBool(n.Attrs, "display") {
				sb.WriteString("$$" + latex + "$$")
			} else {
				sb.WriteString("$" + latex + "$")
			}
		case tiptap.TypeImage:
			sb.WriteString(md.Image(textEscaper.Replace(tiptap.GetAttrString(n.Attrs, "alt")), tiptap.GetAttrString(n.Attrs, "src")))
		}
	}
	return sb.String()
}

// markText выводит текст с марками. Пробелы по краям выносятся за разметку, иначе CommonMark ее не распознает.
func markText(n tiptap.Node) string {
	core := strings.TrimLeft(n.Text, " ")
	lead := n.Text[:len(n.Text)-len(core)]
	trimmed := strings.TrimRight(core, " ")
	trail := core[len(trimmed):]
	core = trimmed
	if core == "" {
		return n.Text
	}

	if n.HasMark(tiptap.MarkCode) {
		core = md.Code(core)
	} else {
		core = textEscaper.Replace(core)
	}
	if n.HasMark(tiptap.MarkItalic) {
		core = md.Italic(core)
	}
	if n.HasMark(tiptap.MarkBold) {
		core = md.Bold(core)
	}
	if n.HasMark(tiptap.MarkStrike) {
		core = md.Strikethrough(core)
	}
	if link, ok := n.Mark(tiptap.MarkLink); ok {
		if href := tiptap.GetAttrString(link.Attrs, "href"); href != "" {
			core = md.Link(core, href)
		}
	}
	return lead + core + trail
}
