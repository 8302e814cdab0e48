// Пакет editor импортирует внешние документы (HTML, Markdown) в дерево документа вики.
// Разбор управляется правилами реестра узлов, поэтому импорт понимает ровно то, что умеет
// выводить рендерер, и HTML страницы можно импортировать обратно без потерь.
//
// Основные возможности:
//   - Парсинг HTML из io.Reader (golang.org/x/net/html).
//   - Сопоставление элементов с узлами и метками через правила реестра, неизвестные обертки прозрачны.
//   - Списки задач в разметке GFM (<li><input type="checkbox">) превращаются в taskList.
//   - Markdown переводится в HTML через goldmark (GFM) и импортируется тем же путем.
//   - Результат всегда приводится к схеме (Conform).
package editor

import (
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

var spaceRegexp = regexp.MustCompile(`[ \t\r\n\f]+`)

// skipTags - элементы, содержимое которых никогда не становится текстом документа.
var skipTags = []string{"head", "script", "style", "template", "noscript", "title", "iframe", "object", "svg"}

type importer struct {
	reg *schema.Registry
}

// ImportHTML разбирает HTML в документ. Ошибка возвращается только при ошибке чтения.
func ImportHTML(reg *schema.Registry, r io.Reader) (tiptap.Node, error) {
	rootNode, err := html.Parse(r)
	if err != nil {
		return tiptap.Node{}, err
	}

	im := importer{reg: reg}
	root := getBody(rootNode)
	if root == nil {
		root = rootNode
	}

	doc := tiptap.NewDoc(im.blockChildren(root, nil)...)
	conformed, rep := reg.Conform(doc)
	if len(rep.Dropped) > 0 {
		slog.Debug("Import HTML dropped nodes", "types", rep.Dropped)
	}
	return conformed, nil
}

// ImportHTMLString - ImportHTML для строки. Подходит как tiptap.Normalizer.ImportHTML для старых страниц в HTML.
func ImportHTMLString(reg *schema.Registry) func(src string) (tiptap.Node, error) {
	return func(src string) (tiptap.Node, error) {
		return ImportHTML(reg, strings.NewReader(src))
	}
}

// blockChildren разбирает потомков элемента с блочным содержимым: пробелы между блоками отбрасываются.
func (im importer) blockChildren(el *html.Node, marks []tiptap.Mark) []tiptap.Node {
	var out []tiptap.Node
	for _, n := range im.children(el, marks) {
		if n.IsText() && strings.TrimSpace(n.Text) == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (im importer) children(el *html.Node, marks []tiptap.Mark) []tiptap.Node {
	var out []tiptap.Node
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, im.convert(c, marks)...)
	}
	return out
}

func (im importer) convert(el *html.Node, marks []tiptap.Mark) []tiptap.Node {
	switch el.Type {
	case html.TextNode:
		text := spaceRegexp.ReplaceAllString(el.Data, " ")
		if text == "" {
			return nil
		}
		return []tiptap.Node{tiptap.NewText(text, slices.Clone(marks)...)}
	case html.ElementNode:
	default:
		return im.children(el, marks)
	}

	if slices.Contains(skipTags, el.Data) || getAttrValue("aria-hidden", el.Attr) == "true" {
		return nil
	}
	// <summary> хранится в атрибуте раскрывающегося блока
	if el.Data == "summary" && el.Parent != nil && el.Parent.Data == "details" {
		return nil
	}

	if el.Data == "ul" && isTaskList(el) {
		return []tiptap.Node{im.taskList(el, marks)}
	}

	spec, attrs, ok := im.reg.MatchNode(el)
	if !ok {
		if m := im.reg.MatchMarks(el); len(m) > 0 {
			return im.children(el, append(slices.Clone(marks), m...))
		}
		return im.children(el, marks)
	}

	n := tiptap.Node{Type: spec.Name, Attrs: attrs}
	switch {
	case spec.Atom || spec.Content.Kind == schema.ContentNone:
	case spec.Content.Kind == schema.ContentText:
		if text := codeText(el); text != "" {
			n.Content = []tiptap.Node{tiptap.NewText(text)}
		}
	case spec.Content.Kind == schema.ContentInline:
		n.Content = trimInline(im.children(el, marks))
	default:
		n.Content = im.blockChildren(el, marks)
	}
	return []tiptap.Node{n}
}

// codeText возвращает текст блока кода без завершающего перевода строки, который добавляют генераторы HTML.
func codeText(el *html.Node) string {
	return strings.TrimSuffix(schema.TextOf(el), "\n")
}

// trimInline убирает пробелы в начале и конце строчного содержимого текстового блока.
func trimInline(content []tiptap.Node) []tiptap.Node {
	if len(content) > 0 && content[0].IsText() {
		content[0].Text = strings.TrimLeft(content[0].Text, " ")
	}
	if last := len(content) - 1; last >= 0 && content[last].IsText() {
		content[last].Text = strings.TrimRight(content[last].Text, " ")
	}
	for i := range content {
		if content[i].Type == tiptap.TypeHardBreak && i+1 < len(content) && content[i+1].IsText() {
			content[i+1].Text = strings.TrimLeft(content[i+1].Text, " ")
		}
	}
	return slices.DeleteFunc(content, func(n tiptap.Node) bool { return n.IsText() && n.Text == "" })
}

// isTaskList распознает список задач GFM: каждый пункт начинается с флажка.
func isTaskList(ul *html.Node) bool {
	found := false
	for li := ul.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode {
			continue
		}
		if li.Data != "li" || checkbox(li) == nil {
			return false
		}
		found = true
	}
	return found
}

// checkbox ищет флажок в начале пункта списка (в том числе внутри первого <p>).
func checkbox(li *html.Node) *html.Node {
	var box *html.Node
	iterNodes(li, func(child *html.Node) bool {
		if box != nil {
			return true
		}
		if child.Type == html.ElementNode && child.Data == "input" {
			if getAttrValue("type", child.Attr) == "checkbox" {
				box = child
			}
			return true
		}
		if child.Type == html.TextNode && strings.TrimSpace(child.Data) != "" {
			box = &html.Node{}
			return true
		}
		return false
	})
	if box == nil || box.Data != "input" {
		return nil
	}
	return box
}

func (im importer) taskList(ul *html.Node, marks []tiptap.Mark) tiptap.Node {
	list := tiptap.Node{Type: tiptap.TypeTaskList}
	for li := ul.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode {
			continue
		}
		box := checkbox(li)
		box.Parent.RemoveChild(box)
		item := tiptap.Node{
			Type:    tiptap.TypeTaskItem,
			Attrs:   map[string]any{"checked": attrExists("checked", box.Attr)},
			Content: im.blockChildren(li, marks),
		}
		for i := range item.Content {
			if item.Content[i].IsText() {
				item.Content[i].Text = strings.TrimLeft(item.Content[i].Text, " ")
				break
			}
		}
		list.Content = append(list.Content, item)
	}
	return list
}

func findElementByTagName(rootNode *html.Node, tagName string) *html.Node {
	var el *html.Node
	iterNodes(rootNode, func(child *html.Node) bool {
		if el != nil {
			return true
		}
		if child.Type == html.ElementNode && child.Data == tagName {
			el = child
			return true
		}
		return false
	})
	return el
}

func getBody(rootNode *html.Node) *html.Node {
	return findElementByTagName(rootNode, "body")
}

func iterNodes(node *html.Node, f func(child *html.Node) bool) {
	if f(node) {
		return
	}
	for p := node.FirstChild; p != nil; p = p.NextSibling {
		iterNodes(p, f)
	}
}

func getAttrValue(key string, attrs []html.Attribute) string {
	for _, attr := range attrs {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func attrExists(key string, attrs []html.Attribute) bool {
	return slices.ContainsFunc(attrs, func(attr html.Attribute) bool {
		return attr.Key == key
	})
}
