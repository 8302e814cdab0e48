package editor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Сырой HTML пропускается: в дерево попадают только элементы, которые знает реестр.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

var displayMathRegexp = regexp.MustCompile(`^\$\$([\s\S]+)\$\$$`)

// ImportMarkdown разбирает Markdown (GFM: таблицы, списки задач, зачеркивание). Параграф вида $$...$$
// становится блочной формулой.
func ImportMarkdown(reg *schema.Registry, src []byte) (tiptap.Node, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return tiptap.Node{}, err
	}
	doc, err := ImportHTML(reg, &buf)
	if err != nil {
		return tiptap.Node{}, err
	}
	liftDisplayMath(reg, &doc)
	return doc, nil
}

func liftDisplayMath(reg *schema.Registry, n *tiptap.Node) {
	for i := range n.Content {
		child := &n.Content[i]
		if child.Type != tiptap.TypeParagraph {
			liftDisplayMath(reg, child)
			continue
		}
		if len(child.Content) != 1 || !child.Content[0].IsText() || len(child.Content[0].Marks) > 0 {
			continue
		}
		if m := displayMathRegexp.FindStringSubmatch(strings.TrimSpace(child.Content[0].Text)); m != nil {
			*child = reg.Create(tiptap.TypeMath, map[string]any{"latex": strings.TrimSpace(m[1]), "display": true})
		}
	}
}
