package editor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunidadeds/portal/internal/portal/editor/render"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

func importString(t *testing.T, src string) tiptap.Node {
	t.Helper()
	doc, err := ImportHTML(schema.Default(), strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func types(nodes []tiptap.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Type)
	}
	return out
}

func TestImportHTML(t *testing.T) {
	reg := schema.Default()
	text := tiptap.NewText
	p := tiptap.NewParagraph

	tests := []struct {
		name string
		in   string
		want tiptap.Node
	}{
		{
			name: "heading and marks",
			in:   "<h2>Título</h2>\n<p>Olá <strong>mundo</strong></p>",
			want: tiptap.NewDoc(
				reg.Create(tiptap.TypeHeading, map[string]any{"level": 2}, text("Título")),
				p(text("Olá "), text("mundo", tiptap.Mark{Type: tiptap.MarkBold})),
			),
		},
		{
			name: "hostile content dropped",
			in:   `<script>alert(1)</script><p onclick="x()">ok</p><iframe src="https://evil"></iframe>`,
			want: tiptap.NewDoc(p(text("ok"))),
		},
		{
			name: "unknown wrappers are transparent",
			in:   `<div><section><p>a</p></section></div><font color="red">b</font>`,
			want: tiptap.NewDoc(p(text("a")), p(text("b"))),
		},
		{
			name: "whitespace collapsed",
			in:   "<p>\n  um   <em>dois</em>\n</p>",
			want: tiptap.NewDoc(p(text("um "), text("dois", tiptap.Mark{Type: tiptap.MarkItalic}))),
		},
		{
			name: "line break",
			in:   "<p>a<br>\n  b</p>",
			want: tiptap.NewDoc(p(text("a"), tiptap.NewNode(tiptap.TypeHardBreak, nil), text("b"))),
		},
		{
			name: "code block keeps text",
			in:   "<pre><code class=\"language-go\">if a &lt; b {\n}\n</code></pre>",
			want: tiptap.NewDoc(reg.Create(tiptap.TypeCodeBlock, map[string]any{"language": "go"}, text("if a < b {\n}"))),
		},
		{
			name: "plain text",
			in:   "só texto",
			want: tiptap.NewDoc(p(text("só texto"))),
		},
		{
			name: "empty",
			in:   "",
			want: tiptap.EmptyDoc(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := importString(t, tt.in)
			r := render.New(reg)
			assert.Equal(t, r.Render(tt.want), r.Render(got))
			assert.Equal(t, types(tt.want.Content), types(got.Content))
		})
	}
}

func TestImportGFMTaskList(t *testing.T) {
	doc := importString(t, `<ul>
<li><input checked="" disabled="" type="checkbox"> feito</li>
<li><p><input disabled="" type="checkbox"> pendente</p></li>
</ul>`)

	require.Equal(t, []string{tiptap.TypeTaskList}, types(doc.Content))
	items := doc.Content[0].Content
	require.Len(t, items, 2)
	assert.True(t, tiptap.GetAttrBool(items[0].Attrs, "checked"))
	assert.False(t, tiptap.GetAttrBool(items[1].Attrs, "checked"))
	assert.Equal(t, "feito", items[0].TextContent())
	assert.Equal(t, "pendente", items[1].TextContent())
}

func TestImportRenderedHTMLRoundTrip(t *testing.T) {
	reg := schema.Default()
	text := tiptap.NewText
	p := tiptap.NewParagraph
	node := reg.Create

	doc := tiptap.NewDoc(
		node(tiptap.TypeHeading, map[string]any{"level": 3}, text("Seção")),
		p(
			text("a "),
			text("link", tiptap.Mark{Type: tiptap.MarkLink, Attrs: map[string]any{"href": "https://dados.br"}}),
			text(" "),
			text("cor", tiptap.Mark{Type: tiptap.MarkColor, Attrs: map[string]any{"color": "#00ff00"}}),
			node(tiptap.TypeMath, map[string]any{"latex": "x^2"}),
		),
		node(tiptap.TypeOrderedList, map[string]any{"start": 2}, node(tiptap.TypeListItem, nil, p(text("dois")))),
		node(tiptap.TypeTaskList, nil, node(tiptap.TypeTaskItem, map[string]any{"checked": true}, p(text("feito")))),
		node(tiptap.TypeTable, nil,
			node(tiptap.TypeTableRow, nil, node(tiptap.TypeTableHeader, nil, p(text("h")))),
			node(tiptap.TypeTableRow, nil, node(tiptap.TypeTableCell, nil, p(text("c")))),
		),
		node(tiptap.TypeImage, map[string]any{"src": "https://cdn.dados.br/a.png", "alt": "A", "align": "right"}),
		node(tiptap.TypeMath, map[string]any{"latex": `\frac{1}{2}`, "display": true}),
		node(tiptap.TypeCallout, map[string]any{"variant": "danger"}, p(text("perigo"))),
		node(tiptap.TypeToggle, map[string]any{"open": true, "summary": "Mais"}, p(text("dentro"))),
		node(tiptap.TypeCodeBlock, map[string]any{"language": "sql"}, text("select 1;")),
	)

	r := render.New(reg)
	html := r.Render(doc)
	imported := importString(t, html)

	assert.Equal(t, html, r.Render(imported))
	assert.Equal(t, types(doc.Content), types(imported.Content))
	assert.Equal(t, `\frac{1}{2}`, tiptap.GetAttrString(imported.Content[6].Attrs, "latex"))
	assert.Equal(t, "danger", tiptap.GetAttrString(imported.Content[7].Attrs, "variant"))
	assert.Equal(t, "Mais", tiptap.GetAttrString(imported.Content[8].Attrs, "summary"))
}

func TestImportMarkdown(t *testing.T) {
	src := "# Título\n\n" +
		"- [x] feito\n- [ ] pendente\n\n" +
		"| a | b |\n|---|---|\n| 1 | 2 |\n\n" +
		"```go\nfmt.Println()\n```\n\n" +
		"$$x^2$$\n\n" +
		"~~riscado~~ e **negrito**\n\n" +
		"> citação\n"

	doc, err := ImportMarkdown(schema.Default(), []byte(src))
	require.NoError(t, err)

	require.Equal(t, []string{
		tiptap.TypeHeading, tiptap.TypeTaskList, tiptap.TypeTable, tiptap.TypeCodeBlock,
		tiptap.TypeMath, tiptap.TypeParagraph, tiptap.TypeBlockquote,
	}, types(doc.Content))

	table := doc.Content[2]
	require.Len(t, table.Content, 2)
	assert.Equal(t, []string{tiptap.TypeTableHeader, tiptap.TypeTableHeader}, types(table.Content[0].Content))
	assert.Equal(t, []string{tiptap.TypeTableCell, tiptap.TypeTableCell}, types(table.Content[1].Content))

	assert.Equal(t, "go", tiptap.GetAttrString(doc.Content[3].Attrs, "language"))
	assert.Equal(t, "fmt.Println()", doc.Content[3].TextContent())
	assert.Equal(t, "x^2", tiptap.GetAttrString(doc.Content[4].Attrs, "latex"))
	assert.True(t, tiptap.GetAttrBool(doc.Content[4].Attrs, "display"))

	para := doc.Content[5].Content
	require.Len(t, para, 3)
	assert.True(t, para[0].HasMark(tiptap.MarkStrike))
	assert.True(t, para[2].HasMark(tiptap.MarkBold))
}

func TestImportHTMLStringAsNormalizer(t *testing.T) {
	nz := tiptap.Normalizer{ImportHTML: ImportHTMLString(schema.Default())}

	doc := nz.Normalize("<ul><li>um</li><li>dois</li></ul>")
	require.Equal(t, []string{tiptap.TypeBulletList}, types(doc.Content))
	assert.Len(t, doc.Content[0].Content, 2)

	doc = tiptap.Normalize("<ul><li>um</li><li>dois</li></ul>")
	assert.Equal(t, "um dois", doc.TextContent())
}
