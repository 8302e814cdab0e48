package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

func blockTypes(doc tiptap.Node) []string {
	var out []string
	for _, n := range doc.Content {
		out = append(out, n.Type)
	}
	return out
}

func TestToggleHeading(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("um")), p(text("dois"))), Options{})
	require.True(t, e.Select(Range(pos(0, 0), pos(4, 1))))

	require.True(t, e.Exec(ToggleHeading{Level: 2}))
	doc := e.Doc()
	for _, n := range doc.Content {
		assert.Equal(t, tiptap.TypeHeading, n.Type)
		assert.Equal(t, 2, tiptap.GetAttrInt(n.Attrs, "level"))
	}
	assert.True(t, e.IsActive(tiptap.TypeHeading, map[string]any{"level": 2}))

	require.True(t, e.Exec(ToggleHeading{Level: 3}))
	assert.Equal(t, 3, tiptap.GetAttrInt(e.Doc().Content[1].Attrs, "level"))

	require.True(t, e.Exec(ToggleHeading{Level: 3}))
	assert.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeParagraph}, blockTypes(e.Doc()))
	assert.Equal(t, "umdois", e.Doc().TextContent())

	assert.False(t, e.Exec(SetParagraph{}), "already paragraphs")
}

func TestSetBlockTypeKeepsTextAlign(t *testing.T) {
	reg := schema.Default()
	e := New(reg, tiptap.NewDoc(reg.Create(tiptap.TypeParagraph, map[string]any{"textAlign": "center"}, text("x"))), Options{})

	require.True(t, e.Exec(ToggleHeading{Level: 1}))
	assert.Equal(t, "center", tiptap.GetAttrString(e.Doc().Content[0].Attrs, "textAlign"))
}

func TestToggleCodeBlock(t *testing.T) {
	doc := tiptap.NewDoc(p(text("a", bold()), tiptap.NewNode(tiptap.TypeHardBreak, nil), text("b")))
	e := New(schema.Default(), doc, Options{})

	require.True(t, e.Exec(ToggleCodeBlock{Language: "go"}))
	code := e.Doc().Content[0]
	assert.Equal(t, tiptap.TypeCodeBlock, code.Type)
	assert.Equal(t, "go", tiptap.GetAttrString(code.Attrs, "language"))
	require.Len(t, code.Content, 1)
	assert.Equal(t, "a\nb", code.Content[0].Text)
	assert.Empty(t, code.Content[0].Marks)

	// метки в блоке кода не ставятся
	require.True(t, e.Select(Range(pos(0, 0), pos(1, 0))))
	assert.False(t, e.Exec(ToggleMark{Mark: tiptap.MarkItalic}))

	require.True(t, e.Select(Cursor(3, 0)))
	require.True(t, e.Exec(SplitBlock{}))
	assert.Equal(t, "a\nb\n", e.Doc().TextContent())

	require.True(t, e.Exec(ToggleCodeBlock{}))
	para := e.Doc().Content[0]
	assert.Equal(t, tiptap.TypeParagraph, para.Type)
	assert.Equal(t, []string{tiptap.TypeText, tiptap.TypeHardBreak, tiptap.TypeText, tiptap.TypeHardBreak},
		blockTypes(para))
}

func TestToggleListTransitions(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("um")), p(text("dois"))), Options{})
	require.True(t, e.Select(Range(pos(0, 0), pos(4, 1))))

	require.True(t, e.Exec(ToggleList{List: tiptap.TypeBulletList}))
	doc := e.Doc()
	require.Equal(t, []string{tiptap.TypeBulletList}, blockTypes(doc))
	assert.Equal(t, []string{tiptap.TypeListItem, tiptap.TypeListItem}, blockTypes(doc.Content[0]))
	assert.Equal(t, Range(pos(0, 0, 0, 0), pos(4, 0, 1, 0)), e.Selection())
	assert.True(t, e.IsActive(tiptap.TypeBulletList, nil))

	require.True(t, e.Exec(ToggleList{List: tiptap.TypeOrderedList}))
	doc = e.Doc()
	require.Equal(t, []string{tiptap.TypeOrderedList}, blockTypes(doc))
	assert.Equal(t, "umdois", doc.TextContent())

	require.True(t, e.Exec(ToggleList{List: tiptap.TypeTaskList}))
	doc = e.Doc()
	require.Equal(t, []string{tiptap.TypeTaskList}, blockTypes(doc))
	assert.Equal(t, []string{tiptap.TypeTaskItem, tiptap.TypeTaskItem}, blockTypes(doc.Content[0]))

	require.True(t, e.Exec(ToggleList{List: tiptap.TypeTaskList}))
	doc = e.Doc()
	assert.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeParagraph}, blockTypes(doc))
	assert.Equal(t, Range(pos(0, 0), pos(4, 1)), e.Selection())
}

func TestToggleListLiftsOnlySelectedItems(t *testing.T) {
	reg := schema.Default()
	item := func(s string) tiptap.Node { return reg.Create(tiptap.TypeListItem, nil, p(text(s))) }
	doc := tiptap.NewDoc(reg.Create(tiptap.TypeOrderedList, nil, item("a"), item("b"), item("c")))
	e := New(reg, doc, Options{})
	require.True(t, e.Select(Cursor(0, 0, 1, 0)))

	require.True(t, e.Exec(ToggleList{List: tiptap.TypeOrderedList}))
	out := e.Doc()
	require.Equal(t, []string{tiptap.TypeOrderedList, tiptap.TypeParagraph, tiptap.TypeOrderedList}, blockTypes(out))
	assert.Equal(t, "b", out.Content[1].TextContent())
	assert.Equal(t, Cursor(0, 1), e.Selection())
}

func TestToggleBlockquote(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("um")), p(text("dois")), p(text("três"))), Options{})
	require.True(t, e.Select(Range(pos(1, 0), pos(1, 1))))

	require.True(t, e.Exec(ToggleBlockquote{}))
	doc := e.Doc()
	require.Equal(t, []string{tiptap.TypeBlockquote, tiptap.TypeParagraph}, blockTypes(doc))
	assert.Len(t, doc.Content[0].Content, 2)
	assert.Equal(t, Range(pos(1, 0, 0), pos(1, 0, 1)), e.Selection())

	require.True(t, e.Exec(ToggleBlockquote{}))
	assert.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeParagraph, tiptap.TypeParagraph}, blockTypes(e.Doc()))
}

func TestSplitBlock(t *testing.T) {
	reg := schema.Default()

	t.Run("middle of paragraph", func(t *testing.T) {
		e := New(reg, tiptap.NewDoc(p(text("abcd"))), Options{})
		require.True(t, e.Select(Cursor(2, 0)))
		require.True(t, e.Exec(SplitBlock{}))

		doc := e.Doc()
		require.Len(t, doc.Content, 2)
		assert.Equal(t, "ab", doc.Content[0].TextContent())
		assert.Equal(t, "cd", doc.Content[1].TextContent())
		assert.Equal(t, Cursor(0, 1), e.Selection())
	})

	t.Run("end of heading", func(t *testing.T) {
		e := New(reg, tiptap.NewDoc(reg.Create(tiptap.TypeHeading, map[string]any{"level": 1}, text("T"))), Options{})
		require.True(t, e.Select(Cursor(1, 0)))
		require.True(t, e.Exec(SplitBlock{}))
		assert.Equal(t, []string{tiptap.TypeHeading, tiptap.TypeParagraph}, blockTypes(e.Doc()))
	})

	t.Run("range selection", func(t *testing.T) {
		e := New(reg, tiptap.NewDoc(p(text("abcd"))), Options{})
		require.True(t, e.Select(Range(pos(1, 0), pos(2, 0))))
		assert.False(t, e.Exec(SplitBlock{}))
	})
}

func TestDeleteText(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("abcd"))), Options{})
	require.True(t, e.Select(Cursor(4, 0)))

	require.True(t, e.Exec(DeleteText{Count: 2}))
	assert.Equal(t, "ab", e.Doc().TextContent())
	assert.Equal(t, Cursor(2, 0), e.Selection())

	require.True(t, e.Exec(DeleteText{Count: 10}))
	assert.Equal(t, "", e.Doc().TextContent())
	assert.False(t, e.Exec(DeleteText{Count: 1}))

	e = New(schema.Default(), tiptap.NewDoc(p(text("abcd"))), Options{})
	require.True(t, e.Select(Range(pos(1, 0), pos(3, 0))))
	require.True(t, e.Exec(DeleteText{Count: 1}))
	assert.Equal(t, "ad", e.Doc().TextContent())
}

func TestInsertTextReplacesSelection(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("abcd"))), Options{})
	require.True(t, e.Select(Range(pos(1, 0), pos(3, 0))))

	require.True(t, e.Exec(InsertText{Text: "XY"}))
	assert.Equal(t, "aXYd", e.Doc().TextContent())
	assert.Equal(t, Cursor(3, 0), e.Selection())

	require.True(t, e.Select(Range(pos(0, 0), pos(0, 0))))
	require.True(t, e.Exec(InsertHorizontalRule{}))
	assert.Equal(t, []string{tiptap.TypeHorizontalRule, tiptap.TypeParagraph}, blockTypes(e.Doc()))

	require.True(t, e.Select(NodeAt(0)))
	assert.False(t, e.Exec(InsertText{Text: "x"}), "atom selected")
}

func TestInsertMath(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("ab"))), Options{})
	require.True(t, e.Select(Cursor(1, 0)))

	require.True(t, e.Exec(InsertMath{Latex: "x^2"}))
	doc := e.Doc()
	assert.Equal(t, []string{tiptap.TypeText, tiptap.TypeMath, tiptap.TypeText}, blockTypes(doc.Content[0]))
	assert.Equal(t, Cursor(2, 0), e.Selection())

	require.True(t, e.Exec(InsertText{Text: "!"}))
	assert.Equal(t, "a!b", e.Doc().TextContent())

	require.True(t, e.Exec(InsertMath{Latex: `\sqrt{2}`, Display: true}))
	doc = e.Doc()
	require.Equal(t, []string{tiptap.TypeParagraph, tiptap.TypeMath, tiptap.TypeParagraph}, blockTypes(doc))
	assert.True(t, tiptap.GetAttrBool(doc.Content[1].Attrs, "display"))
	assert.Equal(t, "b", doc.Content[2].TextContent())
}
