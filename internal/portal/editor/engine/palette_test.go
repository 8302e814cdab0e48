package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

func typeText(t *testing.T, e *Engine, s string) {
	t.Helper()
	for _, r := range s {
		require.True(t, e.Exec(InsertText{Text: string(r)}))
	}
}

func titles(items []PaletteItem) []string {
	var out []string
	for _, item := range items {
		out = append(out, item.Title)
	}
	return out
}

func TestDefaultPaletteDecodes(t *testing.T) {
	items := DefaultPalette()
	require.NotEmpty(t, items)
	for _, item := range items {
		_, err := item.Decode()
		assert.NoError(t, err, item.Title)
	}

	items[0].Title = "mudado"
	assert.NotEqual(t, "mudado", DefaultPalette()[0].Title)
}

func TestLoadPaletteErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml list", "title: x"},
		{"unknown command", "- title: X\n  command: explode\n"},
		{"invalid args", "- title: Tabela\n  command: insertTable\n  args: {rows: 0, cols: 3}\n"},
		{"missing title", "- command: splitBlock\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPalette([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := LoadPalette([]byte("- command: splitBlock\n"))
	assert.EqualError(t, err, "palette item without title")
}

func TestFilterPalette(t *testing.T) {
	items := DefaultPalette()
	tests := []struct {
		query string
		want  []string
	}{
		{"tab", []string{"Tabela"}},
		{"titulo", []string{"Título 1", "Título 2", "Título 3"}},
		{"TÍTULO 2", []string{"Título 2"}},
		{"lista", []string{"Lista com marcadores", "Lista numerada", "Lista de tarefas"}},
		{"nada-disso", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(FilterPalette(items, tt.query)))
		})
	}
	assert.Len(t, FilterPalette(items, ""), len(items))
}

func TestPaletteSlashTableEnter(t *testing.T) {
	e := New(schema.Default(), nil, Options{})

	typeText(t, e, "/")
	state := e.Palette()
	require.True(t, state.Open)
	assert.Len(t, state.Items, len(DefaultPalette()))

	typeText(t, e, "tab")
	state = e.Palette()
	assert.Equal(t, "tab", state.Query)
	assert.Equal(t, []string{"Tabela"}, titles(state.Items))

	require.True(t, e.HandleKey("Enter"))
	assert.False(t, e.Palette().Open)

	doc := e.Doc()
	table := doc.Content[0]
	require.Equal(t, tiptap.TypeTable, table.Type)
	require.Len(t, table.Content, 3)
	assert.Equal(t, tiptap.TypeTableHeader, table.Content[0].Content[0].Type)
	assert.NotContains(t, doc.TextContent(), "/tab")
	assert.False(t, e.HandleKey("Enter"), "closed palette does not capture keys")
}

func TestPaletteNavigation(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("texto "))), Options{})
	require.True(t, e.Select(Cursor(6, 0)))
	typeText(t, e, "/lista")

	require.Len(t, e.Palette().Items, 3)
	assert.True(t, e.HandleKey("ArrowDown"))
	assert.Equal(t, 1, e.Palette().Index)
	assert.True(t, e.HandleKey("up"))
	assert.True(t, e.HandleKey("ArrowUp"))
	assert.Equal(t, 2, e.Palette().Index)
	assert.False(t, e.HandleKey("a"))

	require.True(t, e.HandleKey("Enter"))
	doc := e.Doc()
	require.Equal(t, tiptap.TypeTaskList, doc.Content[0].Type)
	assert.Equal(t, "texto ", doc.TextContent())
}

func TestPaletteCloses(t *testing.T) {
	tests := []struct {
		name  string
		after func(t *testing.T, e *Engine)
	}{
		{"escape", func(t *testing.T, e *Engine) { assert.True(t, e.HandleKey("Escape")) }},
		{"space in query", func(t *testing.T, e *Engine) { typeText(t, e, "ta b") }},
		{"slash deleted", func(t *testing.T, e *Engine) { require.True(t, e.Exec(DeleteText{Count: 1})) }},
		{"cursor moved left", func(t *testing.T, e *Engine) { require.True(t, e.Select(Cursor(0, 0))) }},
		{"cursor in other block", func(t *testing.T, e *Engine) { require.True(t, e.Exec(SplitBlock{})) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(schema.Default(), nil, Options{})
			typeText(t, e, "/")
			require.True(t, e.Palette().Open)

			tt.after(t, e)
			assert.False(t, e.Palette().Open)
			assert.False(t, e.HandleKey("Enter"))
		})
	}
}

func TestSlashInsideWordDoesNotOpenPalette(t *testing.T) {
	e := New(schema.Default(), tiptap.NewDoc(p(text("e"))), Options{})
	require.True(t, e.Select(Cursor(1, 0)))
	typeText(t, e, "/ou")
	assert.False(t, e.Palette().Open)
	assert.Equal(t, "e/ou", e.Doc().TextContent())
}

func TestPaletteEmptyResultEnter(t *testing.T) {
	e := New(schema.Default(), nil, Options{})
	typeText(t, e, "/zzz")
	require.True(t, e.Palette().Open)
	assert.Empty(t, e.Palette().Items)

	assert.True(t, e.HandleKey("Enter"))
	assert.False(t, e.Palette().Open)
	assert.Equal(t, "/zzz", e.Doc().TextContent())
}
