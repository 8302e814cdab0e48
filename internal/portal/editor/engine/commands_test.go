package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    string
		want    Command
		wantErr bool
	}{
		{"alias", "toggleBold", "", ToggleMark{Mark: tiptap.MarkBold}, false},
		{"table", "insertTable", `{"rows":2,"cols":4,"withHeaderRow":true}`, InsertTable{Rows: 2, Cols: 4, WithHeaderRow: true}, false},
		{"no args", "splitBlock", "null", SplitBlock{}, false},
		{"list", "toggleList", `{"list":"taskList"}`, ToggleList{List: tiptap.TypeTaskList}, false},
		{"unknown", "formatDisk", "{}", nil, true},
		{"bad json", "insertTable", `{"rows":"dois"}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand(tt.command, json.RawMessage(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestCommandNames(t *testing.T) {
	names := CommandNames()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "insertTable")
	assert.Contains(t, names, "toggleItalic")
	for _, name := range names {
		cmd, err := DecodeCommand(name, nil)
		require.NoError(t, err, name)
		assert.NotEmpty(t, cmd.Name())
	}
}

func TestUpdateAttrs(t *testing.T) {
	e := New(schema.Default(), nil, Options{})
	require.True(t, e.Exec(InsertImage{Src: "https://cdn.dados.br/a.png"}))
	require.Equal(t, []string{tiptap.TypeImage, tiptap.TypeParagraph}, blockTypes(e.Doc()))
	require.True(t, e.Select(NodeAt(0)))

	tests := []struct {
		name  string
		typ   string
		attrs map[string]any
		ok    bool
	}{
		{"align", tiptap.TypeImage, map[string]any{"align": "left"}, true},
		{"same align again", tiptap.TypeImage, map[string]any{"align": "left"}, false},
		{"bad align", tiptap.TypeImage, map[string]any{"align": "top"}, false},
		{"width from json", tiptap.TypeImage, map[string]any{"width": float64(320)}, true},
		{"fractional width", tiptap.TypeImage, map[string]any{"width": 3.5}, false},
		{"width as string", tiptap.TypeImage, map[string]any{"width": "300"}, false},
		{"unsafe src", tiptap.TypeImage, map[string]any{"src": "javascript:x"}, false},
		{"unknown attr", tiptap.TypeImage, map[string]any{"onload": "x"}, false},
		{"type not selected", tiptap.TypeCallout, map[string]any{"variant": "info"}, false},
		{"unknown type", "iframe", map[string]any{"src": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, e.Exec(UpdateAttrs{Type: tt.typ, Attrs: tt.attrs}))
		})
	}

	img := e.Doc().Content[0]
	assert.Equal(t, "left", img.Attrs["align"])
	assert.Equal(t, 320, img.Attrs["width"])
}

func TestUpdateAttrsOnAncestors(t *testing.T) {
	e := New(schema.Default(), nil, Options{})
	require.True(t, e.Exec(InsertCallout{Variant: "info"}))
	require.True(t, e.Exec(InsertToggle{Summary: "Mais"}))
	require.True(t, e.Exec(ToggleList{List: tiptap.TypeTaskList}))

	require.True(t, e.Exec(UpdateAttrs{Type: tiptap.TypeCallout, Attrs: map[string]any{"variant": "warning"}}))
	assert.False(t, e.Exec(UpdateAttrs{Type: tiptap.TypeCallout, Attrs: map[string]any{"variant": "rainbow"}}))
	require.True(t, e.Exec(UpdateAttrs{Type: tiptap.TypeToggle, Attrs: map[string]any{"open": true}}))
	require.True(t, e.Exec(UpdateAttrs{Type: tiptap.TypeTaskItem, Attrs: map[string]any{"checked": true}}))
	assert.False(t, e.Exec(UpdateAttrs{Type: tiptap.TypeTaskItem, Attrs: map[string]any{"checked": "sim"}}))

	callout := e.Doc().Content[0]
	require.Equal(t, tiptap.TypeCallout, callout.Type)
	assert.Equal(t, "warning", callout.Attrs["variant"])
	toggle := callout.Content[0]
	assert.Equal(t, true, toggle.Attrs["open"])
	item := toggle.Content[0].Content[0]
	require.Equal(t, tiptap.TypeTaskItem, item.Type)
	assert.True(t, tiptap.GetAttrBool(item.Attrs, "checked"))
}

func TestUpdateAttrsFromJSON(t *testing.T) {
	reg := schema.Default()
	e := New(reg, tiptap.NewDoc(reg.Create(tiptap.TypeHeading, map[string]any{"level": 1}, text("t"))), Options{})

	cmd, err := DecodeCommand("updateAttrs", json.RawMessage(`{"type":"heading","attrs":{"level":3}}`))
	require.NoError(t, err)
	require.True(t, e.Exec(cmd))
	assert.Equal(t, 3, e.Doc().Content[0].Attrs["level"])

	cmd, err = DecodeCommand("updateAttrs", json.RawMessage(`{"type":"heading","attrs":{"level":9}}`))
	require.NoError(t, err)
	assert.False(t, e.Exec(cmd))
}
