package engine

import (
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// insertBlocks вставляет блоки в позицию p. Пустой параграф заменяется (если replaceEmpty),
// в начале блока вставка идет перед ним, в конце - после него, в середине блок разделяется.
// При выделенном атоме блоки вставляются после атома. Возвращает родителя и индекс первого вставленного блока.
func (t *tx) insertBlocks(p Pos, atom bool, replaceEmpty bool, nodes ...tiptap.Node) ([]int, int, error) {
	if len(p.Path) == 0 {
		return nil, 0, ErrRejected
	}
	parent := slices.Clone(p.Path[:len(p.Path)-1])
	idx := p.Path[len(p.Path)-1]
	parentNode := t.node(parent)
	target := t.node(p.Path)
	if parentNode == nil || target == nil {
		return nil, 0, ErrRejected
	}
	for _, n := range nodes {
		if !t.reg.Allows(parentNode.Type, n.Type) {
			return nil, 0, ErrRejected
		}
	}

	if atom {
		if !isAtom(t.reg, target) {
			return nil, 0, ErrRejected
		}
		insertChildren(parentNode, idx+1, nodes...)
		t.step(step{kind: stepInsert, path: parent, index: idx + 1, count: len(nodes)})
		return parent, idx + 1, nil
	}

	if !isTextblock(t.reg, target) {
		return nil, 0, ErrRejected
	}
	size := inlineLen(target)
	offset := min(max(p.Offset, 0), size)

	switch {
	case replaceEmpty && size == 0 && target.Type == tiptap.TypeParagraph:
		removeChildren(parentNode, idx, 1)
		t.step(step{kind: stepDelete, path: parent, index: idx, count: 1})
	case offset == 0:
	case offset == size:
		idx++
	default:
		left, right := splitInline(target.Content, offset)
		rightBlock := tiptap.Node{Type: target.Type, Attrs: cloneAttrs(target.Attrs), Content: right}
		target.Content = left
		insertChildren(parentNode, idx+1, rightBlock)
		t.step(step{kind: stepSplit, path: slices.Clone(p.Path), offset: offset})
		idx++
	}

	insertChildren(parentNode, idx, nodes...)
	t.step(step{kind: stepInsert, path: parent, index: idx, count: len(nodes)})
	return parent, idx, nil
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	n := tiptap.Node{Attrs: attrs}.Clone()
	return n.Attrs
}

// insertAtSelection вставляет блоки в позицию выделения и ставит курсор: внутрь первого текстового
// блока вставленного узла, иначе в начало следующего текстового блока (создается при необходимости).
func (t *tx) insertAtSelection(nodes ...tiptap.Node) error {
	p := t.sel.To
	if t.sel.Node {
		p = t.sel.From
	}
	parent, idx, err := t.insertBlocks(p, t.sel.Node, true, nodes...)
	if err != nil {
		return err
	}

	for i := range nodes {
		path := append(slices.Clone(parent), idx+i)
		if isTextblock(t.reg, t.node(path)) {
			t.setSelection(Selection{From: Pos{Path: path}, To: Pos{Path: slices.Clone(path)}})
			return nil
		}
		if inner := textblocks(t.reg, *t.node(path)); len(inner) > 0 {
			full := append(slices.Clone(path), inner[0]...)
			t.setSelection(Selection{From: Pos{Path: full}, To: Pos{Path: slices.Clone(full)}})
			return nil
		}
	}

	next := append(slices.Clone(parent), idx+len(nodes))
	if !isTextblock(t.reg, t.node(next)) {
		parentNode := t.node(parent)
		insertChildren(parentNode, idx+len(nodes), tiptap.NewParagraph())
		t.step(step{kind: stepInsert, path: parent, index: idx + len(nodes), count: 1})
	}
	t.setSelection(Selection{From: Pos{Path: next}, To: Pos{Path: slices.Clone(next)}})
	return nil
}

// InsertTable вставляет таблицу Rows x Cols, в каждой ячейке пустой параграф.
type InsertTable struct {
	Rows          int  `json:"rows" validate:"min=1,max=100"`
	Cols          int  `json:"cols" validate:"min=1,max=50"`
	WithHeaderRow bool `json:"withHeaderRow"`
}

func (InsertTable) Name() string { return "insertTable" }

func (c InsertTable) apply(t *tx) error {
	return t.insertAtSelection(NewTable(t.reg, c.Rows, c.Cols, c.WithHeaderRow))
}

// NewTable строит таблицу rows x cols. При withHeaderRow ячейки первой строки - заголовки.
func NewTable(reg *schema.Registry, rows, cols int, withHeaderRow bool) tiptap.Node {
	table := tiptap.Node{Type: tiptap.TypeTable}
	for r := range rows {
		cellType := tiptap.TypeTableCell
		if r == 0 && withHeaderRow {
			cellType = tiptap.TypeTableHeader
		}
		row := tiptap.Node{Type: tiptap.TypeTableRow}
		for range cols {
			row.Content = append(row.Content, reg.Create(cellType, nil))
		}
		table.Content = append(table.Content, row)
	}
	return table
}

// InsertImage вставляет изображение по ссылке.
type InsertImage struct {
	Src   string `json:"src" validate:"required,max=2048,imageSrc"`
	Alt   string `json:"alt" validate:"max=500"`
	Title string `json:"title" validate:"max=500"`
	Align string `json:"align" validate:"omitempty,oneof=left center right none"`
	Width int    `json:"width" validate:"min=0,max=4000"`
}

func (InsertImage) Name() string { return "insertImage" }

func (c InsertImage) apply(t *tx) error {
	return t.insertAtSelection(t.reg.Create(tiptap.TypeImage, map[string]any{
		"src":   c.Src,
		"alt":   c.Alt,
		"title": c.Title,
		"align": schema.ValidImageAlign(c.Align),
		"width": c.Width,
	}))
}

// InsertHorizontalRule вставляет разделитель.
type InsertHorizontalRule struct{}

func (InsertHorizontalRule) Name() string { return "insertHorizontalRule" }

func (InsertHorizontalRule) apply(t *tx) error {
	return t.insertAtSelection(t.reg.Create(tiptap.TypeHorizontalRule, nil))
}

// InsertMath вставляет формулу: строчную в позицию курсора или блочную (Display) отдельным блоком.
type InsertMath struct {
	Latex   string `json:"latex" validate:"required,max=2000"`
	Display bool   `json:"display"`
}

func (InsertMath) Name() string { return "insertMath" }

func (c InsertMath) apply(t *tx) error {
	node := t.reg.Create(tiptap.TypeMath, map[string]any{"latex": c.Latex, "display": c.Display})
	if c.Display {
		return t.insertAtSelection(node)
	}

	p, block, err := t.cursor()
	if err != nil || t.isCode(block) {
		return ErrRejected
	}
	left, right := splitInline(block.Content, p.Offset)
	block.Content = append(append(left, node), right...)
	t.step(step{kind: stepText, path: slices.Clone(p.Path), offset: p.Offset, delta: 1})
	t.setSelection(Cursor(p.Offset+1, p.Path...))
	return nil
}

// InsertCallout вставляет блок-выноску с пустым параграфом.
type InsertCallout struct {
	Variant string `json:"variant" validate:"omitempty,oneof=info warning success danger note"`
	Emoji   string `json:"emoji" validate:"max=16"`
}

func (InsertCallout) Name() string { return "insertCallout" }

func (c InsertCallout) apply(t *tx) error {
	attrs := map[string]any{}
	if c.Variant != "" {
		attrs["variant"] = c.Variant
	}
	if c.Emoji != "" {
		attrs["emoji"] = c.Emoji
	}
	return t.insertAtSelection(t.reg.Create(tiptap.TypeCallout, attrs))
}

// InsertToggle вставляет раскрывающийся блок с пустым параграфом.
type InsertToggle struct {
	Summary string `json:"summary" validate:"max=200"`
	Open    bool   `json:"open"`
}

func (InsertToggle) Name() string { return "insertToggle" }

func (c InsertToggle) apply(t *tx) error {
	attrs := map[string]any{"open": c.Open}
	if c.Summary != "" {
		attrs["summary"] = c.Summary
	}
	return t.insertAtSelection(t.reg.Create(tiptap.TypeToggle, attrs))
}
