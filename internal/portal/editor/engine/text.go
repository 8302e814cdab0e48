package engine

import (
	"slices"
	"strings"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// InsertText вводит текст в позицию курсора. Выделенный текст внутри одного блока заменяется.
// "\n" вне блока кода становится переносом строки.
type InsertText struct {
	Text string `json:"text" validate:"required,max=100000"`
}

func (InsertText) Name() string { return "insertText" }

func (c InsertText) apply(t *tx) error {
	if t.sel.Node || !slices.Equal(t.sel.From.Path, t.sel.To.Path) {
		return ErrRejected
	}
	p, block, err := t.cursor()
	if err != nil {
		return err
	}
	if !t.sel.Empty() {
		t.deleteRange(p.Path, block, t.sel.From.Offset, t.sel.To.Offset)
		p.Offset = t.sel.From.Offset
	}

	if c.Text == "/" && !t.isCode(block) && precededBySpace(block, p.Offset) {
		t.paletteAt = &Pos{Path: slices.Clone(p.Path), Offset: p.Offset}
	}

	var nodes []tiptap.Node
	if t.isCode(block) {
		nodes = []tiptap.Node{tiptap.NewText(c.Text)}
	} else {
		marks := t.marksAt(block, p.Offset)
		for _, n := range textToInline(c.Text) {
			if n.IsText() && len(marks) > 0 {
				n.Marks = slices.Clone(marks)
			}
			nodes = append(nodes, n)
		}
	}
	size := 0
	for _, n := range nodes {
		size += inlineSize(n)
	}

	left, right := splitInline(block.Content, p.Offset)
	block.Content = schema.MergeText(append(append(left, nodes...), right...))
	t.step(step{kind: stepText, path: slices.Clone(p.Path), offset: p.Offset, delta: size})
	t.setSelection(Cursor(p.Offset+size, p.Path...))
	t.stored, t.storedSet = nil, false
	return nil
}

func (t *tx) deleteRange(path []int, block *tiptap.Node, from, to int) {
	left, rest := splitInline(block.Content, from)
	_, right := splitInline(rest, to-from)
	block.Content = schema.MergeText(append(left, right...))
	t.step(step{kind: stepText, path: slices.Clone(path), offset: from, delta: from - to})
}

// DeleteText удаляет выделенный текст или Count единиц перед курсором в пределах блока.
type DeleteText struct {
	Count int `json:"count" validate:"min=1,max=100000"`
}

func (DeleteText) Name() string { return "deleteText" }

func (c DeleteText) apply(t *tx) error {
	if t.sel.Node || !slices.Equal(t.sel.From.Path, t.sel.To.Path) {
		return ErrRejected
	}
	p, block, err := t.cursor()
	if err != nil {
		return err
	}
	from, to := t.sel.From.Offset, p.Offset
	if t.sel.Empty() {
		from = max(0, to-c.Count)
	}
	if from == to {
		return ErrRejected
	}
	t.deleteRange(p.Path, block, from, to)
	t.setSelection(Cursor(from, p.Path...))
	return nil
}

// SplitBlock разделяет текстовый блок в позиции курсора (Enter). В блоке кода вставляется перевод строки,
// после конца заголовка создается параграф.
type SplitBlock struct{}

func (SplitBlock) Name() string { return "splitBlock" }

func (SplitBlock) apply(t *tx) error {
	if !t.sel.Empty() {
		return ErrRejected
	}
	p, block, err := t.cursor()
	if err != nil {
		return err
	}
	if t.isCode(block) {
		return InsertText{Text: "\n"}.apply(t)
	}

	parent := t.node(p.Path[:len(p.Path)-1])
	idx := p.Path[len(p.Path)-1]
	size := inlineLen(block)

	left, right := splitInline(block.Content, p.Offset)
	next := tiptap.Node{Type: block.Type, Attrs: cloneAttrs(block.Attrs), Content: right}
	if p.Offset == size && block.Type == tiptap.TypeHeading {
		next = tiptap.NewParagraph()
	}
	block.Content = left
	insertChildren(parent, idx+1, next)
	t.step(step{kind: stepSplit, path: slices.Clone(p.Path), offset: p.Offset})

	path := slices.Clone(p.Path)
	path[len(path)-1]++
	t.setSelection(Cursor(0, path...))
	return nil
}

// precededBySpace проверяет, что перед смещением начало блока или пробельный символ.
func precededBySpace(block *tiptap.Node, offset int) bool {
	if offset == 0 {
		return true
	}
	s := textSlice(block, offset-1, offset)
	return strings.TrimSpace(s) == ""
}
