package engine

import (
	"slices"
	"unicode/utf8"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Pos - позиция в документе. Path - индексы потомков от корня до текстового блока (или до атома
// при выделении узла), Offset - смещение внутри блока. Символ текста и любой строчный узел
// (перенос, формула, изображение) занимают одну единицу смещения.
type Pos struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

// Selection - выделение. При Node == true выделен атом по пути From.Path.
type Selection struct {
	From Pos  `json:"from"`
	To   Pos  `json:"to"`
	Node bool `json:"node,omitempty"`
}

// Cursor возвращает пустое выделение в позиции.
func Cursor(offset int, path ...int) Selection {
	p := Pos{Path: slices.Clone(path), Offset: offset}
	return Selection{From: p, To: p.clone()}
}

// Range возвращает выделение между двумя позициями.
func Range(from, to Pos) Selection {
	return Selection{From: from.clone(), To: to.clone()}
}

// NodeAt возвращает выделение атома.
func NodeAt(path ...int) Selection {
	p := Pos{Path: slices.Clone(path)}
	return Selection{From: p, To: p.clone(), Node: true}
}

func (p Pos) clone() Pos {
	return Pos{Path: slices.Clone(p.Path), Offset: p.Offset}
}

func (s Selection) clone() Selection {
	return Selection{From: s.From.clone(), To: s.To.clone(), Node: s.Node}
}

// Empty возвращает true для курсора без выделенного текста.
func (s Selection) Empty() bool {
	return !s.Node && comparePos(s.From, s.To) == 0
}

// comparePath сравнивает пути в порядке обхода документа: предок идет раньше потомков.
func comparePath(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func comparePos(a, b Pos) int {
	if c := comparePath(a.Path, b.Path); c != 0 {
		return c
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}

func hasPrefix(path, prefix []int) bool {
	return len(path) >= len(prefix) && slices.Equal(path[:len(prefix)], prefix)
}

// nodeAt возвращает указатель на узел по пути или nil.
func nodeAt(root *tiptap.Node, path []int) *tiptap.Node {
	n := root
	for _, i := range path {
		if i < 0 || i >= len(n.Content) {
			return nil
		}
		n = &n.Content[i]
	}
	return n
}

func isTextblock(reg *schema.Registry, n *tiptap.Node) bool {
	if n == nil {
		return false
	}
	spec, ok := reg.Node(n.Type)
	return ok && spec.IsTextblock()
}

func isAtom(reg *schema.Registry, n *tiptap.Node) bool {
	if n == nil {
		return false
	}
	spec, ok := reg.Node(n.Type)
	return ok && spec.Atom
}

// textblocks возвращает пути всех текстовых блоков в порядке документа.
func textblocks(reg *schema.Registry, root tiptap.Node) [][]int {
	var out [][]int
	var walk func(n *tiptap.Node, path []int)
	walk = func(n *tiptap.Node, path []int) {
		for i := range n.Content {
			child := &n.Content[i]
			p := append(slices.Clone(path), i)
			if isTextblock(reg, child) {
				out = append(out, p)
				continue
			}
			walk(child, p)
		}
	}
	walk(&root, nil)
	return out
}

// inlineSize - размер строчного узла в единицах смещения.
func inlineSize(n tiptap.Node) int {
	if n.IsText() {
		return utf8.RuneCountInString(n.Text)
	}
	return 1
}

func inlineLen(block *tiptap.Node) int {
	size := 0
	for _, n := range block.Content {
		size += inlineSize(n)
	}
	return size
}

// splitInline делит строчное содержимое по смещению. Исходный срез не изменяется.
func splitInline(content []tiptap.Node, offset int) (left, right []tiptap.Node) {
	pos := 0
	for i, n := range content {
		size := inlineSize(n)
		switch {
		case pos+size <= offset:
			left = append(left, n.Clone())
		case pos >= offset:
			right = append(right, cloneAll(content[i:])...)
			return left, right
		default:
			runes := []rune(n.Text)
			l, r := n.Clone(), n.Clone()
			l.Text = string(runes[:offset-pos])
			r.Text = string(runes[offset-pos:])
			left = append(left, l)
			right = append(right, r)
			right = append(right, cloneAll(content[i+1:])...)
			return left, right
		}
		pos += size
	}
	return left, right
}

func cloneAll(nodes []tiptap.Node) []tiptap.Node {
	out := make([]tiptap.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// inlineBefore возвращает строчный узел слева от смещения.
func inlineBefore(block *tiptap.Node, offset int) (tiptap.Node, bool) {
	pos := 0
	for _, n := range block.Content {
		size := inlineSize(n)
		if offset > pos && offset <= pos+size {
			return n, true
		}
		pos += size
	}
	return tiptap.Node{}, false
}

// textSlice возвращает текст блока между смещениями. Строчные узлы кроме текста дают "￼".
func textSlice(block *tiptap.Node, from, to int) string {
	_, rest := splitInline(block.Content, from)
	mid, _ := splitInline(rest, to-from)
	var out []rune
	for _, n := range mid {
		if n.IsText() {
			out = append(out, []rune(n.Text)...)
		} else {
			out = append(out, '￼')
		}
	}
	return string(out)
}

func insertChildren(parent *tiptap.Node, idx int, nodes ...tiptap.Node) {
	parent.Content = slices.Insert(parent.Content, idx, nodes...)
}

func removeChildren(parent *tiptap.Node, idx, count int) {
	parent.Content = slices.Delete(parent.Content, idx, idx+count)
}

// resolve приводит позицию к существующему текстовому блоку. Если путь больше не указывает на
// текстовый блок, берется первый текстовый блок не раньше пути, иначе конец последнего.
func resolve(reg *schema.Registry, doc tiptap.Node, p Pos) Pos {
	if n := nodeAt(&doc, p.Path); isTextblock(reg, n) {
		return Pos{Path: slices.Clone(p.Path), Offset: min(max(p.Offset, 0), inlineLen(n))}
	}
	blocks := textblocks(reg, doc)
	if len(blocks) == 0 {
		return Pos{}
	}
	for _, path := range blocks {
		if comparePath(path, p.Path) >= 0 {
			return Pos{Path: path}
		}
	}
	last := blocks[len(blocks)-1]
	return Pos{Path: last, Offset: inlineLen(nodeAt(&doc, last))}
}

// resolveSelection проверяет выделение по документу и упорядочивает его концы.
func resolveSelection(reg *schema.Registry, doc tiptap.Node, sel Selection) Selection {
	if sel.Node {
		if isAtom(reg, nodeAt(&doc, sel.From.Path)) && len(sel.From.Path) > 0 {
			return NodeAt(sel.From.Path...)
		}
		p := resolve(reg, doc, sel.From)
		return Selection{From: p, To: p.clone()}
	}
	from := resolve(reg, doc, sel.From)
	to := resolve(reg, doc, sel.To)
	if comparePos(from, to) > 0 {
		from, to = to, from
	}
	return Selection{From: from, To: to}
}
