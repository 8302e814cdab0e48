package engine

import (
	"slices"
	"strings"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// ToggleHeading делает выделенные блоки заголовками уровня Level. Если все они уже такие заголовки,
// блоки становятся параграфами.
type ToggleHeading struct {
	Level int `json:"level" validate:"min=1,max=6"`
}

func (ToggleHeading) Name() string { return "toggleHeading" }

func (c ToggleHeading) apply(t *tx) error {
	blocks := t.selectedBlocks()
	all := len(blocks) > 0
	for _, path := range blocks {
		n := t.node(path)
		if n.Type != tiptap.TypeHeading || tiptap.GetAttrInt(n.Attrs, "level") != c.Level {
			all = false
		}
	}
	if all {
		return t.setBlockType(blocks, tiptap.TypeParagraph, nil)
	}
	return t.setBlockType(blocks, tiptap.TypeHeading, map[string]any{"level": c.Level})
}

// SetParagraph делает выделенные блоки параграфами.
type SetParagraph struct{}

func (SetParagraph) Name() string { return "setParagraph" }

func (SetParagraph) apply(t *tx) error {
	return t.setBlockType(t.selectedBlocks(), tiptap.TypeParagraph, nil)
}

// ToggleCodeBlock превращает выделенные блоки в блоки кода и обратно.
type ToggleCodeBlock struct {
	Language string `json:"language" validate:"max=32,codeLanguage"`
}

func (ToggleCodeBlock) Name() string { return "toggleCodeBlock" }

func (c ToggleCodeBlock) apply(t *tx) error {
	blocks := t.selectedBlocks()
	all := len(blocks) > 0
	for _, path := range blocks {
		if t.node(path).Type != tiptap.TypeCodeBlock {
			all = false
		}
	}
	if all {
		return t.setBlockType(blocks, tiptap.TypeParagraph, nil)
	}
	return t.setBlockType(blocks, tiptap.TypeCodeBlock, map[string]any{"language": c.Language})
}

// setBlockType меняет тип текстовых блоков на месте. Выравнивание текста сохраняется,
// при переходе в блок кода и обратно переносы строк становятся "\n" и наоборот.
func (t *tx) setBlockType(blocks [][]int, typ string, attrs map[string]any) error {
	changed := false
	for _, path := range blocks {
		n := t.node(path)
		merged := map[string]any{}
		if align, ok := n.Attrs["textAlign"]; ok {
			merged["textAlign"] = align
		}
		for k, v := range attrs {
			merged[k] = v
		}
		next := t.reg.Create(typ, merged)
		next.Content = nil

		switch {
		case typ == tiptap.TypeCodeBlock && n.Type != tiptap.TypeCodeBlock:
			if text := inlineToText(n.Content); text != "" {
				next.Content = []tiptap.Node{tiptap.NewText(text)}
			}
		case typ != tiptap.TypeCodeBlock && n.Type == tiptap.TypeCodeBlock:
			next.Content = textToInline(n.TextContent())
		default:
			next.Content = n.Content
		}

		same := n.Type == next.Type &&
			tiptap.Equal(tiptap.Node{Type: typ, Attrs: t.reg.Attrs(typ, n.Attrs)}, tiptap.Node{Type: typ, Attrs: next.Attrs})
		if same {
			continue
		}
		*n = next
		changed = true
	}
	if !changed {
		return ErrRejected
	}
	t.changed = true
	return nil
}

// inlineToText превращает строчное содержимое в текст блока кода.
func inlineToText(content []tiptap.Node) string {
	var sb strings.Builder
	for _, n := range content {
		switch n.Type {
		case tiptap.TypeText:
			sb.WriteString(n.Text)
		case tiptap.TypeHardBreak:
			sb.WriteString("\n")
		case tiptap.TypeMath:
			sb.WriteString(tiptap.GetAttrString(n.Attrs, "latex"))
		}
	}
	return sb.String()
}

// textToInline разбивает текст по "\n" на текстовые узлы и переносы строк.
func textToInline(text string) []tiptap.Node {
	var out []tiptap.Node
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out = append(out, tiptap.Node{Type: tiptap.TypeHardBreak})
		}
		if line != "" {
			out = append(out, tiptap.NewText(line))
		}
	}
	return out
}

var listTypes = []string{tiptap.TypeBulletList, tiptap.TypeOrderedList, tiptap.TypeTaskList}

func itemType(list string) string {
	if list == tiptap.TypeTaskList {
		return tiptap.TypeTaskItem
	}
	return tiptap.TypeListItem
}

// ToggleList оборачивает выделенные блоки в список. Внутри списка того же типа элементы
// поднимаются из списка, внутри списка другого типа меняется тип списка.
type ToggleList struct {
	List string `json:"list" validate:"required,oneof=bulletList orderedList taskList"`
}

func (ToggleList) Name() string { return "toggleList" }

func (c ToggleList) apply(t *tx) error {
	if t.sel.Node {
		return ErrRejected
	}
	if listPath, ok := t.enclosingList(t.sel.From.Path); ok {
		list := t.node(listPath)
		if list.Type == c.List {
			return t.restructure(func() error { return t.liftItems(listPath) })
		}
		return t.restructure(func() error {
			*list = convertList(t, *list, c.List)
			return nil
		})
	}

	parent, from, to, ok := t.siblingRange()
	if !ok {
		return ErrRejected
	}
	return t.restructure(func() error {
		p := t.node(parent)
		var items []tiptap.Node
		for _, block := range p.Content[from : to+1] {
			items = append(items, t.reg.Create(itemType(c.List), nil, block))
		}
		list := t.reg.Create(c.List, nil, items...)
		p.Content = slices.Replace(p.Content, from, to+1, list)
		return nil
	})
}

// enclosingList ищет ближайший список, элемент которого содержит path.
func (t *tx) enclosingList(path []int) ([]int, bool) {
	for l := len(path) - 1; l >= 2; l-- {
		item := t.node(path[:l])
		list := t.node(path[:l-1])
		if item == nil || list == nil {
			continue
		}
		if (item.Type == tiptap.TypeListItem || item.Type == tiptap.TypeTaskItem) && slices.Contains(listTypes, list.Type) {
			return slices.Clone(path[:l-1]), true
		}
	}
	return nil, false
}

// liftItems поднимает элементы списка, задетые выделением, на уровень списка. Элементы до и после
// выделения остаются в отдельных списках того же типа.
func (t *tx) liftItems(listPath []int) error {
	list := t.node(listPath)
	depth := len(listPath)
	first, last := -1, -1
	for i := range list.Content {
		itemPath := append(slices.Clone(listPath), i)
		if comparePath(itemPath, t.sel.To.Path) <= 0 && (hasPrefix(t.sel.From.Path, itemPath) || comparePath(itemPath, t.sel.From.Path) > 0) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return ErrRejected
	}

	var replacement []tiptap.Node
	if first > 0 {
		before := *list
		before.Content = slices.Clone(list.Content[:first])
		replacement = append(replacement, before)
	}
	for _, item := range list.Content[first : last+1] {
		replacement = append(replacement, item.Content...)
	}
	if last+1 < len(list.Content) {
		after := list.Clone()
		after.Content = slices.Clone(list.Content[last+1:])
		if after.Type == tiptap.TypeOrderedList {
			after.Attrs = map[string]any{"start": 1}
		}
		replacement = append(replacement, after)
	}

	parent := t.node(listPath[:depth-1])
	idx := listPath[depth-1]
	parent.Content = slices.Replace(parent.Content, idx, idx+1, replacement...)
	return nil
}

func convertList(t *tx, list tiptap.Node, typ string) tiptap.Node {
	out := t.reg.Create(typ, nil)
	out.Content = nil
	for _, item := range list.Content {
		out.Content = append(out.Content, t.reg.Create(itemType(typ), nil, item.Content...))
	}
	return out
}

// siblingRange возвращает родителя и диапазон соседних блоков от блока начала выделения до блока
// (или его предка) конца выделения.
func (t *tx) siblingRange() ([]int, int, int, bool) {
	from := t.sel.From.Path
	if len(from) == 0 {
		return nil, 0, 0, false
	}
	parent := from[:len(from)-1]
	start := from[len(from)-1]
	end := start
	if to := t.sel.To.Path; len(to) > len(parent) && hasPrefix(to, parent) {
		end = max(to[len(parent)], start)
	}
	return slices.Clone(parent), start, end, true
}

// ToggleBlockquote оборачивает выделенные блоки в цитату или снимает ближайшую цитату.
type ToggleBlockquote struct{}

func (ToggleBlockquote) Name() string { return "toggleBlockquote" }

func (ToggleBlockquote) apply(t *tx) error {
	if t.sel.Node {
		return ErrRejected
	}
	path := t.sel.From.Path
	for i := len(path) - 1; i >= 1; i-- {
		if n := t.node(path[:i]); n != nil && n.Type == tiptap.TypeBlockquote {
			quotePath := slices.Clone(path[:i])
			return t.restructure(func() error {
				quote := t.node(quotePath)
				parent := t.node(quotePath[:len(quotePath)-1])
				idx := quotePath[len(quotePath)-1]
				parent.Content = slices.Replace(parent.Content, idx, idx+1, quote.Content...)
				return nil
			})
		}
	}

	parent, from, to, ok := t.siblingRange()
	if !ok {
		return ErrRejected
	}
	return t.restructure(func() error {
		p := t.node(parent)
		quote := t.reg.Create(tiptap.TypeBlockquote, nil, slices.Clone(p.Content[from:to+1])...)
		p.Content = slices.Replace(p.Content, from, to+1, quote)
		return nil
	})
}
