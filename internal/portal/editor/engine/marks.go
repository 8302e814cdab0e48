package engine

import (
	"maps"
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// ToggleMark переключает метку на выделенном тексте: если весь текст уже с меткой, она снимается,
// иначе ставится на весь текст. При пустом выделении переключается метка для следующего ввода.
type ToggleMark struct {
	Mark string `json:"mark" validate:"required,toggleMark"`
}

func (ToggleMark) Name() string { return "toggleMark" }

func (c ToggleMark) apply(t *tx) error {
	if t.sel.Empty() {
		p, n, err := t.cursor()
		if err != nil || t.isCode(n) {
			return ErrRejected
		}
		marks := t.marksAt(n, p.Offset)
		if hasMarkType(marks, c.Mark) {
			marks = withoutMark(marks, c.Mark)
		} else {
			marks = append(marks, tiptap.Mark{Type: c.Mark})
		}
		t.stored, t.storedSet = t.reg.SortMarks(marks), true
		return nil
	}

	active := true
	found := false
	t.eachText(func(n tiptap.Node) {
		found = true
		if !n.HasMark(c.Mark) {
			active = false
		}
	})
	if !found {
		return ErrRejected
	}

	return t.mapText(func(n *tiptap.Node) {
		if active {
			n.Marks = withoutMark(n.Marks, c.Mark)
		} else {
			n.Marks = append(withoutMark(n.Marks, c.Mark), tiptap.Mark{Type: c.Mark})
		}
	})
}

// SetMark ставит метку с атрибутами (ссылка, цвет, цвет выделения, выравнивание) на выделенный текст.
type SetMark struct {
	Type  string         `json:"type" validate:"required,oneof=link color highlight textAlign bold italic underline strike code superscript subscript"`
	Attrs map[string]any `json:"attrs"`
}

func (SetMark) Name() string { return "setMark" }

func (c SetMark) apply(t *tx) error {
	attrs := t.reg.Attrs(c.Type, c.Attrs)
	if !validMarkAttrs(c.Type, attrs) {
		return ErrRejected
	}
	if t.sel.Empty() {
		p, n, err := t.cursor()
		if err != nil || t.isCode(n) {
			return ErrRejected
		}
		marks := append(withoutMark(t.marksAt(n, p.Offset), c.Type), tiptap.Mark{Type: c.Type, Attrs: attrs})
		t.stored, t.storedSet = t.reg.SortMarks(marks), true
		return nil
	}
	return t.mapText(func(n *tiptap.Node) {
		n.Marks = append(withoutMark(n.Marks, c.Type), tiptap.Mark{Type: c.Type, Attrs: maps.Clone(attrs)})
	})
}

// UnsetMark снимает метку с выделенного текста.
type UnsetMark struct {
	Type string `json:"type" validate:"required"`
}

func (UnsetMark) Name() string { return "unsetMark" }

func (c UnsetMark) apply(t *tx) error {
	if _, ok := t.reg.Mark(c.Type); !ok {
		return ErrRejected
	}
	if t.sel.Empty() {
		p, n, err := t.cursor()
		if err != nil {
			return ErrRejected
		}
		t.stored, t.storedSet = t.reg.SortMarks(withoutMark(t.marksAt(n, p.Offset), c.Type)), true
		return nil
	}
	found := false
	t.eachText(func(n tiptap.Node) {
		if n.HasMark(c.Type) {
			found = true
		}
	})
	if !found {
		return ErrRejected
	}
	return t.mapText(func(n *tiptap.Node) {
		n.Marks = withoutMark(n.Marks, c.Type)
	})
}

func validMarkAttrs(typ string, attrs map[string]any) bool {
	switch typ {
	case tiptap.MarkLink:
		href := tiptap.GetAttrString(attrs, "href")
		target := tiptap.GetAttrString(attrs, "target")
		return linkHrefRegexp.MatchString(href) && (target == "" || target == "_blank")
	case tiptap.MarkColor:
		return colorRegexp.MatchString(tiptap.GetAttrString(attrs, "color"))
	case tiptap.MarkHighlight:
		c := tiptap.GetAttrString(attrs, "color")
		return c == "" || colorRegexp.MatchString(c)
	case tiptap.MarkTextAlign:
		return slices.Contains(TextAligns, tiptap.GetAttrString(attrs, "align"))
	}
	return true
}

func hasMarkType(marks []tiptap.Mark, typ string) bool {
	return slices.ContainsFunc(marks, func(m tiptap.Mark) bool { return m.Type == typ })
}

func withoutMark(marks []tiptap.Mark, typ string) []tiptap.Mark {
	var out []tiptap.Mark
	for _, m := range marks {
		if m.Type != typ {
			out = append(out, m)
		}
	}
	return out
}

// marksAt возвращает метки, которые получит текст, введенный в позиции: сохраненные метки
// или метки символа слева (кроме ссылки).
func (t *tx) marksAt(block *tiptap.Node, offset int) []tiptap.Mark {
	if t.storedSet {
		return slices.Clone(t.stored)
	}
	left, ok := inlineBefore(block, offset)
	if !ok || !left.IsText() {
		return nil
	}
	return withoutMark(left.Clone().Marks, tiptap.MarkLink)
}

// eachText обходит текстовые узлы выделения (без блоков кода).
func (t *tx) eachText(fn func(n tiptap.Node)) {
	for _, path := range t.selectedBlocks() {
		block := t.node(path)
		if t.isCode(block) {
			continue
		}
		from, to := t.blockRange(path, block)
		if from == to {
			continue
		}
		_, rest := splitInline(block.Content, from)
		mid, _ := splitInline(rest, to-from)
		for _, n := range mid {
			if n.IsText() {
				fn(n)
			}
		}
	}
}

// mapText применяет fn к каждому текстовому узлу выделения, разрезая узлы по границам выделения.
func (t *tx) mapText(fn func(n *tiptap.Node)) error {
	changed := false
	for _, path := range t.selectedBlocks() {
		block := t.node(path)
		if t.isCode(block) {
			continue
		}
		from, to := t.blockRange(path, block)
		if from == to {
			continue
		}
		left, rest := splitInline(block.Content, from)
		mid, right := splitInline(rest, to-from)
		for i := range mid {
			if mid[i].IsText() {
				fn(&mid[i])
				mid[i].Marks = t.reg.SortMarks(mid[i].Marks)
			}
		}
		content := append(append(left, mid...), right...)
		block.Content = schema.MergeText(content)
		changed = true
	}
	if !changed {
		return ErrRejected
	}
	t.changed = true
	return nil
}

// IsActive сообщает состояние кнопки панели инструментов: активна ли метка на выделении
// или находится ли выделение внутри узла данного типа. Если attrs заданы, они тоже должны совпасть.
func (e *Engine) IsActive(typ string, attrs map[string]any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := &tx{reg: e.reg, doc: e.doc, sel: e.sel, stored: e.stored, storedSet: e.storedSet}

	if _, ok := e.reg.Mark(typ); ok {
		match := func(marks []tiptap.Mark) bool {
			return slices.ContainsFunc(marks, func(m tiptap.Mark) bool {
				return m.Type == typ && attrsMatch(m.Attrs, attrs)
			})
		}
		if t.sel.Empty() {
			p, n, err := t.cursor()
			if err != nil {
				return false
			}
			return match(t.marksAt(n, p.Offset))
		}
		active, found := true, false
		t.eachText(func(n tiptap.Node) {
			found = true
			if !match(n.Marks) {
				active = false
			}
		})
		return found && active
	}

	path := e.sel.From.Path
	for i := len(path); i > 0; i-- {
		n := nodeAt(&e.doc, path[:i])
		if n != nil && n.Type == typ {
			return attrsMatch(e.reg.Attrs(n.Type, n.Attrs), attrs)
		}
	}
	return false
}

func attrsMatch(have, want map[string]any) bool {
	for k := range want {
		if tiptap.GetAttrString(have, k) != tiptap.GetAttrString(want, k) {
			return false
		}
	}
	return true
}
