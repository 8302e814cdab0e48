package engine

import (
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

type stepKind int

const (
	// stepInsert - count узлов вставлено в родителя path на место index.
	stepInsert stepKind = iota
	// stepDelete - count узлов удалено из родителя path начиная с index.
	stepDelete
	// stepText - в текстовом блоке path по смещению offset вставлено (delta > 0) или удалено (delta < 0) содержимое.
	stepText
	// stepSplit - текстовый блок path разделен по смещению offset, правая часть стала следующим соседом.
	stepSplit
	// stepRestructure - блоки перестроены (обернуты в список, цитату и обратно), текстовые блоки сохранили порядок.
	stepRestructure
)

// step - одно структурное изменение транзакции. По шагам переносятся позиции, захваченные до
// изменения: выделение, места ожидающих выгрузок, начало команды палитры.
type step struct {
	kind   stepKind
	path   []int
	index  int
	count  int
	offset int
	delta  int
	before tiptap.Node
	after  tiptap.Node
}

func (s step) mapPos(reg *schema.Registry, p Pos) Pos {
	switch s.kind {
	case stepInsert:
		if len(p.Path) > len(s.path) && hasPrefix(p.Path, s.path) && p.Path[len(s.path)] >= s.index {
			p = p.clone()
			p.Path[len(s.path)] += s.count
		}

	case stepDelete:
		if len(p.Path) > len(s.path) && hasPrefix(p.Path, s.path) {
			i := p.Path[len(s.path)]
			switch {
			case i >= s.index+s.count:
				p = p.clone()
				p.Path[len(s.path)] -= s.count
			case i >= s.index:
				// узел удален, позиция будет приведена к ближайшему следующему блоку
				return Pos{Path: append(slices.Clone(s.path), s.index)}
			}
		}

	case stepText:
		if !slices.Equal(p.Path, s.path) {
			return p
		}
		switch {
		case s.delta > 0 && p.Offset >= s.offset:
			p.Offset += s.delta
		case s.delta < 0 && p.Offset > s.offset:
			p.Offset = max(s.offset, p.Offset+s.delta)
		}

	case stepSplit:
		parent, idx := s.path[:len(s.path)-1], s.path[len(s.path)-1]
		if slices.Equal(p.Path, s.path) {
			if p.Offset >= s.offset {
				p = p.clone()
				p.Path[len(p.Path)-1]++
				p.Offset -= s.offset
			}
			return p
		}
		if len(p.Path) > len(parent) && hasPrefix(p.Path, parent) && p.Path[len(parent)] > idx {
			p = p.clone()
			p.Path[len(parent)]++
		}

	case stepRestructure:
		before := textblocks(reg, s.before)
		ord := slices.IndexFunc(before, func(path []int) bool { return slices.Equal(path, p.Path) })
		if ord < 0 {
			return p
		}
		after := textblocks(reg, s.after)
		if len(after) == 0 {
			return Pos{}
		}
		ord = min(ord, len(after)-1)
		return Pos{Path: slices.Clone(after[ord]), Offset: p.Offset}
	}
	return p
}

func mapPos(reg *schema.Registry, steps []step, p Pos) Pos {
	for _, s := range steps {
		p = s.mapPos(reg, p)
	}
	return p
}
