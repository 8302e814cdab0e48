package engine

import (
	"maps"
	"regexp"
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// TextAligns - допустимые значения выравнивания текста.
var TextAligns = []string{"left", "center", "right", "justify"}

var (
	colorRegexp    = regexp.MustCompile(`^(#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})|rgb\((\d+),\s*(\d+),\s*(\d+)\))$`)
	linkHrefRegexp = regexp.MustCompile(`^(https?://|mailto:|/|#)[^\s"'<>]*$`)
)

// attrCheckers - дополнительные проверки значений атрибутов по ключу "тип.атрибут".
var attrCheckers = map[string]func(v any) bool{
	"heading.level": func(v any) bool {
		level := tiptap.GetAttrInt(map[string]any{"v": v}, "v")
		return level >= 1 && level <= 6
	},
	"heading.textAlign":   oneOf(TextAligns),
	"paragraph.textAlign": oneOf(TextAligns),
	"image.align":         oneOf(schema.ImageAligns),
	"image.src": func(v any) bool {
		s, ok := v.(string)
		return ok && validImageSrc(s)
	},
	"image.width": func(v any) bool {
		w := tiptap.GetAttrInt(map[string]any{"v": v}, "v")
		return w >= 0 && w <= 4000
	},
	"callout.variant": oneOf(schema.CalloutVariants),
	"codeBlock.language": func(v any) bool {
		s, ok := v.(string)
		return ok && len(s) <= 32 && codeLanguageRegexp.MatchString(s)
	},
	"orderedList.start": func(v any) bool {
		return tiptap.GetAttrInt(map[string]any{"v": v}, "v") >= 1
	},
}

func oneOf(values []string) func(v any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && slices.Contains(values, s)
	}
}

// sameKind проверяет, что значение того же вида, что и значение по умолчанию.
func sameKind(def, v any) bool {
	switch def.(type) {
	case string:
		_, ok := v.(string)
		return ok
	case bool:
		_, ok := v.(bool)
		return ok
	case int, int64, float64:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	}
	return false
}

// UpdateAttrs меняет атрибуты ближайшего узла типа Type над курсором или выделенного атома:
// выравнивание изображения, вариант выноски, раскрытие блока, отметку задачи, язык блока кода.
type UpdateAttrs struct {
	Type  string         `json:"type" validate:"required"`
	Attrs map[string]any `json:"attrs" validate:"required,min=1"`
}

func (UpdateAttrs) Name() string { return "updateAttrs" }

func (c UpdateAttrs) apply(t *tx) error {
	defaults := t.reg.DefaultAttrs(c.Type)
	if len(defaults) == 0 {
		return ErrRejected
	}
	for k, v := range c.Attrs {
		def, ok := defaults[k]
		if !ok || !sameKind(def, v) {
			return ErrRejected
		}
		if check, ok := attrCheckers[c.Type+"."+k]; ok && !check(v) {
			return ErrRejected
		}
	}

	n := t.findAncestor(c.Type)
	if n == nil {
		return ErrRejected
	}
	attrs := t.reg.Attrs(n.Type, n.Attrs)
	next := maps.Clone(attrs)
	for k, v := range c.Attrs {
		if f, ok := v.(float64); ok {
			v = int(f)
		}
		next[k] = v
	}
	if tiptap.Equal(tiptap.Node{Type: n.Type, Attrs: attrs}, tiptap.Node{Type: n.Type, Attrs: next}) {
		return ErrRejected
	}
	n.Attrs = next
	t.changed = true
	return nil
}

// findAncestor возвращает выделенный атом или ближайший узел типа typ над началом выделения.
func (t *tx) findAncestor(typ string) *tiptap.Node {
	path := t.sel.From.Path
	for i := len(path); i > 0; i-- {
		if n := t.node(path[:i]); n != nil && n.Type == typ {
			return n
		}
	}
	return nil
}
