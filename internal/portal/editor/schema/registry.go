// Пакет schema описывает реестр типов узлов и меток документа.
// Реестр один на процесс и передается явно в редактор, рендерер и импорт, поэтому документ,
// собранный в редакторе, отображается на странице точно так же.
//
// Основные возможности:
//   - Значения атрибутов по умолчанию для каждого типа узла и метки.
//   - Отображение узла в HTML элемент (тег, атрибуты, есть ли содержимое).
//   - Разбор HTML элемента обратно в атрибуты узла (правила ParseRule).
//   - Модели содержимого ("none", "inline*", "text*", "block+", список допустимых дочерних типов).
//   - Исправление дерева под модели содержимого (Conform).
package schema

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

const (
	GroupBlock  = "block"
	GroupInline = "inline"
)

type ContentKind int

const (
	// ContentNone - лист, содержимое не допускается.
	ContentNone ContentKind = iota
	// ContentInline - строчные узлы (текст, переносы, изображения, формулы).
	ContentInline
	// ContentText - только текст без меток (блок кода).
	ContentText
	// ContentBlock - блочные узлы.
	ContentBlock
	// ContentChildren - только перечисленные типы.
	ContentChildren
)

// ContentModel описывает допустимое содержимое узла.
type ContentModel struct {
	Kind     ContentKind
	Children []string
	// Required - содержимое не может быть пустым ("+" вместо "*").
	Required bool
}

func (c ContentModel) String() string {
	quant := "*"
	if c.Required {
		quant = "+"
	}
	switch c.Kind {
	case ContentInline:
		return "inline" + quant
	case ContentText:
		return "text" + quant
	case ContentBlock:
		return "block" + quant
	case ContentChildren:
		if len(c.Children) == 1 {
			return c.Children[0] + quant
		}
		return fmt.Sprintf("(%s)%s", strings.Join(c.Children, " | "), quant)
	}
	return "none"
}

// NodeSpec - запись реестра для одного типа узла.
type NodeSpec struct {
	Name    string
	Groups  []string
	Content ContentModel
	Attrs   map[string]any
	// Atom - узел редактируется целиком (изображение, формула, разделитель).
	Atom   bool
	ToHTML func(attrs map[string]any) Element
	Parse  []ParseRule
	// Description используется в сгенерированной документации и палитре.
	Description string
}

func (s *NodeSpec) InGroup(group string) bool {
	return slices.Contains(s.Groups, group)
}

// IsInline возвращает true для узлов, которые могут стоять только внутри текстового блока.
func (s *NodeSpec) IsInline() bool {
	return s.InGroup(GroupInline) && !s.InGroup(GroupBlock)
}

// IsTextblock возвращает true для блоков с текстовым содержимым (параграф, заголовок, код).
func (s *NodeSpec) IsTextblock() bool {
	return s.Content.Kind == ContentInline || s.Content.Kind == ContentText
}

// MarkSpec - запись реестра для метки. Rank задает порядок вложенности при выводе HTML:
// метка с меньшим рангом оборачивает остальные.
type MarkSpec struct {
	Name        string
	Rank        int
	Attrs       map[string]any
	ToHTML      func(attrs map[string]any) Element
	Parse       []ParseRule
	Description string
}

// Registry - неизменяемый после создания набор типов узлов и меток.
type Registry struct {
	nodes     map[string]*NodeSpec
	nodeOrder []string
	marks     map[string]*MarkSpec
	markOrder []string
}

// NewRegistry собирает реестр. Порядок узлов важен для разбора HTML: более специфичные правила
// (например li[data-type=taskItem]) должны идти раньше общих.
func NewRegistry(nodes []NodeSpec, marks []MarkSpec) (*Registry, error) {
	r := &Registry{
		nodes: make(map[string]*NodeSpec, len(nodes)),
		marks: make(map[string]*MarkSpec, len(marks)),
	}
	for i := range nodes {
		n := nodes[i]
		if n.Name == "" {
			return nil, fmt.Errorf("node spec %d has no name", i)
		}
		if _, ok := r.nodes[n.Name]; ok {
			return nil, fmt.Errorf("duplicate node spec %q", n.Name)
		}
		r.nodes[n.Name] = &n
		r.nodeOrder = append(r.nodeOrder, n.Name)
	}
	for i := range marks {
		m := marks[i]
		if _, ok := r.marks[m.Name]; ok {
			return nil, fmt.Errorf("duplicate mark spec %q", m.Name)
		}
		r.marks[m.Name] = &m
		r.markOrder = append(r.markOrder, m.Name)
	}
	sort.SliceStable(r.markOrder, func(i, j int) bool {
		return r.marks[r.markOrder[i]].Rank < r.marks[r.markOrder[j]].Rank
	})

	for _, n := range r.nodes {
		for _, child := range n.Content.Children {
			if _, ok := r.nodes[child]; !ok {
				return nil, fmt.Errorf("node %q allows unknown child %q", n.Name, child)
			}
		}
	}
	if _, ok := r.nodes[tiptap.TypeDoc]; !ok {
		return nil, fmt.Errorf("registry has no %q node", tiptap.TypeDoc)
	}
	if _, ok := r.nodes[tiptap.TypeParagraph]; !ok {
		return nil, fmt.Errorf("registry has no %q node", tiptap.TypeParagraph)
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default возвращает стандартный реестр портала. Создается один раз при первом обращении.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(defaultNodes(), defaultMarks())
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func (r *Registry) Node(name string) (*NodeSpec, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

func (r *Registry) Mark(name string) (*MarkSpec, bool) {
	m, ok := r.marks[name]
	return m, ok
}

// Nodes возвращает типы узлов в порядке регистрации.
func (r *Registry) Nodes() []*NodeSpec {
	out := make([]*NodeSpec, 0, len(r.nodeOrder))
	for _, name := range r.nodeOrder {
		out = append(out, r.nodes[name])
	}
	return out
}

// Marks возвращает метки в порядке ранга.
func (r *Registry) Marks() []*MarkSpec {
	out := make([]*MarkSpec, 0, len(r.markOrder))
	for _, name := range r.markOrder {
		out = append(out, r.marks[name])
	}
	return out
}

// DefaultAttrs возвращает копию атрибутов по умолчанию. Для неизвестного типа - nil.
func (r *Registry) DefaultAttrs(typ string) map[string]any {
	if n, ok := r.nodes[typ]; ok {
		return maps.Clone(n.Attrs)
	}
	if m, ok := r.marks[typ]; ok {
		return maps.Clone(m.Attrs)
	}
	return nil
}

// Attrs объединяет атрибуты узла с атрибутами по умолчанию. Атрибуты, которых нет в описании типа, отбрасываются.
func (r *Registry) Attrs(typ string, attrs map[string]any) map[string]any {
	defaults := r.DefaultAttrs(typ)
	if defaults == nil {
		return nil
	}
	for k := range defaults {
		if v, ok := attrs[k]; ok && v != nil {
			defaults[k] = v
		}
	}
	return defaults
}

// Allows проверяет, может ли узел типа child быть прямым потомком parent.
func (r *Registry) Allows(parent, child string) bool {
	p, ok := r.nodes[parent]
	if !ok {
		return false
	}
	c, ok := r.nodes[child]
	if !ok {
		return false
	}
	switch p.Content.Kind {
	case ContentInline:
		return c.InGroup(GroupInline)
	case ContentText:
		return c.Name == tiptap.TypeText
	case ContentBlock:
		return c.InGroup(GroupBlock)
	case ContentChildren:
		return slices.Contains(p.Content.Children, child)
	}
	return false
}

// ToHTML отображает узел в HTML элемент. ok == false для неизвестных типов и текстовых узлов.
func (r *Registry) ToHTML(n tiptap.Node) (Element, bool) {
	spec, ok := r.nodes[n.Type]
	if !ok || spec.ToHTML == nil {
		return Element{}, false
	}
	return spec.ToHTML(r.Attrs(n.Type, n.Attrs)), true
}

// MarkToHTML отображает метку в HTML элемент.
func (r *Registry) MarkToHTML(m tiptap.Mark) (Element, bool) {
	spec, ok := r.marks[m.Type]
	if !ok || spec.ToHTML == nil {
		return Element{}, false
	}
	return spec.ToHTML(r.Attrs(m.Type, m.Attrs)), true
}

// SortMarks убирает неизвестные и повторяющиеся метки и упорядочивает остальные по рангу.
func (r *Registry) SortMarks(marks []tiptap.Mark) []tiptap.Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]tiptap.Mark, 0, len(marks))
	seen := make(map[string]struct{}, len(marks))
	for _, m := range marks {
		if _, ok := r.marks[m.Type]; !ok {
			continue
		}
		if _, dup := seen[m.Type]; dup {
			continue
		}
		seen[m.Type] = struct{}{}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.marks[out[i].Type].Rank < r.marks[out[j].Type].Rank
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// Create создает узел с атрибутами по умолчанию и минимальным допустимым содержимым.
func (r *Registry) Create(typ string, attrs map[string]any, content ...tiptap.Node) tiptap.Node {
	n := tiptap.Node{Type: typ}
	if spec, ok := r.nodes[typ]; ok {
		if len(spec.Attrs) > 0 {
			n.Attrs = r.Attrs(typ, attrs)
		}
		if len(content) == 0 && spec.Content.Required {
			content = []tiptap.Node{r.fill(spec)}
		}
	}
	n.Content = content
	return n
}

// fill строит минимальный допустимый потомок для обязательного содержимого.
func (r *Registry) fill(parent *NodeSpec) tiptap.Node {
	switch parent.Content.Kind {
	case ContentChildren:
		return r.Create(parent.Content.Children[0], nil)
	default:
		return tiptap.NewParagraph()
	}
}
