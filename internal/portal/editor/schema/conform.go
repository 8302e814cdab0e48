package schema

import (
	"log/slog"
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Report - что было исправлено при приведении дерева к схеме.
type Report struct {
	// Dropped - типы отброшенных неизвестных узлов.
	Dropped []string
	// Wrapped - сколько строчных узлов обернуто в параграфы или элементы списков.
	Wrapped int
	// Flattened - сколько блоков превращено в текст.
	Flattened int
}

// Conform приводит документ к моделям содержимого реестра:
//   - неизвестные узлы отбрасываются вместе с поддеревом;
//   - строчные узлы внутри блочного родителя оборачиваются в параграф;
//   - блоки внутри текстового блока превращаются в текст;
//   - обязательное содержимое достраивается минимальными узлами;
//   - неизвестные и повторяющиеся метки убираются, остальные упорядочиваются по рангу.
//
// Исходное дерево не изменяется.
func (r *Registry) Conform(doc tiptap.Node) (tiptap.Node, Report) {
	var rep Report
	root := r.nodes[tiptap.TypeDoc]
	out := tiptap.Node{Type: tiptap.TypeDoc, Attrs: doc.Attrs}
	if doc.Type == tiptap.TypeDoc {
		out.Content = r.conformChildren(root, doc.Content, &rep)
	}
	if out.Content == nil {
		out.Content = []tiptap.Node{}
	}
	if len(rep.Dropped) > 0 {
		slog.Warn("Drop unknown document nodes", "types", rep.Dropped)
	}
	return out, rep
}

func (r *Registry) conformNode(spec *NodeSpec, n tiptap.Node, rep *Report) tiptap.Node {
	out := tiptap.Node{Type: n.Type}
	if n.Attrs != nil {
		out.Attrs = r.Attrs(n.Type, n.Attrs)
		if len(out.Attrs) == 0 {
			out.Attrs = nil
		}
	}
	if spec.Content.Kind != ContentNone {
		out.Content = r.conformChildren(spec, n.Content, rep)
	}
	return out
}

func (r *Registry) conformText(n tiptap.Node) (tiptap.Node, bool) {
	if n.Text == "" {
		return tiptap.Node{}, false
	}
	out := tiptap.Node{Type: tiptap.TypeText, Text: n.Text}
	for _, m := range r.SortMarks(n.Marks) {
		c := tiptap.Mark{Type: m.Type}
		if spec := r.marks[m.Type]; len(spec.Attrs) > 0 {
			c.Attrs = r.Attrs(m.Type, m.Attrs)
		}
		out.Marks = append(out.Marks, c)
	}
	return out, true
}

// flatten превращает узел в текст для родителя со строчным содержимым.
func flatten(n tiptap.Node, rep *Report) []tiptap.Node {
	text := n.TextContent()
	rep.Flattened++
	if text == "" {
		return nil
	}
	return []tiptap.Node{tiptap.NewText(text)}
}

func (r *Registry) conformChildren(parent *NodeSpec, children []tiptap.Node, rep *Report) []tiptap.Node {
	var out []tiptap.Node
	var pending []tiptap.Node

	flush := func() {
		if len(pending) == 0 {
			return
		}
		p := tiptap.NewParagraph(mergeText(pending)...)
		rep.Wrapped++
		pending = nil
		if parent.Content.Kind == ContentChildren {
			out = append(out, r.wrapInto(parent, p, rep))
		} else {
			out = append(out, p)
		}
	}

	for _, child := range children {
		spec, ok := r.nodes[child.Type]
		if !ok || child.Type == tiptap.TypeDoc {
			rep.Dropped = append(rep.Dropped, child.Type)
			continue
		}

		switch parent.Content.Kind {
		case ContentNone:
			continue

		case ContentText:
			switch {
			case child.IsText():
				if child.Text != "" {
					out = append(out, tiptap.NewText(child.Text))
				}
			case child.Type == tiptap.TypeHardBreak:
				out = append(out, tiptap.NewText("\n"))
			default:
				out = append(out, flatten(child, rep)...)
			}

		case ContentInline:
			switch {
			case child.IsText():
				if t, ok := r.conformText(child); ok {
					out = append(out, t)
				}
			case spec.InGroup(GroupInline):
				out = append(out, r.conformNode(spec, child, rep))
			default:
				out = append(out, flatten(child, rep)...)
			}

		case ContentBlock:
			switch {
			case spec.InGroup(GroupBlock):
				flush()
				out = append(out, r.conformNode(spec, child, rep))
			case spec.InGroup(GroupInline):
				if child.IsText() {
					if t, ok := r.conformText(child); ok {
						pending = append(pending, t)
					}
				} else {
					pending = append(pending, r.conformNode(spec, child, rep))
				}
			default:
				// структурные узлы вне своего контейнера (ячейка, строка, элемент списка)
				flush()
				out = append(out, r.unwrap(parent, child, rep)...)
			}

		case ContentChildren:
			switch {
			case slices.Contains(parent.Content.Children, child.Type):
				flush()
				out = append(out, r.conformNode(spec, child, rep))
			case spec.IsInline() || child.IsText():
				if child.IsText() {
					if t, ok := r.conformText(child); ok {
						pending = append(pending, t)
					}
				} else {
					pending = append(pending, r.conformNode(spec, child, rep))
				}
			default:
				flush()
				out = append(out, r.wrapInto(parent, child, rep))
			}
		}
	}
	flush()

	if parent.Content.Kind == ContentInline || parent.Content.Kind == ContentText {
		out = mergeText(out)
	}
	if len(out) == 0 && parent.Content.Required {
		out = []tiptap.Node{r.fill(parent)}
	}
	return out
}

// unwrap поднимает содержимое структурного узла, оказавшегося в блочном родителе.
func (r *Registry) unwrap(parent *NodeSpec, n tiptap.Node, rep *Report) []tiptap.Node {
	rep.Flattened++
	return r.conformChildren(&NodeSpec{Name: parent.Name, Content: ContentModel{Kind: ContentBlock}}, n.Content, rep)
}

// wrapInto оборачивает узел в первый допустимый дочерний тип родителя (например параграф в listItem).
func (r *Registry) wrapInto(parent *NodeSpec, n tiptap.Node, rep *Report) tiptap.Node {
	wrapper := r.nodes[parent.Content.Children[0]]
	rep.Wrapped++
	return r.conformNode(wrapper, tiptap.Node{Type: wrapper.Name, Content: []tiptap.Node{n}}, rep)
}

// mergeText склеивает соседние текстовые узлы с одинаковыми метками.
func mergeText(nodes []tiptap.Node) []tiptap.Node {
	if len(nodes) < 2 {
		return nodes
	}
	out := make([]tiptap.Node, 0, len(nodes))
	for _, n := range nodes {
		if last := len(out) - 1; last >= 0 && n.IsText() && out[last].IsText() && tiptap.SameMarks(out[last].Marks, n.Marks) {
			out[last].Text += n.Text
			continue
		}
		out = append(out, n)
	}
	return out
}

// MergeText склеивает соседние текстовые узлы с одинаковыми метками.
func MergeText(nodes []tiptap.Node) []tiptap.Node {
	return mergeText(nodes)
}
