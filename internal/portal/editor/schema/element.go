package schema

import (
	"html"
	"strings"
)

var voidTags = map[string]struct{}{
	"img":   {},
	"br":    {},
	"hr":    {},
	"input": {},
}

// Attr - атрибут HTML элемента. Атрибуты хранятся списком, чтобы вывод был детерминированным.
type Attr struct {
	Key string
	Val string
}

// Element - результат отображения узла или метки в HTML.
//
// Содержимое узла выводится внутрь самого вложенного Inner (или в сам элемент, если Inner == nil
// и HasChildren == true). Text и Raw выводятся перед содержимым: Text экранируется, Raw - готовая безопасная разметка.
// Prefix - статические элементы перед содержимым (например <summary> у раскрывающегося блока).
type Element struct {
	Tag         string
	Attrs       []Attr
	HasChildren bool
	Text        string
	Raw         string
	Prefix      []Element
	Inner       *Element
}

// Attr возвращает значение атрибута элемента.
func (e Element) Attr(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Void возвращает true для элементов без закрывающего тега.
func (e Element) Void() bool {
	_, ok := voidTags[e.Tag]
	return ok
}

// WriteOpen выводит открывающий тег.
func (e Element) WriteOpen(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.Tag)
	for _, a := range e.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
}

// WriteClose выводит закрывающий тег.
func (e Element) WriteClose(sb *strings.Builder) {
	if e.Void() {
		return
	}
	sb.WriteString("</")
	sb.WriteString(e.Tag)
	sb.WriteByte('>')
}

// Write выводит элемент целиком, children вызывается в месте содержимого.
func (e Element) Write(sb *strings.Builder, children func(sb *strings.Builder)) {
	e.WriteOpen(sb)
	if e.Void() {
		return
	}
	sb.WriteString(html.EscapeString(e.Text))
	sb.WriteString(e.Raw)
	for _, p := range e.Prefix {
		p.Write(sb, nil)
	}
	switch {
	case e.Inner != nil:
		e.Inner.Write(sb, children)
	case e.HasChildren && children != nil:
		children(sb)
	}
	e.WriteClose(sb)
}

// String выводит элемент без содержимого.
func (e Element) String() string {
	var sb strings.Builder
	e.Write(&sb, nil)
	return sb.String()
}
