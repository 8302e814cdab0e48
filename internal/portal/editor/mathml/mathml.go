// Пакет mathml верстает формулы LaTeX в MathML для статического отображения вики-страниц.
//
// Поддерживается подмножество LaTeX, которое укладывается в разрешенный санитайзером набор тегов
// (mrow, mi, mo, mn, msup, mfrac, msqrt, mtable, mtr, mtd, semantics, annotation):
//   - идентификаторы, числа и операторы;
//   - группы {...}, степени ^, \frac, \sqrt;
//   - греческие буквы, стандартные функции и операторы (\sum, \int, \leq, ...);
//   - окружения matrix, pmatrix, bmatrix, vmatrix.
//
// Для всего остального (включая индексы _) возвращается ошибка: вызывающий код показывает исходный текст.
package mathml

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
)

const namespace = "http://www.w3.org/1998/Math/MathML"

var ErrEmpty = errors.New("empty formula")

// SyntaxError описывает ошибку разбора формулы.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("latex: %s at %d", e.Msg, e.Pos)
}

// Convert верстает LaTeX в элемент <math>. Исходный текст сохраняется в <annotation>,
// чтобы формулу можно было восстановить при импорте HTML.
func Convert(latex string, display bool) (string, error) {
	src := trimDelimiters(latex)
	if src == "" {
		return "", ErrEmpty
	}

	toks, err := tokenize(src)
	if err != nil {
		return "", err
	}

	p := &parser{src: src, toks: toks}
	items, err := p.parseSeq(nil)
	if err != nil {
		return "", err
	}
	if !p.eof() {
		return "", p.errorf("unexpected %q", p.peek().text)
	}

	mode := "inline"
	if display {
		mode = "block"
	}

	var sb strings.Builder
	sb.WriteString(`<math xmlns="` + namespace + `" display="` + mode + `">`)
	sb.WriteString("<semantics>")
	sb.WriteString(row(items))
	sb.WriteString("<annotation>")
	sb.WriteString(html.EscapeString(strings.TrimSpace(latex)))
	sb.WriteString("</annotation>")
	sb.WriteString("</semantics>")
	sb.WriteString("</math>")
	return sb.String(), nil
}

func trimDelimiters(s string) string {
	s = strings.TrimSpace(s)
	for _, d := range []string{"$$", "$"} {
		if len(s) >= 2*len(d) && strings.HasPrefix(s, d) && strings.HasSuffix(s, d) {
			return strings.TrimSpace(s[len(d) : len(s)-len(d)])
		}
	}
	return s
}

func row(items []string) string {
	return "<mrow>" + strings.Join(items, "") + "</mrow>"
}

func mi(s string) string { return "<mi>" + html.EscapeString(s) + "</mi>" }
func mo(s string) string { return "<mo>" + html.EscapeString(s) + "</mo>" }
func mn(s string) string { return "<mn>" + html.EscapeString(s) + "</mn>" }

type tokKind int

const (
	tokLetter tokKind = iota
	tokNumber
	tokOp
	tokCommand
	tokLBrace
	tokRBrace
	tokSup
	tokSub
	tokAmp
)

type token struct {
	kind tokKind
	text string
	pos  int
	end  int
}

func (t token) isCmd(name string) bool {
	return t.kind == tokCommand && t.text == name
}

const operators = "+-=<>()[]|,/!'*:;?."

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	// позиции считаются в байтах исходной строки
	offsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += len(string(r))
	}
	offsets[len(runes)] = off

	for i := 0; i < len(runes); {
		r := runes[i]
		start := offsets[i]
		switch {
		case unicode.IsSpace(r) || r == '~':
			i++
		case r == '\\':
			if i+1 >= len(runes) {
				return nil, &SyntaxError{Pos: start, Msg: "dangling backslash"}
			}
			j := i + 1
			if unicode.IsLetter(runes[j]) && runes[j] < unicode.MaxASCII {
				for j < len(runes) && unicode.IsLetter(runes[j]) && runes[j] < unicode.MaxASCII {
					j++
				}
			} else {
				j++
			}
			toks = append(toks, token{kind: tokCommand, text: string(runes[i+1 : j]), pos: start, end: offsets[j]})
			i = j
		case r == '{':
			toks = append(toks, token{kind: tokLBrace, text: "{", pos: start, end: offsets[i+1]})
			i++
		case r == '}':
			toks = append(toks, token{kind: tokRBrace, text: "}", pos: start, end: offsets[i+1]})
			i++
		case r == '^':
			toks = append(toks, token{kind: tokSup, text: "^", pos: start, end: offsets[i+1]})
			i++
		case r == '_':
			toks = append(toks, token{kind: tokSub, text: "_", pos: start, end: offsets[i+1]})
			i++
		case r == '&':
			toks = append(toks, token{kind: tokAmp, text: "&", pos: start, end: offsets[i+1]})
			i++
		case unicode.IsDigit(r):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || (runes[j] == '.' && j+1 < len(runes) && unicode.IsDigit(runes[j+1]))) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[i:j]), pos: start, end: offsets[j]})
			i = j
		case unicode.IsLetter(r):
			toks = append(toks, token{kind: tokLetter, text: string(r), pos: start, end: offsets[i+1]})
			i++
		case strings.ContainsRune(operators, r) || unicode.IsSymbol(r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: start, end: offsets[i+1]})
			i++
		default:
			return nil, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return toks, nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) eof() bool     { return p.pos >= len(p.toks) }
func (p *parser) peek() token   { return p.toks[p.pos] }
func (p *parser) next() token   { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) offset() int {
	if p.eof() {
		return len(p.src)
	}
	return p.peek().pos
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.offset(), Msg: fmt.Sprintf(format, args...)}
}

// parseSeq разбирает последовательность атомов до конца ввода или до токена, на котором stop вернет true.
func (p *parser) parseSeq(stop func(token) bool) ([]string, error) {
	var items []string
	for !p.eof() {
		t := p.peek()
		if stop != nil && stop(t) {
			break
		}
		switch t.kind {
		case tokSup:
			p.next()
			sup, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			base := row(nil)
			if len(items) > 0 {
				base = items[len(items)-1]
				items = items[:len(items)-1]
			}
			items = append(items, "<msup>"+base+sup+"</msup>")
		case tokSub:
			return nil, p.errorf("subscripts are not supported")
		default:
			el, err := p.parseAtom()
			if err != nil {
				return nil, err
			}
			if el != "" {
				items = append(items, el)
			}
		}
	}
	return items, nil
}

// parseArg разбирает обязательный аргумент: группу или одиночный атом.
func (p *parser) parseArg() (string, error) {
	for {
		if p.eof() {
			return "", p.errorf("missing argument")
		}
		t := p.peek()
		if t.kind == tokSup || t.kind == tokSub || t.kind == tokRBrace || t.kind == tokAmp {
			return "", p.errorf("missing argument")
		}
		el, err := p.parseAtom()
		if err != nil {
			return "", err
		}
		// пробельные команды ничего не выводят, аргумент берется следующим атомом
		if el != "" {
			return el, nil
		}
	}
}

func (p *parser) parseGroup() (string, error) {
	if p.eof() || p.peek().kind != tokLBrace {
		return "", p.errorf("expected {")
	}
	p.next()
	items, err := p.parseSeq(func(t token) bool { return t.kind == tokRBrace })
	if err != nil {
		return "", err
	}
	if p.eof() {
		return "", p.errorf("unbalanced braces")
	}
	p.next()
	return row(items), nil
}

// rawGroup возвращает исходный текст внутри {...} без разбора.
func (p *parser) rawGroup() (string, error) {
	if p.eof() || p.peek().kind != tokLBrace {
		return "", p.errorf("expected {")
	}
	open := p.next()
	depth := 1
	for !p.eof() {
		t := p.next()
		switch t.kind {
		case tokLBrace:
			depth++
		case tokRBrace:
			depth--
			if depth == 0 {
				return p.src[open.end:t.pos], nil
			}
		}
	}
	return "", p.errorf("unbalanced braces")
}

func (p *parser) parseAtom() (string, error) {
	t := p.peek()
	switch t.kind {
	case tokLBrace:
		return p.parseGroup()
	case tokRBrace:
		return "", p.errorf("unbalanced braces")
	case tokLetter:
		p.next()
		return mi(t.text), nil
	case tokNumber:
		p.next()
		return mn(t.text), nil
	case tokOp:
		p.next()
		return mo(t.text), nil
	case tokAmp:
		return "", p.errorf("alignment outside of matrix")
	case tokCommand:
		p.next()
		return p.parseCommand(t)
	}
	return "", p.errorf("unexpected %q", t.text)
}

func (p *parser) parseCommand(t token) (string, error) {
	name := t.text
	switch name {
	case "frac", "dfrac", "tfrac":
		num, err := p.parseArg()
		if err != nil {
			return "", err
		}
		den, err := p.parseArg()
		if err != nil {
			return "", err
		}
		return "<mfrac>" + num + den + "</mfrac>", nil
	case "sqrt":
		if !p.eof() && p.peek().kind == tokOp && p.peek().text == "[" {
			return "", p.errorf("root index is not supported")
		}
		arg, err := p.parseArg()
		if err != nil {
			return "", err
		}
		return "<msqrt>" + arg + "</msqrt>", nil
	case "text", "mathrm", "textrm", "operatorname", "mathit", "mathbf":
		raw, err := p.rawGroup()
		if err != nil {
			return "", err
		}
		return mi(raw), nil
	case "left", "right":
		// следующий токен - разделитель, "." означает его отсутствие
		if !p.eof() && p.peek().kind == tokOp && p.peek().text == "." {
			p.next()
		}
		return "", nil
	case ",", ";", ":", "!", " ", "quad", "qquad":
		return "", nil
	case "{", "}", "|", "%", "$", "#", "&":
		return mo(name), nil
	case "begin":
		env, err := p.rawGroup()
		if err != nil {
			return "", err
		}
		return p.parseMatrix(strings.TrimSpace(env))
	case "end":
		return "", p.errorf("unexpected \\end")
	case "\\":
		return "", p.errorf("line break outside of matrix")
	}

	if s, ok := identifiers[name]; ok {
		return mi(s), nil
	}
	if s, ok := symbols[name]; ok {
		return mo(s), nil
	}
	if _, ok := functions[name]; ok {
		return mi(name), nil
	}
	return "", &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unknown command \\%s", name)}
}

func (p *parser) parseMatrix(env string) (string, error) {
	var open, closing string
	switch env {
	case "matrix":
	case "pmatrix":
		open, closing = "(", ")"
	case "bmatrix":
		open, closing = "[", "]"
	case "vmatrix":
		open, closing = "|", "|"
	default:
		return "", p.errorf("unsupported environment %q", env)
	}

	stop := func(t token) bool {
		return t.kind == tokAmp || t.kind == tokRBrace || t.isCmd("\\") || t.isCmd("end")
	}

	var rows [][]string
	var cells []string
	for {
		items, err := p.parseSeq(stop)
		if err != nil {
			return "", err
		}
		cells = append(cells, "<mtd>"+strings.Join(items, "")+"</mtd>")

		if p.eof() {
			return "", p.errorf("unterminated %s", env)
		}
		t := p.next()
		switch {
		case t.kind == tokAmp:
			continue
		case t.isCmd("\\"):
			rows = append(rows, cells)
			cells = nil
			continue
		case t.isCmd("end"):
			name, err := p.rawGroup()
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(name) != env {
				return "", p.errorf("mismatched \\end{%s}", name)
			}
			rows = append(rows, cells)
		default:
			return "", p.errorf("unbalanced braces")
		}
		break
	}

	var sb strings.Builder
	sb.WriteString("<mtable>")
	for _, r := range rows {
		// пустая строка после завершающего \\ не выводится
		if len(r) == 1 && r[0] == "<mtd></mtd>" {
			continue
		}
		sb.WriteString("<mtr>")
		sb.WriteString(strings.Join(r, ""))
		sb.WriteString("</mtr>")
	}
	sb.WriteString("</mtable>")

	if open == "" {
		return sb.String(), nil
	}
	return "<mrow>" + mo(open) + sb.String() + mo(closing) + "</mrow>", nil
}
