// Генерация справочной документации портала в формате Markdown.
//
// Основные возможности:
//   - Таблица ошибок API: разбор файла с определениями ошибок (go/ast), коды, HTTP статусы и сообщения.
//   - Справочник узлов и меток документа из реестра схемы (содержимое, атрибуты по умолчанию).
//   - Список команд редактора и пунктов палитры.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	md "github.com/nao1215/markdown"

	"github.com/comunidadeds/portal/internal/portal/editor/engine"
	"github.com/comunidadeds/portal/internal/portal/editor/schema"
)

func main() {
	mode := flag.String("mode", "errors", "What to generate: errors or nodes")
	errorsFile := flag.String("src", "internal/portal/apierrors/apierrors.go", "Path of apierrors.go")
	outputMd := flag.String("out", "api_errors.md", "Path to output md")
	flag.Parse()

	slog.Info("Generate docs", "mode", *mode, "out", *outputMd)

	ff, err := os.Create(*outputMd)
	if err != nil {
		slog.Error("Create output file", "err", err)
		os.Exit(1)
	}
	defer ff.Close()

	switch *mode {
	case "errors":
		err = writeErrorsDoc(ff, *errorsFile)
	case "nodes":
		err = writeNodesDoc(ff, schema.Default(), engine.DefaultPalette())
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		slog.Error("Generate docs fail", "err", err)
		os.Exit(1)
	}
	slog.Info("Docs generated")
}

func writeErrorsDoc(w io.Writer, src string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, src, nil, 0)
	if err != nil {
		return err
	}

	return md.NewMarkdown(w).
		H1("Códigos de erro da API").
		PlainText("Esta seção descreve os erros que o servidor pode retornar.").
		CustomTable(md.TableSet{
			Header: []string{"Código", "HTTP", "Mensagem", "Mensagem em português"},
			Rows:   getRows(f),
		}, md.TableOptions{
			AutoWrapText: false,
		}).Build()
}

// getRows собирает строки таблицы из составных литералов DefinedError в объявлениях var.
func getRows(f *ast.File) [][]string {
	var rows [][]string
	for _, d := range f.Decls {
		decl, ok := d.(*ast.GenDecl)
		if !ok || decl.Tok != token.VAR {
			continue
		}
		for _, spec := range decl.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, value := range vs.Values {
				definedError, ok := value.(*ast.CompositeLit)
				if !ok {
					continue
				}
				row := make([]string, 4)
				for _, v := range definedError.Elts {
					param, ok := v.(*ast.KeyValueExpr)
					if !ok {
						continue
					}
					switch fmt.Sprint(param.Key) {
					case "Code":
						if lit, ok := param.Value.(*ast.BasicLit); ok {
							row[0] = md.Bold(lit.Value)
						}
					case "StatusCode":
						if sel, ok := param.Value.(*ast.SelectorExpr); ok {
							row[1] = statusCell(sel.Sel.Name)
						}
					case "Err":
						row[2] = md.Code(stringLit(param.Value))
					case "PtErr":
						row[3] = md.Code(stringLit(param.Value))
					}
				}
				if row[0] == "" {
					continue
				}
				if row[1] == "" {
					row[1] = statusCell("StatusBadRequest")
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

func stringLit(expr ast.Expr) string {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return ""
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return strings.Trim(lit.Value, "\"`")
	}
	return s
}

// statuses - HTTP статусы, которые используются в каталоге ошибок.
var statuses = map[string]int{
	"StatusBadRequest":            http.StatusBadRequest,
	"StatusNotFound":              http.StatusNotFound,
	"StatusConflict":              http.StatusConflict,
	"StatusRequestEntityTooLarge": http.StatusRequestEntityTooLarge,
	"StatusUnsupportedMediaType":  http.StatusUnsupportedMediaType,
	"StatusInternalServerError":   http.StatusInternalServerError,
	"StatusBadGateway":            http.StatusBadGateway,
}

func statusCell(name string) string {
	code, ok := statuses[name]
	if !ok {
		slog.Warn("Unknown status in errors catalog", "status", name)
		return md.Italic(name)
	}
	return fmt.Sprintf("%d %s", code, md.Italic(name))
}

// writeNodesDoc пишет справочник узлов, меток и команд редактора.
func writeNodesDoc(w io.Writer, reg *schema.Registry, palette []engine.PaletteItem) error {
	var nodeRows [][]string
	for _, n := range reg.Nodes() {
		nodeRows = append(nodeRows, []string{
			md.Code(n.Name),
			strings.Join(n.Groups, ", "),
			md.Code(n.Content.String()),
			attrsCell(n.Attrs),
			n.Description,
		})
	}

	var markRows [][]string
	for _, m := range reg.Marks() {
		markRows = append(markRows, []string{
			md.Code(m.Name),
			strconv.Itoa(m.Rank),
			attrsCell(m.Attrs),
			m.Description,
		})
	}

	var paletteRows [][]string
	for _, item := range palette {
		paletteRows = append(paletteRows, []string{item.Title, md.Code(item.Command), attrsCell(item.Args), item.Description})
	}

	commands := engine.CommandNames()
	for i, name := range commands {
		commands[i] = md.Code(name)
	}

	return md.NewMarkdown(w).
		H1("Referência do documento").
		PlainText("Gerado a partir do registro de nós do editor.").
		H2("Nós").
		CustomTable(md.TableSet{
			Header: []string{"Tipo", "Grupos", "Conteúdo", "Atributos", "Descrição"},
			Rows:   nodeRows,
		}, md.TableOptions{AutoWrapText: false}).
		H2("Marcas").
		PlainText("Marcas com posição menor envolvem as demais no HTML.").
		CustomTable(md.TableSet{
			Header: []string{"Tipo", "Posição", "Atributos", "Descrição"},
			Rows:   markRows,
		}, md.TableOptions{AutoWrapText: false}).
		H2("Comandos do editor").
		BulletList(commands...).
		H2("Paleta de comandos").
		CustomTable(md.TableSet{
			Header: []string{"Título", "Comando", "Argumentos", "Descrição"},
			Rows:   paletteRows,
		}, md.TableOptions{AutoWrapText: false}).
		Build()
}

func attrsCell(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		parts = append(parts, md.Code(fmt.Sprintf("%s=%v", k, attrs[k])))
	}
	return strings.Join(parts, " ")
}
