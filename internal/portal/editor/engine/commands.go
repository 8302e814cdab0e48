package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// Command - команда редактора. Параметры проверяются тегами validate до применения.
type Command interface {
	Name() string
	apply(t *tx) error
}

// ToggleMarks - метки, которые переключаются без атрибутов.
var ToggleMarks = []string{
	tiptap.MarkBold, tiptap.MarkItalic, tiptap.MarkUnderline, tiptap.MarkStrike,
	tiptap.MarkCode, tiptap.MarkHighlight, tiptap.MarkSuperscript, tiptap.MarkSubscript,
}

var (
	codeLanguageRegexp = regexp.MustCompile(`^[a-zA-Z0-9_+#.-]*$`)
	imageSrcRegexp     = regexp.MustCompile(`^(https?://[^\s"'<>]+|/[^\s"'<>]*)$`)
)

var validate = newCommandValidator()

func newCommandValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("toggleMark", toggleMarkValidator); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("codeLanguage", codeLanguageValidator); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("imageSrc", imageSrcValidator); err != nil {
		panic(err)
	}
	return v
}

func toggleMarkValidator(fl validator.FieldLevel) bool {
	return slices.Contains(ToggleMarks, fl.Field().String())
}

func codeLanguageValidator(fl validator.FieldLevel) bool {
	return codeLanguageRegexp.MatchString(fl.Field().String())
}

func imageSrcValidator(fl validator.FieldLevel) bool {
	return validImageSrc(fl.Field().String())
}

// validImageSrc допускает абсолютные http(s) ссылки и пути от корня сайта.
func validImageSrc(src string) bool {
	return imageSrcRegexp.MatchString(src) && !strings.HasPrefix(src, "//")
}

type commandFactory func(args json.RawMessage) (Command, error)

func decodeAs[T Command](args json.RawMessage) (Command, error) {
	var c T
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func markAlias(mark string) commandFactory {
	return func(json.RawMessage) (Command, error) {
		return ToggleMark{Mark: mark}, nil
	}
}

var commands = map[string]commandFactory{
	"toggleMark":           decodeAs[ToggleMark],
	"setMark":              decodeAs[SetMark],
	"unsetMark":            decodeAs[UnsetMark],
	"toggleHeading":        decodeAs[ToggleHeading],
	"setParagraph":         decodeAs[SetParagraph],
	"toggleCodeBlock":      decodeAs[ToggleCodeBlock],
	"toggleList":           decodeAs[ToggleList],
	"toggleBlockquote":     decodeAs[ToggleBlockquote],
	"insertTable":          decodeAs[InsertTable],
	"insertImage":          decodeAs[InsertImage],
	"insertHorizontalRule": decodeAs[InsertHorizontalRule],
	"insertMath":           decodeAs[InsertMath],
	"insertCallout":        decodeAs[InsertCallout],
	"insertToggle":         decodeAs[InsertToggle],
	"addRowBefore":         decodeAs[AddRowBefore],
	"addRowAfter":          decodeAs[AddRowAfter],
	"deleteRow":            decodeAs[DeleteRow],
	"addColumnBefore":      decodeAs[AddColumnBefore],
	"addColumnAfter":       decodeAs[AddColumnAfter],
	"deleteColumn":         decodeAs[DeleteColumn],
	"toggleHeaderRow":      decodeAs[ToggleHeaderRow],
	"toggleHeaderColumn":   decodeAs[ToggleHeaderColumn],
	"deleteTable":          decodeAs[DeleteTable],
	"updateAttrs":          decodeAs[UpdateAttrs],
	"insertText":           decodeAs[InsertText],
	"deleteText":           decodeAs[DeleteText],
	"splitBlock":           decodeAs[SplitBlock],

	"toggleBold":        markAlias(tiptap.MarkBold),
	"toggleItalic":      markAlias(tiptap.MarkItalic),
	"toggleUnderline":   markAlias(tiptap.MarkUnderline),
	"toggleStrike":      markAlias(tiptap.MarkStrike),
	"toggleCode":        markAlias(tiptap.MarkCode),
	"toggleHighlight":   markAlias(tiptap.MarkHighlight),
	"toggleSuperscript": markAlias(tiptap.MarkSuperscript),
	"toggleSubscript":   markAlias(tiptap.MarkSubscript),
}

// DecodeCommand создает команду по имени и JSON аргументам (формат сообщений сессии редактирования и палитры).
func DecodeCommand(name string, args json.RawMessage) (Command, error) {
	f, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	cmd, err := f(args)
	if err != nil {
		return nil, fmt.Errorf("decode %s args: %w", name, err)
	}
	return cmd, nil
}

// CommandNames возвращает имена всех команд в алфавитном порядке.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
