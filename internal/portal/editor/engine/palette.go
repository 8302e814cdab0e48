package engine

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed palette.yaml
var paletteYAML []byte

// PaletteItem - пункт палитры команд.
type PaletteItem struct {
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description" json:"description"`
	Command     string         `yaml:"command" json:"command"`
	Args        map[string]any `yaml:"args" json:"args,omitempty"`
}

// Decode создает команду пункта.
func (i PaletteItem) Decode() (Command, error) {
	args, err := json.Marshal(i.Args)
	if err != nil {
		return nil, err
	}
	cmd, err := DecodeCommand(i.Command, args)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("palette item %q: %w", i.Title, err)
	}
	return cmd, nil
}

// LoadPalette разбирает список пунктов в YAML и проверяет, что команда каждого пункта существует.
func LoadPalette(data []byte) ([]PaletteItem, error) {
	var items []PaletteItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Title == "" {
			return nil, errors.New("palette item without title")
		}
		if _, err := item.Decode(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

var defaultPalette = sync.OnceValue(func() []PaletteItem {
	items, err := LoadPalette(paletteYAML)
	if err != nil {
		panic(err)
	}
	return items
})

// DefaultPalette возвращает встроенную палитру.
func DefaultPalette() []PaletteItem {
	return slices.Clone(defaultPalette())
}

// fold приводит строку к виду для поиска без учета регистра и диакритики ("Título" == "titulo").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// FilterPalette оставляет пункты, в названии которых есть query.
func FilterPalette(items []PaletteItem, query string) []PaletteItem {
	q := fold(query)
	out := make([]PaletteItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(fold(item.Title), q) {
			out = append(out, item)
		}
	}
	return out
}

type paletteState struct {
	open    bool
	trigger Pos
	query   string
	index   int
	items   []PaletteItem
}

// PaletteState - состояние палитры для отрисовки клиентом.
type PaletteState struct {
	Open  bool          `json:"open"`
	Query string        `json:"query"`
	Items []PaletteItem `json:"items"`
	Index int           `json:"index"`
}

func (e *Engine) Palette() PaletteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paletteState()
}

// paletteState вызывается под e.mu.
func (e *Engine) paletteState() PaletteState {
	if !e.palette.open {
		return PaletteState{}
	}
	return PaletteState{
		Open:  true,
		Query: e.palette.query,
		Items: slices.Clone(e.palette.items),
		Index: e.palette.index,
	}
}

func (e *Engine) openPalette(trigger Pos) {
	e.palette = paletteState{open: true, trigger: trigger.clone(), items: slices.Clone(e.opts.Palette)}
}

func (e *Engine) closePalette() {
	e.palette = paletteState{}
}

// refreshPalette пересчитывает запрос по тексту между "/" и курсором. Палитра закрывается, если курсор
// ушел из блока или левее "/", "/" удален или в запросе появился пробел.
func (e *Engine) refreshPalette() {
	if !e.palette.open {
		return
	}
	trigger := e.palette.trigger
	block := nodeAt(&e.doc, trigger.Path)
	if e.sel.Node || !e.sel.Empty() || !isTextblock(e.reg, block) ||
		comparePath(e.sel.To.Path, trigger.Path) != 0 || e.sel.To.Offset <= trigger.Offset ||
		textSlice(block, trigger.Offset, trigger.Offset+1) != "/" {
		e.closePalette()
		return
	}

	query := textSlice(block, trigger.Offset+1, e.sel.To.Offset)
	if strings.ContainsFunc(query, func(r rune) bool { return unicode.IsSpace(r) || r == '￼' }) {
		e.closePalette()
		return
	}
	if query != e.palette.query || e.palette.items == nil {
		e.palette.query = query
		e.palette.items = FilterPalette(e.opts.Palette, query)
		e.palette.index = 0
	}
}

// HandleKey обрабатывает клавишу, пока палитра открыта: up/down выбирают пункт, enter выполняет его,
// escape закрывает палитру. Возвращает true, если клавиша перехвачена и не должна обрабатываться дальше.
func (e *Engine) HandleKey(key string) bool {
	e.mu.Lock()
	if !e.palette.open {
		e.mu.Unlock()
		return false
	}

	n := len(e.palette.items)
	switch strings.ToLower(strings.TrimPrefix(key, "Arrow")) {
	case "up":
		if n > 0 {
			e.palette.index = (e.palette.index - 1 + n) % n
		}
	case "down":
		if n > 0 {
			e.palette.index = (e.palette.index + 1) % n
		}
	case "escape":
		e.closePalette()
	case "enter":
		e.runPaletteItem()
		return true
	default:
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()
	return true
}

// runPaletteItem удаляет "/запрос" и выполняет выбранный пункт одной транзакцией. Вызывается под e.mu,
// освобождает его.
func (e *Engine) runPaletteItem() {
	items, index, trigger := e.palette.items, e.palette.index, e.palette.trigger
	end := e.sel.To.Offset
	e.closePalette()

	if len(items) == 0 {
		e.mu.Unlock()
		return
	}
	cmd, err := items[index].Decode()
	if err != nil {
		e.mu.Unlock()
		slog.Warn("Decode palette item", "title", items[index].Title, "err", err)
		return
	}

	change, err := e.apply(cmd.Name(), func(t *tx) error {
		block := t.node(trigger.Path)
		if !isTextblock(t.reg, block) {
			return ErrRejected
		}
		t.deleteRange(trigger.Path, block, trigger.Offset, end)
		t.setSelection(Cursor(trigger.Offset, trigger.Path...))
		return cmd.apply(t)
	})
	if err != nil {
		e.mu.Unlock()
		slog.Debug("Reject palette command", "command", cmd.Name(), "err", err)
		return
	}
	e.publish(change)
}
