// Пакет engine - движок интерактивного редактора вики. Владеет одним изменяемым документом на
// сессию редактирования и применяет к нему команды.
//
// Основные возможности:
//   - Команды проверяются (теги go-playground/validator и состояние выделения), применяются к копии
//     документа и атомарно подменяют его. Отклоненная команда ничего не меняет и не сообщает об ошибке.
//   - Уведомления об изменении документа приходят строго в порядке команд.
//   - Асинхронная выгрузка изображений в два шага: BeginUpload запоминает позицию курсора,
//     Complete вставляет изображение в эту позицию с учетом правок, сделанных за время выгрузки.
//   - Палитра команд по символу "/" и навигация по ней с клавиатуры.
//   - Автосохранение с задержкой после последнего изменения и явное сохранение.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comunidadeds/portal/internal/portal/editor/schema"
	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
	filestorage "github.com/comunidadeds/portal/internal/portal/file-storage"
)

var (
	ErrRejected   = errors.New("command rejected")
	ErrNotInTable = errors.New("selection is not inside a table")
	ErrNoStorage  = errors.New("file storage is not configured")

	ErrUploadFailed = errors.New("upload image")
)

const DefaultAutoSaveDelay = 1500 * time.Millisecond

// Change - результат успешной команды, изменившей документ. Selection, Palette и Uploading
// снимаются вместе с документом, в момент применения команды.
type Change struct {
	Doc       tiptap.Node
	Version   uint64
	Command   string
	Selection Selection
	Palette   PaletteState
	Uploading int
}

type SaveFunc func(ctx context.Context, doc tiptap.Node) error

type Options struct {
	// OnChange вызывается после каждого изменения документа в порядке применения команд.
	// Из обработчика нельзя синхронно вызывать методы движка: состояние берется из Change.
	OnChange func(Change)
	// OnAutoSave вызывается после AutoSaveDelay без новых изменений.
	OnAutoSave SaveFunc
	// OnSave вызывается при явном сохранении. Если не задан, используется OnAutoSave.
	OnSave SaveFunc
	// OnError получает ошибки выгрузок и сохранений.
	OnError func(error)

	AutoSaveDelay time.Duration

	Storage       filestorage.FileStorage
	Bucket        string
	PathPrefix    string
	MaxImageWidth int

	// Palette - пункты палитры команд, по умолчанию DefaultPalette().
	Palette []PaletteItem
}

type Engine struct {
	reg  *schema.Registry
	opts Options

	mu       sync.Mutex
	notifyMu sync.Mutex

	doc       tiptap.Node
	sel       Selection
	stored    []tiptap.Mark
	storedSet bool
	version   uint64

	uploads    map[uint64]*pendingUpload
	nextUpload uint64

	palette paletteState

	timer   *time.Timer
	saveGen uint64
	closed  bool
	saving  atomic.Int32
}

// New создает движок для значения документа любого формата (оно нормализуется и приводится к схеме).
// Курсор ставится в начало первого текстового блока.
func New(reg *schema.Registry, raw any, opts Options) *Engine {
	if opts.AutoSaveDelay <= 0 {
		opts.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}

	doc, _ := reg.Conform(tiptap.Normalize(raw))
	e := &Engine{
		reg:     reg,
		opts:    opts,
		doc:     ensureTextblock(reg, doc, nil),
		uploads: make(map[uint64]*pendingUpload),
	}
	e.sel = resolveSelection(reg, e.doc, Selection{})
	return e
}

// ensureTextblock добавляет пустой параграф в документ без текстовых блоков.
func ensureTextblock(reg *schema.Registry, doc tiptap.Node, tx *tx) tiptap.Node {
	if len(textblocks(reg, doc)) > 0 {
		return doc
	}
	if tx != nil {
		tx.step(step{kind: stepInsert, path: nil, index: len(doc.Content), count: 1})
	}
	doc.Content = append(doc.Content, tiptap.NewParagraph())
	return doc
}

// Doc возвращает копию текущего документа.
func (e *Engine) Doc() tiptap.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// Version увеличивается при каждом изменении документа.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel.clone()
}

// Select устанавливает выделение. Позиции должны указывать на текстовые блоки документа,
// выделение узла - на атом.
func (e *Engine) Select(sel Selection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sel.Node {
		n := nodeAt(&e.doc, sel.From.Path)
		if len(sel.From.Path) == 0 || !isAtom(e.reg, n) {
			return false
		}
	} else {
		for _, p := range []Pos{sel.From, sel.To} {
			n := nodeAt(&e.doc, p.Path)
			if !isTextblock(e.reg, n) || p.Offset < 0 || p.Offset > inlineLen(n) {
				return false
			}
		}
	}

	e.sel = resolveSelection(e.reg, e.doc, sel)
	e.stored, e.storedSet = nil, false
	e.refreshPalette()
	return true
}

// Exec проверяет и применяет команду. Возвращает false, если команда отклонена; документ при этом не меняется.
func (e *Engine) Exec(cmd Command) bool {
	if cmd == nil {
		return false
	}
	if err := validate.Struct(cmd); err != nil {
		slog.Debug("Reject editor command", "command", cmd.Name(), "err", err)
		return false
	}

	e.mu.Lock()
	change, err := e.apply(cmd.Name(), cmd.apply)
	if err != nil {
		e.mu.Unlock()
		slog.Debug("Reject editor command", "command", cmd.Name(), "err", err)
		return false
	}
	e.publish(change)
	return true
}

// apply выполняет fn над копией состояния. Вызывается под e.mu.
func (e *Engine) apply(name string, fn func(tx *tx) error) (*Change, error) {
	t := &tx{
		reg:       e.reg,
		doc:       e.doc.Clone(),
		sel:       e.sel.clone(),
		stored:    e.stored,
		storedSet: e.storedSet,
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	return e.commit(t, name), nil
}

// commit подменяет состояние результатом транзакции. Возвращает nil, если документ не изменился.
func (e *Engine) commit(t *tx, name string) *Change {
	if !t.changed {
		e.sel = resolveSelection(e.reg, e.doc, t.sel)
		e.stored, e.storedSet = t.stored, t.storedSet
		e.refreshPalette()
		return nil
	}

	doc, _ := e.reg.Conform(t.doc)
	t.doc = doc
	t.doc = ensureTextblock(e.reg, t.doc, t)

	sel := t.sel
	from, to := mapPos(e.reg, t.steps[t.selStep:], sel.From), mapPos(e.reg, t.steps[t.selStep:], sel.To)
	sel.From, sel.To = from, to
	e.sel = resolveSelection(e.reg, t.doc, sel)

	for _, u := range e.uploads {
		u.pos = mapPos(e.reg, t.steps, u.pos)
	}
	if e.palette.open {
		e.palette.trigger = mapPos(e.reg, t.steps, e.palette.trigger)
	}

	e.doc = t.doc
	e.stored, e.storedSet = t.stored, t.storedSet
	if t.paletteAt != nil {
		e.openPalette(*t.paletteAt)
	}
	e.version++
	e.refreshPalette()
	e.scheduleAutoSave()

	return &Change{
		Doc:       e.doc.Clone(),
		Version:   e.version,
		Command:   name,
		Selection: e.sel.clone(),
		Palette:   e.paletteState(),
		Uploading: e.uploading(),
	}
}

// publish отпускает e.mu и отправляет уведомление. notifyMu берется до освобождения e.mu,
// поэтому уведомления идут в порядке применения команд. Пока OnChange выполняется, другая команда
// может ждать notifyMu, удерживая e.mu, поэтому OnChange не должен брать e.mu.
func (e *Engine) publish(ch *Change) {
	if ch == nil {
		e.mu.Unlock()
		return
	}
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	if e.opts.OnChange != nil {
		e.opts.OnChange(*ch)
	}
}

func (e *Engine) reportError(err error) {
	slog.Warn("Editor async operation failed", "err", err)
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}

// Close останавливает таймер автосохранения. Выгрузки в процессе не отменяются.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.saveGen++
	if e.timer != nil {
		e.timer.Stop()
	}
}

// tx - транзакция одной команды над копией документа.
type tx struct {
	reg *schema.Registry
	doc tiptap.Node
	sel Selection
	// selStep - с какого шага переносить выделение при фиксации.
	selStep int
	steps   []step
	changed bool

	stored    []tiptap.Mark
	storedSet bool

	// paletteAt - позиция введенного "/", открывающего палитру.
	paletteAt *Pos
}

func (t *tx) step(s step) {
	t.steps = append(t.steps, s)
	t.changed = true
}

// setSelection задает выделение в координатах текущего состояния транзакции.
func (t *tx) setSelection(sel Selection) {
	t.sel = sel
	t.selStep = len(t.steps)
}

func (t *tx) node(path []int) *tiptap.Node {
	return nodeAt(&t.doc, path)
}

// restructure выполняет перестройку блоков и записывает шаг переноса позиций по порядку текстовых блоков.
func (t *tx) restructure(fn func() error) error {
	before := t.doc.Clone()
	if err := fn(); err != nil {
		return err
	}
	t.step(step{kind: stepRestructure, before: before, after: t.doc.Clone()})
	return nil
}

// cursor возвращает текстовый блок под концом выделения.
func (t *tx) cursor() (Pos, *tiptap.Node, error) {
	if t.sel.Node {
		return Pos{}, nil, ErrRejected
	}
	p := t.sel.To
	n := t.node(p.Path)
	if !isTextblock(t.reg, n) {
		return Pos{}, nil, ErrRejected
	}
	return p, n, nil
}

func (t *tx) isCode(n *tiptap.Node) bool {
	spec, ok := t.reg.Node(n.Type)
	return ok && spec.Content.Kind == schema.ContentText
}

// selectedBlocks возвращает пути текстовых блоков, задетых выделением.
func (t *tx) selectedBlocks() [][]int {
	if t.sel.Node {
		return nil
	}
	var out [][]int
	for _, path := range textblocks(t.reg, t.doc) {
		if comparePath(path, t.sel.From.Path) >= 0 && comparePath(path, t.sel.To.Path) <= 0 {
			out = append(out, path)
		}
	}
	return out
}

// blockRange возвращает диапазон границ выделения внутри блока path.
func (t *tx) blockRange(path []int, n *tiptap.Node) (int, int) {
	from, to := 0, inlineLen(n)
	if comparePath(path, t.sel.From.Path) == 0 {
		from = t.sel.From.Offset
	}
	if comparePath(path, t.sel.To.Path) == 0 {
		to = t.sel.To.Offset
	}
	return min(from, to), max(from, to)
}
