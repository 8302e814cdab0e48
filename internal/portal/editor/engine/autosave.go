package engine

import (
	"context"
	"time"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// scheduleAutoSave перезапускает таймер автосохранения. Вызывается под e.mu после каждого изменения.
func (e *Engine) scheduleAutoSave() {
	if e.closed || e.opts.OnAutoSave == nil {
		return
	}
	e.saveGen++
	gen := e.saveGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.AutoSaveDelay, func() {
		e.autoSave(gen)
	})
}

// autoSave срабатывает по таймеру. Устаревшее поколение означает, что после запуска таймера
// документ менялся, было явное сохранение или движок закрыт.
func (e *Engine) autoSave(gen uint64) {
	e.mu.Lock()
	if gen != e.saveGen || e.closed {
		e.mu.Unlock()
		return
	}
	doc := e.doc.Clone()
	e.mu.Unlock()

	_ = e.runSave(context.Background(), e.opts.OnAutoSave, doc)
}

// Save сохраняет документ сразу, отменяя ожидающее автосохранение.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	e.saveGen++
	if e.timer != nil {
		e.timer.Stop()
	}
	doc := e.doc.Clone()
	e.mu.Unlock()

	fn := e.opts.OnSave
	if fn == nil {
		fn = e.opts.OnAutoSave
	}
	if fn == nil {
		return nil
	}
	return e.runSave(ctx, fn, doc)
}

// Saving возвращает true, пока выполняется сохранение.
func (e *Engine) Saving() bool {
	return e.saving.Load() > 0
}

func (e *Engine) runSave(ctx context.Context, fn SaveFunc, doc tiptap.Node) error {
	e.saving.Add(1)
	defer e.saving.Add(-1)

	if err := fn(ctx, doc); err != nil {
		e.reportError(err)
		return err
	}
	return nil
}
