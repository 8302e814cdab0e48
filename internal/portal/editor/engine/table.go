package engine

import (
	"slices"

	"github.com/comunidadeds/portal/internal/portal/editor/tiptap"
)

// tableCtx - положение курсора в таблице.
type tableCtx struct {
	path []int
	row  int
	col  int
}

func isCell(n *tiptap.Node) bool {
	return n != nil && (n.Type == tiptap.TypeTableCell || n.Type == tiptap.TypeTableHeader)
}

// findTable ищет ближайшую ячейку таблицы над началом выделения.
func (t *tx) findTable() (tableCtx, error) {
	path := t.sel.From.Path
	for i := len(path); i >= 3; i-- {
		if !isCell(t.node(path[:i])) {
			continue
		}
		row, table := t.node(path[:i-1]), t.node(path[:i-2])
		if row == nil || row.Type != tiptap.TypeTableRow || table == nil || table.Type != tiptap.TypeTable {
			continue
		}
		return tableCtx{path: slices.Clone(path[:i-2]), row: path[i-2], col: path[i-1]}, nil
	}
	return tableCtx{}, ErrNotInTable
}

func (c tableCtx) rowPath(row int) []int {
	return append(slices.Clone(c.path), row)
}

func isHeaderRow(table *tiptap.Node) bool {
	if len(table.Content) == 0 || len(table.Content[0].Content) == 0 {
		return false
	}
	for _, cell := range table.Content[0].Content {
		if cell.Type != tiptap.TypeTableHeader {
			return false
		}
	}
	return true
}

// isHeaderColumn проверяет первый столбец. Строку заголовка учитывает только таблица из одной строки.
func isHeaderColumn(table *tiptap.Node) bool {
	rows := table.Content
	if len(rows) > 1 {
		rows = rows[1:]
	} else if isHeaderRow(table) {
		return false
	}
	for _, row := range rows {
		if len(row.Content) == 0 || row.Content[0].Type != tiptap.TypeTableHeader {
			return false
		}
	}
	return len(rows) > 0
}

func (t *tx) newCell(header bool) tiptap.Node {
	if header {
		return t.reg.Create(tiptap.TypeTableHeader, nil)
	}
	return t.reg.Create(tiptap.TypeTableCell, nil)
}

func (t *tx) addRow(after bool) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	headerCol := isHeaderColumn(table)
	cols := len(table.Content[ctx.row].Content)

	row := tiptap.Node{Type: tiptap.TypeTableRow}
	for j := range cols {
		row.Content = append(row.Content, t.newCell(j == 0 && headerCol))
	}
	idx := ctx.row
	if after {
		idx++
	}
	insertChildren(table, idx, row)
	t.step(step{kind: stepInsert, path: ctx.path, index: idx, count: 1})
	return nil
}

func (t *tx) addColumn(after bool) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	headerRow := isHeaderRow(table)
	idx := ctx.col
	if after {
		idx++
	}
	for i := range table.Content {
		row := &table.Content[i]
		at := min(idx, len(row.Content))
		insertChildren(row, at, t.newCell(i == 0 && headerRow))
		t.step(step{kind: stepInsert, path: ctx.rowPath(i), index: at, count: 1})
	}
	return nil
}

// deleteTable удаляет таблицу. Опустевший родитель получит пустой параграф при фиксации.
func (t *tx) deleteTable(ctx tableCtx) error {
	parentPath := ctx.path[:len(ctx.path)-1]
	idx := ctx.path[len(ctx.path)-1]
	removeChildren(t.node(parentPath), idx, 1)
	t.step(step{kind: stepDelete, path: slices.Clone(parentPath), index: idx, count: 1})
	return nil
}

type AddRowBefore struct{}

func (AddRowBefore) Name() string { return "addRowBefore" }
func (AddRowBefore) apply(t *tx) error { return t.addRow(false) }

type AddRowAfter struct{}

func (AddRowAfter) Name() string { return "addRowAfter" }
func (AddRowAfter) apply(t *tx) error { return t.addRow(true) }

type AddColumnBefore struct{}

func (AddColumnBefore) Name() string { return "addColumnBefore" }
func (AddColumnBefore) apply(t *tx) error { return t.addColumn(false) }

type AddColumnAfter struct{}

func (AddColumnAfter) Name() string { return "addColumnAfter" }
func (AddColumnAfter) apply(t *tx) error { return t.addColumn(true) }

// DeleteRow удаляет строку с курсором. Удаление последней строки удаляет таблицу.
type DeleteRow struct{}

func (DeleteRow) Name() string { return "deleteRow" }

func (DeleteRow) apply(t *tx) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	if len(table.Content) <= 1 {
		return t.deleteTable(ctx)
	}
	removeChildren(table, ctx.row, 1)
	t.step(step{kind: stepDelete, path: ctx.path, index: ctx.row, count: 1})
	return nil
}

// DeleteColumn удаляет столбец с курсором. Удаление последнего столбца удаляет таблицу.
type DeleteColumn struct{}

func (DeleteColumn) Name() string { return "deleteColumn" }

func (DeleteColumn) apply(t *tx) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	if len(table.Content[ctx.row].Content) <= 1 {
		return t.deleteTable(ctx)
	}
	for i := range table.Content {
		row := &table.Content[i]
		if ctx.col >= len(row.Content) {
			continue
		}
		removeChildren(row, ctx.col, 1)
		t.step(step{kind: stepDelete, path: ctx.rowPath(i), index: ctx.col, count: 1})
	}
	return nil
}

// ToggleHeaderRow переключает ячейки первой строки между заголовками и обычными ячейками.
type ToggleHeaderRow struct{}

func (ToggleHeaderRow) Name() string { return "toggleHeaderRow" }

func (ToggleHeaderRow) apply(t *tx) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	on := !isHeaderRow(table)
	keepFirst := isHeaderColumn(table) && len(table.Content) > 1
	for j := range table.Content[0].Content {
		setCellType(&table.Content[0].Content[j], on || (j == 0 && keepFirst))
	}
	t.changed = true
	return nil
}

// ToggleHeaderColumn переключает ячейки первого столбца между заголовками и обычными ячейками.
type ToggleHeaderColumn struct{}

func (ToggleHeaderColumn) Name() string { return "toggleHeaderColumn" }

func (ToggleHeaderColumn) apply(t *tx) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	table := t.node(ctx.path)
	on := !isHeaderColumn(table)
	headerRow := isHeaderRow(table) && len(table.Content[0].Content) > 1
	for i := range table.Content {
		row := &table.Content[i]
		if len(row.Content) == 0 {
			continue
		}
		setCellType(&row.Content[0], on || (i == 0 && headerRow))
	}
	t.changed = true
	return nil
}

func setCellType(cell *tiptap.Node, header bool) {
	if header {
		cell.Type = tiptap.TypeTableHeader
	} else {
		cell.Type = tiptap.TypeTableCell
	}
}

// DeleteTable удаляет таблицу с курсором.
type DeleteTable struct{}

func (DeleteTable) Name() string { return "deleteTable" }

func (DeleteTable) apply(t *tx) error {
	ctx, err := t.findTable()
	if err != nil {
		return err
	}
	return t.deleteTable(ctx)
}
