// Пакет stack_error накапливает цепочку мест возникновения ошибки и контекст запроса,
// чтобы обработчик ошибок echo мог вывести их одной записью в лог.
//
// Основные возможности:
//   - Обертка TrackerError поверх исходной ошибки (errors.Is/As продолжают работать).
//   - Файл и строка вызова добавляются при каждом TrackErrorStack/AddErr.
//   - Произвольный контекст (slug страницы, имя файла) через AddContext.
package stack_error

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/labstack/echo/v4"
)

type TrackerError struct {
	Context  map[string]any
	ErrStack []slog.Attr
	cause    error
}

// TrackErrorStack оборачивает ошибку или дополняет уже обернутую местом вызова.
func TrackErrorStack(err error) *TrackerError {
	var te *TrackerError
	if errors.As(err, &te) {
		te.ErrStack = append(te.ErrStack, callerAttr(err))
		return te
	}

	te = &TrackerError{
		Context:  make(map[string]any),
		ErrStack: []slog.Attr{callerAttr(err)},
		cause:    err,
	}
	return te
}

// AddContext добавляет значение в контекст. Первое значение ключа сохраняется.
func (te *TrackerError) AddContext(k string, v any) *TrackerError {
	if _, ok := te.Context[k]; !ok {
		te.Context[k] = v
	}
	return te
}

func (te *TrackerError) AddErr(err error) *TrackerError {
	te.ErrStack = append(te.ErrStack, callerAttr(err))
	return te
}

func (te *TrackerError) Error() string {
	if te.cause != nil {
		return te.cause.Error()
	}
	return "TrackerError"
}

func (te *TrackerError) Unwrap() error {
	return te.cause
}

// Attrs возвращает контекст и стек вызовов для slog.
func (te *TrackerError) Attrs() []any {
	res := make([]any, 0, len(te.Context)+1)
	for k, v := range te.Context {
		res = append(res, slog.Any(k, v))
	}
	stack := make([]string, 0, len(te.ErrStack))
	for _, attr := range te.ErrStack {
		stack = append(stack, attr.Value.String())
	}
	return append(res, slog.Any("trace", stack))
}

// LogError пишет ошибку в лог вместе с методом и адресом запроса.
func LogError(c echo.Context, err error) {
	var te *TrackerError
	var attrs []any

	if errors.As(err, &te) {
		attrs = te.Attrs()
	}
	attrs = append(attrs, slog.String("err", err.Error()))

	if c != nil {
		attrs = append(attrs,
			slog.String("method", c.Request().Method),
			slog.String("url", c.Request().URL.String()))
	}

	slog.With(attrs...).Error("Request failed")
}

func callerAttr(err error) slog.Attr {
	_, path, no, ok := runtime.Caller(2)
	if !ok {
		return slog.String("trace", "unknown")
	}
	_, file := filepath.Split(path)
	return slog.String("trace", fmt.Sprintf("%s:%d %s", file, no, err.Error()))
}
