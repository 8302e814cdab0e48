// Вспомогательные функции ответов с ошибками для API портала.
//
// Основные возможности:
//   - Ошибки каталога apierrors отдаются как есть, со своим HTTP статусом.
//   - Прочие ошибки пишутся в лог вместе со стеком stack_error и превращаются в ErrInternal.
//   - Ошибки валидации запроса отдаются как ErrValidation с перечнем полей.
package portal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
	stack_error "github.com/comunidadeds/portal/internal/portal/stack-error"
)

// EError возвращает ответ для ошибки обработчика. Неизвестные ошибки логируются и скрываются от клиента.
func EError(c echo.Context, err error) error {
	var defined apierrors.DefinedError
	if errors.As(err, &defined) {
		return EErrorDefined(c, defined)
	}

	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return EErrorDefined(c, apierrors.ErrValidation.WithFormattedMessage(validationFields(verr)))
	}

	if err == nil {
		slog.Error("Unknown API error",
			"method", c.Request().Method,
			"url", c.Request().URL,
			getCallerFile(),
		)
	} else {
		stack_error.LogError(c, err)
	}
	return EErrorDefined(c, apierrors.ErrInternal)
}

// EErrorMsgStatus возвращает ErrInvalidRequest с указанным статусом. 404 не логируется.
func EErrorMsgStatus(c echo.Context, err error, status int) error {
	if err != nil && status != http.StatusNotFound {
		slog.Error("API error",
			"err", err,
			"method", c.Request().Method,
			slog.Int("status", status),
			"url", c.Request().URL,
			getCallerFile(),
		)
	}
	er := apierrors.ErrInvalidRequest
	er.StatusCode = status
	return EErrorDefined(c, er)
}

// EErrorDefined отдает ошибку каталога в JSON. Если статус не задан, используется 400 Bad Request.
func EErrorDefined(c echo.Context, err apierrors.DefinedError) error {
	return c.JSON(err.Status(), err)
}

func validationFields(verr validator.ValidationErrors) string {
	fields := make([]string, 0, len(verr))
	for _, fe := range verr {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return strings.Join(fields, ", ")
}

// getCallerFile возвращает файл и строку обработчика, вызвавшего функцию ответа.
func getCallerFile() slog.Attr {
	_, path, no, ok := runtime.Caller(2)
	if !ok {
		return slog.Attr{}
	}
	_, file := filepath.Split(path)
	return slog.String("caller", fmt.Sprintf("%s:%d", file, no))
}
