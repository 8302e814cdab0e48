// Валидация запросов API портала (go-playground/validator).
//
// Основные возможности:
//   - Проверка адреса страницы (строчные латинские буквы, цифры и дефис).
//   - Проверка заголовка страницы с отдельными ошибками для пустого и слишком длинного.
//   - Проверка формата импорта.
package portal

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator"

	"github.com/comunidadeds/portal/internal/portal/apierrors"
)

const maxTitleLength = 200

var slugRegexp = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Форматы импорта.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	err := v.RegisterValidation("slug", slugValidator)
	if err != nil {
		return nil
	}

	err = v.RegisterValidation("pageTitle", pageTitleValidator)
	if err != nil {
		return nil
	}
	return &RequestValidator{v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.validator.Struct(i); err != nil {
		_, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil
		}
		return err
	}
	return nil
}

func slugValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return slugRegexp.MatchString(value) && len(value) <= 100
}

func pageTitleValidator(fl validator.FieldLevel) bool {
	return checkTitle(fl.Field().String()) == nil
}

// checkTitle проверяет заголовок страницы и возвращает ошибку каталога.
func checkTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apierrors.ErrPageTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return apierrors.ErrPageTitleTooLong
	}
	if strings.IndexFunc(title, unicode.IsControl) >= 0 {
		return apierrors.ErrValidation.WithFormattedMessage("title")
	}
	return nil
}
