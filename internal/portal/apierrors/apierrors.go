// Пакет содержит определения ошибок API портала: страницы вики, выгрузки изображений, импорт и сессии редактора.
// Каждая ошибка имеет код, статус HTTP, описание и сообщение для пользователя на португальском.
//
// Основные возможности:
//   - Каталог ошибок, сгруппированный по областям (1*** страницы, 2*** выгрузки, 3*** редактор и импорт, 9*** общие).
//   - Соответствие кодам HTTP статусов.
//   - Форматирование сообщений с аргументами.
package apierrors

import (
	"fmt"
	"net/http"
	"strings"
)

type DefinedError struct {
	Code       int    `json:"code"`
	StatusCode int    `json:"-"`
	Err        string `json:"error"`
	PtErr      string `json:"pt_error,omitempty"`
}

func (e DefinedError) Error() string {
	return e.Err
}

// Status возвращает HTTP статус ошибки, по умолчанию 400.
func (e DefinedError) Status() int {
	if e.StatusCode == 0 {
		return http.StatusBadRequest
	}
	return e.StatusCode
}

var (
	// 1*** - wiki page errors
	ErrPageNotFound      = DefinedError{Code: 1001, StatusCode: http.StatusNotFound, Err: "wiki page not found", PtErr: "Página não encontrada"}
	ErrPageSlugConflict  = DefinedError{Code: 1002, StatusCode: http.StatusConflict, Err: "wiki page with that slug already exists", PtErr: "Já existe uma página com este endereço"}
	ErrPageTitleRequired = DefinedError{Code: 1003, Err: "wiki page must have a title", PtErr: "O título da página não pode ficar vazio"}
	ErrPageTitleTooLong  = DefinedError{Code: 1004, Err: "wiki page title is too long", PtErr: "O título da página é longo demais"}
	ErrPageSaveFailed    = DefinedError{Code: 1005, StatusCode: http.StatusInternalServerError, Err: "failed to save wiki page", PtErr: "Não foi possível salvar a página"}

	// 2*** - upload errors
	ErrUploadFileRequired = DefinedError{Code: 2001, Err: "file is required", PtErr: "Selecione um arquivo"}
	ErrUploadTooLarge     = DefinedError{Code: 2002, StatusCode: http.StatusRequestEntityTooLarge, Err: "file exceeds %d MB", PtErr: "O arquivo excede %d MB"}
	ErrUploadNotImage     = DefinedError{Code: 2003, StatusCode: http.StatusUnsupportedMediaType, Err: "only images can be uploaded", PtErr: "Apenas imagens podem ser enviadas"}
	ErrUploadFailed       = DefinedError{Code: 2004, StatusCode: http.StatusBadGateway, Err: "upload to storage failed", PtErr: "Falha ao enviar a imagem. Tente novamente"}

	// 3*** - editor and import errors
	ErrImportFormat     = DefinedError{Code: 3001, Err: "unsupported import format %s", PtErr: "Formato de importação não suportado: %s"}
	ErrImportFailed     = DefinedError{Code: 3002, Err: "document import failed", PtErr: "Não foi possível importar o documento"}
	ErrUnknownCommand   = DefinedError{Code: 3003, Err: "unknown editor command %s", PtErr: "Comando do editor desconhecido: %s"}
	ErrCommandRejected  = DefinedError{Code: 3004, Err: "editor command rejected", PtErr: "O comando não pode ser aplicado aqui"}
	ErrInvalidMessage   = DefinedError{Code: 3005, Err: "invalid edit session message", PtErr: "Mensagem inválida"}
	ErrInvalidSelection = DefinedError{Code: 3006, Err: "invalid selection", PtErr: "Seleção inválida"}

	// 9*** - common errors
	ErrInvalidRequest = DefinedError{Code: 9001, Err: "invalid request", PtErr: "Requisição inválida"}
	ErrValidation     = DefinedError{Code: 9002, Err: "validation failed: %s", PtErr: "Dados inválidos: %s"}
	ErrInternal       = DefinedError{Code: 9003, StatusCode: http.StatusInternalServerError, Err: "internal error", PtErr: "Erro interno. Tente novamente mais tarde"}
)

func (e DefinedError) WithFormattedMessage(args ...interface{}) DefinedError {
	if len(args) > 0 {
		e.Err = fmt.Sprintf(e.Err, args...)
		e.PtErr = fmt.Sprintf(e.PtErr, args...)
	} else {
		e.Err = strings.NewReplacer("%s", "", "%d", "").Replace(e.Err)
		e.PtErr = strings.NewReplacer("%s", "", "%d", "").Replace(e.PtErr)
	}
	return e
}
