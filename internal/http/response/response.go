// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Все ответы сервера несут
// поле success; ошибки дополняются текстом и машинным кодом.
package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator"
)

// ErrorResponse описывает структуру JSON-ответа с ошибкой.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Машинные коды ошибок, возвращаемые клиенту вместе с текстом.
const (
	CodeValidation      = "validation_error"
	CodeAuthRequired    = "auth_required"
	CodeEmailMismatch   = "email_mismatch"
	CodePremiumRequired = "premium_required"
	CodeDuplicate       = "duplicate"
	CodeNotFound        = "not_found"
	CodeExpired         = "expired"
	CodeInternal        = "internal_error"
)

// OK возвращает успешный ответ без дополнительных данных.
func OK() map[string]any {
	return map[string]any{"success": true}
}

// OKWithData возвращает успешный ответ, дополняя данные полем success.
func OKWithData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["success"] = true
	return out
}

// Error возвращает ответ с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   msg,
	}
}

// ErrorWithCode возвращает ответ с ошибкой, сообщением и машинным кодом.
func ErrorWithCode(msg, code string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error:   msg,
		Code:    code,
	}
}

// ValidationError формирует ответ с ошибкой на основе нарушений валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email address", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too long", err.Field()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s has an unsupported value", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return ErrorResponse{
		Success: false,
		Error:   strings.Join(errsMsgs, ", "),
		Code:    CodeValidation,
	}
}
