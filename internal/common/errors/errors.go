package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeForbidden  ErrorCode = "FORBIDDEN"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"

	// Ошибки кошелька
	ErrCodeNotConnected        ErrorCode = "NOT_CONNECTED"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeUserRejected        ErrorCode = "USER_REJECTED"
	ErrCodeProvider            ErrorCode = "PROVIDER_ERROR"

	// Ошибки сети и контрактов
	ErrCodeChain       ErrorCode = "CHAIN_ERROR"
	ErrCodeTxReverted  ErrorCode = "TX_REVERTED"
	ErrCodeInFlight    ErrorCode = "ACTION_IN_FLIGHT"
	ErrCodeNoEscrow    ErrorCode = "NO_ESCROW"
	ErrCodeRoleMissing ErrorCode = "ROLE_MISSING"

	// Ошибки внешних хранилищ
	ErrCodeMetadataFetch ErrorCode = "METADATA_FETCH_ERROR"
	ErrCodeCacheError    ErrorCode = "CACHE_ERROR"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Context   map[string]string      `json:"context,omitempty"`
	Stack     []string               `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation || e.Code == ErrCodeBadRequest
}

// IsInternal проверяет, является ли ошибка внутренней ошибкой
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal || e.Code == ErrCodeCacheError
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID добавляет ID запроса к ошибке
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Stack:     getStackTrace(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getStackTrace возвращает стек вызовов
func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		// Пропускаем внутренние функции пакета errors
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 {
			break
		}
	}
	return stack
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Invalid %s: %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewNotFoundError создает ошибку "не найдено"
func NewNotFoundError(resource, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewNotConnectedError создает ошибку отсутствия подключенного кошелька
func NewNotConnectedError() *AppError {
	return New(ErrCodeNotConnected, "Connect wallet first")
}

// NewForbiddenError создает ошибку доступа
func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeForbidden, reason).
		WithDetail("reason", reason)
}

// NewInFlightError создает ошибку повторной отправки действия
func NewInFlightError(key string) *AppError {
	return New(ErrCodeInFlight, "This action is already waiting for confirmation").
		WithDetail("action_key", key)
}

// NewChainError оборачивает ошибку RPC или провайдера кошелька
func NewChainError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeChain, fmt.Sprintf("Chain operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewMetadataError оборачивает ошибку хранилища метаданных
func NewMetadataError(cid string, err error) *AppError {
	return Wrap(err, ErrCodeMetadataFetch, "Metadata unavailable").
		WithDetail("cid", cid)
}

// IsAppError проверяет, является ли ошибка AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil && stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки или ErrCodeInternal для чужих ошибок
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus возвращает HTTP статус для кода ошибки
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeNotConnected:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeRoleMissing, ErrCodeUserRejected:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeInFlight:
		return http.StatusConflict
	case ErrCodeNoEscrow:
		return http.StatusUnprocessableEntity
	case ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeChain, ErrCodeTxReverted, ErrCodeProvider, ErrCodeMetadataFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage возвращает текст для пользователя.
// Ошибки провайдера и контрактов показываются как есть.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := AsAppError(err)
	if !ok {
		return err.Error()
	}
	switch appErr.Code {
	case ErrCodeChain, ErrCodeProvider, ErrCodeTxReverted, ErrCodeUserRejected, ErrCodeProviderUnavailable:
		if appErr.Cause != nil {
			return appErr.Cause.Error()
		}
		return appErr.Message
	case ErrCodeInternal:
		return "Something went wrong, please try again"
	default:
		return appErr.Message
	}
}

// IsTransient сообщает, можно ли повторить операцию чтения
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Откат контракта детерминирован, повтор вернет то же самое
	if IsRevert(err) {
		return false
	}
	appErr, ok := AsAppError(err)
	if !ok {
		// Неклассифицированные ошибки RPC и сети считаем временными
		return true
	}
	switch appErr.Code {
	case ErrCodeChain, ErrCodeProvider, ErrCodeMetadataFetch, ErrCodeCacheError:
		return true
	default:
		return false
	}
}

// IsRevert сообщает, что eth_call откатился: узел вернул данные revert
// или сообщение "execution reverted"
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if stderrors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
