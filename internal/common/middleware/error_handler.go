package middleware

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"propchain/internal/common/errors"
)

// ErrorRenderer рисует HTML-страницу ошибки
type ErrorRenderer func(c *gin.Context, status int, appErr *errors.AppError)

// ErrorHandler middleware для обработки паник
func ErrorHandler(logger zerolog.Logger, render ErrorRenderer) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := GetRequestID(c)

		// Логируем панику
		logger.Error().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("Panic recovered")

		appErr := errors.New(errors.ErrCodeInternal, "Internal server error").
			WithDetail("panic", fmt.Sprintf("%v", recovered))

		sendErrorResponse(c, appErr, logger, render)
		c.Abort()
	})
}

// RequestID middleware для добавления ID запроса
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// WantsJSON сообщает, ждет ли клиент JSON вместо страницы
func WantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// sendErrorResponse отправляет ошибку в формате JSON или страницей
func sendErrorResponse(c *gin.Context, appErr *errors.AppError, logger zerolog.Logger, render ErrorRenderer) {
	requestID := GetRequestID(c)

	// Добавляем контекст запроса к ошибке
	appErr.WithRequestID(requestID).
		WithContext("path", c.Request.URL.Path).
		WithContext("method", c.Request.Method)

	statusCode := errors.HTTPStatus(appErr.Code)

	logError(appErr, logger, c)

	if render == nil || WantsJSON(c) {
		c.JSON(statusCode, ErrorResponse{
			Success:   false,
			Code:      string(appErr.Code),
			Message:   errors.UserMessage(appErr),
			Details:   publicDetails(appErr),
			Timestamp: time.Now(),
			RequestID: requestID,
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
		})
		return
	}
	render(c, statusCode, appErr)
}

// Внутренние детали (panic, stack) наружу не отдаем
func publicDetails(appErr *errors.AppError) any {
	if appErr.IsInternal() || len(appErr.Details) == 0 {
		return nil
	}
	return appErr.Details
}

// logError логирует ошибку с контекстом
func logError(appErr *errors.AppError, logger zerolog.Logger, c *gin.Context) {
	var event *zerolog.Event
	switch {
	case appErr.IsInternal():
		event = logger.Error()
	case appErr.IsValidation(), appErr.Code == errors.ErrCodeNotFound:
		event = logger.Info()
	default:
		event = logger.Warn()
	}

	event = event.
		Str("request_id", GetRequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("error_code", string(appErr.Code)).
		Str("error_message", appErr.Message)

	if len(appErr.Details) > 0 {
		detailsJSON, _ := json.Marshal(appErr.Details)
		event = event.RawJSON("details", detailsJSON)
	}
	if appErr.Cause != nil {
		event = event.AnErr("cause", appErr.Cause)
	}

	event.Msg("Application error occurred")
}

// GetRequestID получает ID запроса из контекста
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return "unknown"
}

// HandleErrorWrapper оборачивает обработчики для автоматической обработки ошибок
func HandleErrorWrapper(logger zerolog.Logger, render ErrorRenderer) func(gin.HandlerFunc) gin.HandlerFunc {
	return func(handler gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			handler(c)

			if len(c.Errors) == 0 || c.Writer.Written() {
				return
			}
			err := c.Errors.Last().Err

			// Если это уже AppError, используем её
			if appErr, ok := errors.AsAppError(err); ok {
				sendErrorResponse(c, appErr, logger, render)
				return
			}

			appErr := errors.Wrap(err, errors.ErrCodeInternal, "Handler error occurred")
			sendErrorResponse(c, appErr, logger, render)
		}
	}
}

// NoRoute отдает 404 в том же формате, что и остальные ошибки
func NoRoute(logger zerolog.Logger, render ErrorRenderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sendErrorResponse(c, errors.NewNotFoundError("page", c.Request.URL.Path), logger, render)
	}
}
