package handlers

import (
	"errors"
	"net/http"

	"github.com/nurksbr/siber-sub001/services"
	"github.com/nurksbr/siber-sub001/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. The body's error
// field carries the domain message; internal errors never leak their cause.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}

	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message),
			zap.Any("details", domainErr.Details))
	}
}

// HandleDecodeError answers a request whose body could not be decoded
func HandleDecodeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	logger.Debug("invalid request body", zap.Error(err))
	if writeErr := utils.WriteBadRequest(w, "Geçersiz istek gövdesi", nil); writeErr != nil {
		logger.Error("failed to write bad request response", zap.Error(writeErr))
	}
}
