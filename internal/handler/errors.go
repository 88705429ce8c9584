// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tekmint-dev/HackStack/internal/middleware"
	"github.com/tekmint-dev/HackStack/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCategory, model.ErrCodeInvalidSort:
		return http.StatusBadRequest
	case model.ErrCodeStoryNotFound, model.ErrCodeCommentNotFound:
		return http.StatusNotFound
	case model.ErrCodeStoryNotSelected:
		return http.StatusConflict
	case model.ErrCodeNetworkFailure, model.ErrCodeDecodeFailure:
		return http.StatusBadGateway
	case model.ErrCodePersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
