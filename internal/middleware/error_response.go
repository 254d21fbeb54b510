package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialfeed/internal/model"
)

// ResponseBody はAPIレスポンスの統一フォーマット。
// 成功時も失敗時も同じ形で返す。
type ResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// WriteSuccessResponse は成功レスポンスを統一フォーマットで書き込む。
func WriteSuccessResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, ResponseBody{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// dataは常にnull。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, ResponseBody{
		Success: false,
		Message: apiErr.Message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func writeJSON(w http.ResponseWriter, statusCode int, body ResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", slog.String("error", err.Error()))
	}
}
