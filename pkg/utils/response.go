package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrBodyTooLarge is returned by ReadBody when the request exceeds the
// limit installed by http.MaxBytesReader.
var ErrBodyTooLarge = errors.New("request body too large")

// ErrNotJSON is returned by ReadJSONBody when the request does not declare
// an application/json body. Such bodies are left unread.
var ErrNotJSON = errors.New("request body is not application/json")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse 成功响应 {ok:true}
type OKResponse struct {
	OK bool `json:"ok"`
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// WriteSuccessResponse 写入200响应
func WriteSuccessResponse(w http.ResponseWriter, data any) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteOKResponse 写入 {ok:true}
func WriteOKResponse(w http.ResponseWriter) {
	WriteJSONResponse(w, http.StatusOK, OKResponse{OK: true})
}

// WriteErrorResponse 写入错误响应
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, message)
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusUnauthorized, message)
}

// WriteForbiddenResponse 写入403错误响应
func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, message)
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, message)
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, message)
}

// WriteBodyTooLargeResponse 写入413错误响应
func WriteBodyTooLargeResponse(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
}

// ReadBody 读取请求体
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

// IsJSONRequest 检查Content-Type是否为application/json（忽略charset等参数）
func IsJSONRequest(r *http.Request) bool {
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	return contentType == "application/json" || strings.HasPrefix(contentType, "application/json;")
}

// ReadJSONBody reads the body of a JSON request. Any other request yields
// ErrNotJSON so callers reject it like a malformed payload.
func ReadJSONBody(r *http.Request) ([]byte, error) {
	if !IsJSONRequest(r) {
		return nil, ErrNotJSON
	}
	return ReadBody(r)
}

// ParseJSONBody 解析JSON请求体
func ParseJSONBody(r *http.Request, v any) error {
	body, err := ReadJSONBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
