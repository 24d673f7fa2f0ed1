package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response renders itself to an HTTP response writer.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// JSONResponse is the standard JSON response structure
type JSONResponse struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON creates a 200 JSON response
func JSON(code string, data any, meta map[string]any) Response {
	return JSONWithStatus(http.StatusOK, code, data, meta)
}

// JSONWithStatus creates a JSON response with an explicit status code.
func JSONWithStatus(status int, code string, data any, meta map[string]any) Response {
	return jsonResponse{
		status: status,
		body: JSONResponse{
			Code: code,
			Data: data,
			Meta: meta,
		},
	}
}

// JSONError creates a JSON error response. Errors carrying an HTTPError use
// its status and key, and 4xx responses include the error message. Anything
// else is an internal error with a generic message.
func JSONError(err error) Response {
	httpErr := ErrInternalServerError
	if !errors.As(err, &httpErr) {
		httpErr = ErrInternalServerError
	}

	message := http.StatusText(httpErr.Code)
	if httpErr.Code < http.StatusInternalServerError && err != nil {
		message = err.Error()
	}

	return jsonResponse{
		status: httpErr.Code,
		body: JSONResponse{
			Code: httpErr.Key,
			Error: &ErrorDetail{
				Code:    httpErr.Key,
				Message: message,
			},
		},
	}
}
