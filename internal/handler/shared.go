package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/errdefs"
)

const maxBodyBytes = 1 << 20

// decodeBody parses the JSON request body into target. On failure it has
// already written a 400 response.
func decodeBody(writer http.ResponseWriter, request *http.Request, target any) bool {
	decoder := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		msg := "invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "invalid request body: empty"
		}
		writeJSON(writer, http.StatusBadRequest, api.ErrorResponse{Error: msg})
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code
func writeJSON(writer http.ResponseWriter, statusCode int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	json.NewEncoder(writer).Encode(body)
}

// writeError maps err onto its HTTP status. Server-side failures are logged.
func writeError(writer http.ResponseWriter, logger *slog.Logger, operation string, err error) {
	code := errdefs.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(writer, code, api.ErrorResponse{Error: err.Error()})
}
