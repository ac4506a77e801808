package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/ec-order-sync/internal/api/middleware"
	"github.com/example/ec-order-sync/internal/apperror"
	"go.uber.org/zap"
)

var errBadID = errors.New("invalid id")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps a domain error onto its status. Unexpected errors are
// logged and hidden from the caller.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindUnexpected {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	respondJSONError(w, apperror.PublicMessage(err), kind.HTTPStatus())
}

// decodeJSON rejects bodies that are not a single JSON object.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func extractPathParam(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func methodNotAllowed(w http.ResponseWriter) {
	respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
}
