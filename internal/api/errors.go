package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrLoggerRequired = errors.New("api: logger is required")
	ErrLightsRequired = errors.New("api: light source is required")

	// ErrNotStarted is returned by HealthCheck before Start.
	ErrNotStarted = errors.New("api: server not started")
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Light command failures reuse the bridge's ack codes
// translated to these.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeTimeout        = "timeout"
	ErrCodeUnsupported    = "unsupported"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// defaultCodes gives the code used when a handler only picks a status.
var defaultCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllow,
	http.StatusGatewayTimeout:      ErrCodeTimeout,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
	http.StatusUnprocessableEntity: ErrCodeUnsupported,
}

// writeJSON encodes v before touching the response, so an encoding failure
// becomes a 500 rather than a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if v != nil {
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			status = http.StatusInternalServerError
			buf.Reset()
			json.NewEncoder(&buf).Encode(Error{ //nolint:errcheck,errchkjson // fixed shape
				Status: status, Code: ErrCodeInternal, Message: "response encoding failed",
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes()) //nolint:errcheck // client may have gone
}

// writeError writes an Error body with an explicit code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// fail writes an Error body whose code follows from status.
func fail(w http.ResponseWriter, status int, message string) {
	code, ok := defaultCodes[status]
	if !ok {
		code = ErrCodeInternal
	}
	writeError(w, status, code, message)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	fail(w, http.StatusNotFound, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	fail(w, http.StatusServiceUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	fail(w, http.StatusInternalServerError, message)
}
