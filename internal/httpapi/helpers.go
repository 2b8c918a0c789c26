package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJsonAndRespond serializes payload to JSON and writes it with the
// given status code, centralizing the header + encode + write sequence so
// every handler doesn't repeat it.
func writeJsonAndRespond(responseWriter http.ResponseWriter, statusCode int, payload any) {
	responseWriter.Header().Set("Content-Type", "application/json")

	serialized, err := json.Marshal(payload)
	if err != nil {
		http.Error(responseWriter, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	responseWriter.WriteHeader(statusCode)
	responseWriter.Write(serialized) //nolint:errcheck -- write errors are not actionable server-side
}

// writeErrorJsonAndLogIt logs the error and writes {"error": message} with
// the given status code. message is sent to the client as given; callers
// choose what to expose (writeConnectionError passes through the text of
// the fleet core's known errors and sends "internal error" for the rest).
func writeErrorJsonAndLogIt(responseWriter http.ResponseWriter, statusCode int, message string, logger *slog.Logger) {
	logger.Error("request error", "status", statusCode, "message", message)
	writeJsonAndRespond(responseWriter, statusCode, map[string]string{"error": message})
}
