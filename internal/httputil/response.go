// Package httputil holds the JSON response and query helpers shared by the
// API handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// RequireMethod writes a 405 and returns false unless r uses method.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// BadGateway reports a radar that did not answer or answered badly.
func BadGateway(w http.ResponseWriter, what string, err error) {
	WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("Failed to %s: %v", what, err))
}

// QueryInt parses the query parameter name, returning def when it is absent.
// Values outside [lo, hi] are an error.
func QueryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("Invalid '%s' parameter", name)
	}
	return v, nil
}
