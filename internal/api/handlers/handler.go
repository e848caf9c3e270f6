// Пакет handlers — HTTP-обработчики JSpotlight.
package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON записывает JSON-ответ с заданным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
