package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	errs "github.com/OlexDemOn/IoT-app/data-simulator/errors"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes body before writing the status, so an encoding failure
// still answers with a JSON error.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error().Msgf("Failed to encode response: %s", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorBody{Error: "Error encoding response"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Error().Msgf("Failed to write response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeServiceError maps classified errors to a status code. Validation
// messages go back to the caller as they are; anything else is logged and
// answered with the generic message.
func writeServiceError(w http.ResponseWriter, err error, generic string) {
	if errs.IsInvalid(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error().Msgf("%s: %s", generic, err)
	writeError(w, http.StatusInternalServerError, generic)
}
