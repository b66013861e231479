// Package response renders the JSON envelope every pinboard endpoint answers with
package response

import (
	"encoding/json"
	"net/http"

	"wuyrush.io/pinboard/common/logging"
	pe "wuyrush.io/pinboard/errors"
)

type Payload struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK wraps data into a successful payload
func OK(msg string, data interface{}) Payload {
	return Payload{Success: true, Message: msg, Data: data}
}

// Failed wraps err into a failure payload. Internal failures do not leak their causes to clients.
func Failed(err *pe.PinErr) Payload {
	msg := err.Error()
	if err.StatusCode() >= http.StatusInternalServerError {
		msg = http.StatusText(err.StatusCode())
	}
	return Payload{Success: false, Message: msg, Data: map[string]string{"code": string(err.Code)}}
}

// JSON sends payload with given status
func JSON(w http.ResponseWriter, status int, payload Payload) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithFuncName().WithError(err).Warn("error writing response")
	}
}

// Error answers err with its associated status code
func Error(w http.ResponseWriter, err *pe.PinErr) {
	JSON(w, err.StatusCode(), Failed(err))
}
