/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

Every response of the reference backend uses the same envelope the planning poker client
decodes: a success flag, a message, an optional data payload and, on failure, the business
code plus optional field-level details.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

// Envelope is the JSON body of every response.
type Envelope struct {
	Success bool `json:"success"`

	// Code is the business status code: 0 for success, see the errs package otherwise.
	Code int `json:"code"`

	Message string `json:"message"`

	Data any `json:"data,omitempty"`

	// Errors carries field-level messages for failed requests.
	Errors []string `json:"errors,omitempty"`
}

// RespondJSON sets the Content-Type and writes payload with httpStatus.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
			"path", r.URL.Path,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends an HTTP 200 envelope carrying data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, Envelope{
		Success: true,
		Message: "success",
		Data:    data,
	})
}

// RespondError sends the envelope for e using its HTTP status. A nil e is
// reported as ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, e *errs.Error) {
	if e == nil {
		e = errs.NewError(errs.ErrUnknown)
	}

	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	RespondJSON(w, r, status, Envelope{
		Success: false,
		Code:    e.Code,
		Message: e.Message,
		Errors:  e.Details,
	})
}
