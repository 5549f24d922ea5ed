/*
Package req provides helper functions for HTTP request parsing and data binding.

Bodies are decoded strictly: the media type must be JSON, the size is capped and
trailing content after the JSON value is rejected.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"planpoker/internal/pkg/errs"
)

// MaxBodySize caps every JSON request body.
const MaxBodySize int64 = 64 << 10

// BindJSON decodes the JSON body of r into dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.Error {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrExtraContentInBody)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat, err)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
