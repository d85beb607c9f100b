package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, wire.StatusResponse{Success: false, Error: msg})
}

func statusOK() wire.StatusResponse {
	return wire.StatusResponse{Success: true}
}

// errorStatus maps a service error to its HTTP status and the message
// put on the wire. Internal details never leave the server.
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict, common.VersionConflictMessage
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrSizeLimit), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, common.ErrSizeLimit.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusInternalServerError, common.ErrorInternal.Error()
	}
}

func failErr(w http.ResponseWriter, err error) {
	code, msg := errorStatus(err)
	fail(w, code, msg)
}

// itemError is the per-item detail text of a batch reply.
func itemError(err error) string {
	_, msg := errorStatus(err)
	return msg
}

// decodeBody reads a JSON body of at most limit bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return &common.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}
