package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-ledger/ledger"
)

// Error codes that are not ledger validation codes.
const (
	CodeInvalidBody = "invalid_body"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeIntegrity   = "integrity"
	CodeUnavailable = "storage_unavailable"
	CodeInternal    = "internal"
)

// statusFor maps the ledger error taxonomy onto HTTP:
//
//	Validation       -> 400
//	NotFound         -> 404
//	Conflict         -> 409
//	Integrity        -> 409
//	TransientStorage -> 503
//	anything else    -> 500
func statusFor(err error) (int, string) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Code
	case errors.Is(err, ledger.ErrIntegrity):
		return http.StatusConflict, CodeIntegrity
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, ledger.ErrTransientStorage):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ValidationDetail locates a rejected field. Line is 1-based; 0 means header.
type ValidationDetail struct {
	Field string `json:"field"`
	Line  int    `json:"line,omitempty"`
}

// writeLedgerError renders err with the status statusFor picks. Internal
// failures are logged and their cause is not echoed to the client.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		resp.Error = verr.Message
		resp.Details = ValidationDetail{Field: verr.Field, Line: verr.Line + 1}
	}

	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		}).Error("request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}

	writeJSON(w, status, resp)
}

// writeBindError reports a body that failed to decode or failed struct tags.
func writeBindError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "request validation failed",
			Code:    codeForTags(verrs),
			Details: processValidationErrors(verrs),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid request body",
		Code:    CodeInvalidBody,
		Details: err.Error(),
	})
}

// processValidationErrors flattens validator output to field -> failed tag.
func processValidationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// codeForTags picks the ledger code for the first failed tag.
func codeForTags(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return ledger.CodeMissingField
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "lines":
		return ledger.CodeNoLines
	case fe.Tag() == "ledgerkind":
		return ledger.CodeInvalidKind
	default:
		return ledger.CodeMissingField
	}
}
