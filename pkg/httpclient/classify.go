package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	apperrors "github.com/soukly/storefront-checkout/pkg/errors"
)

// maxErrorBody bounds how much of a collaborator error body is read.
const maxErrorBody = 1 << 20 // 1 MB

// IsJSON reports whether the response declares a JSON content type.
func IsJSON(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// DecodeJSON decodes a 2xx response body into v. A non-JSON content type or
// an unparseable body is a protocol error attributed to the named service;
// it is never treated as success.
//
// The response body is fully consumed and closed.
func DecodeJSON(resp *http.Response, serviceName string, v any) error {
	defer func() { _ = resp.Body.Close() }()

	if !IsJSON(resp) {
		return apperrors.Protocol(serviceName, fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return apperrors.Protocol(serviceName, "unparseable JSON body: "+err.Error())
	}
	return nil
}

// errorEnvelope covers the error body shapes the collaborators are known to
// produce: the standard {error:{code,message}} envelope and a flat {message}.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// message returns the structured message, if any.
func (e *errorEnvelope) message() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// ClassifyError translates a non-2xx collaborator response into the checkout
// error taxonomy:
//
//   - 5xx, regardless of body: TransientService (retryable).
//   - 4xx with a JSON body carrying a structured message: ValidationRejected
//     with the message verbatim, except 404 which maps to NotFound.
//   - anything else (non-JSON body, unparseable JSON, missing message):
//     Protocol — never swallowed.
//
// The caller must only invoke this for non-2xx responses. The body is fully
// consumed and closed.
func ClassifyError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return apperrors.TransientService(serviceName, fmt.Errorf("status %d", resp.StatusCode))
	}

	if !IsJSON(resp) {
		return apperrors.Protocol(serviceName, fmt.Sprintf("status %d with content type %q", resp.StatusCode, resp.Header.Get("Content-Type")))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.TransientService(serviceName, fmt.Errorf("read error body: %w", err))
	}

	var envelope errorEnvelope
	if json.Unmarshal(body, &envelope) != nil || envelope.message() == "" {
		return apperrors.Protocol(serviceName, fmt.Sprintf("status %d with unrecognized error body", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusNotFound {
		return &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: envelope.message(),
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	}
	return apperrors.ValidationRejected(envelope.message())
}
