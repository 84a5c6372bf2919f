/*
Package req provides helpers for decoding HTTP request bodies into typed inputs.
*/
package req

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"quickchat/internal/pkg/errs"
)

// MaxJSONBodySize bounds every JSON request body.
const MaxJSONBodySize int64 = 1 << 20 // 1 MB

// BindJSON decodes exactly one JSON document from the request body into dst.
// Unknown fields, trailing content and bodies over MaxJSONBodySize are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// ClientIP returns the host part of r.RemoteAddr, or "unknown_ip" when it is empty.
// Run behind chi's RealIP middleware so proxies are honoured.
func ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		return "unknown_ip"
	}
	return ip
}
