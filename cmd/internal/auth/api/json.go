package authapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func encodeJSON(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// decodeJSON reads at most maxBytes of resp.Body into dst.
func decodeJSON(resp *http.Response, maxBytes int64, dst any) error {
	if resp.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}

// readAPIError converts a non-2xx response into *APIError.
// Bodies that are not the standard error envelope still yield a status-only error.
func readAPIError(resp *http.Response, maxBytes int64) *APIError {
	out := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		out.Code = strings.TrimSpace(er.Error.Code)
		out.Message = strings.TrimSpace(er.Error.Message)
	}
	return out
}
