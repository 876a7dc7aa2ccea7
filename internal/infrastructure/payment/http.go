package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"natrip-payments/internal/domain"
)

const maxResponseBody = 1 << 20

func newJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. Every failure comes
// back as *domain.ProviderError.
func do(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: provider, Message: fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &domain.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

// errorMessage pulls the human readable part out of a provider error body.
func errorMessage(body []byte, fallback string) string {
	var e struct {
		Message          string `json:"message"`
		Name             string `json:"name"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Details          []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 {
			return s
		}
		return fallback
	}

	switch {
	case len(e.Details) > 0 && e.Details[0].Issue != "":
		return e.Details[0].Issue
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Error != "":
		return e.Error
	case e.Name != "":
		return e.Name
	}
	return fallback
}
