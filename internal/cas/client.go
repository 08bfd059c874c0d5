// Package cas implements the client side of the CAS serviceValidate
// protocol used by the enterprise SSO server.
//
// The launcher web app hands the one-shot ticket from the SSO redirect to
// the auth gateway, which exchanges it here for an authenticated username.
// The CAS server is asked for a JSON response (format=json); the envelope is
// either an authenticationSuccess carrying the user, or an
// authenticationFailure carrying a code and description.
package cas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Outcome of a ticket validation against the CAS server.
type ValidationResult struct {
	// Validated is true only for an authenticationSuccess response.
	Validated bool

	// User is the authenticated username (FedID) on success.
	User string

	// Code and Description come from an authenticationFailure response.
	Code        string
	Description string
}

// serviceResponse mirrors the JSON envelope returned by /serviceValidate.
type serviceResponse struct {
	ServiceResponse struct {
		AuthenticationSuccess *struct {
			User string `json:"user"`
		} `json:"authenticationSuccess"`
		AuthenticationFailure *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"authenticationFailure"`
	} `json:"serviceResponse"`
}

// ErrInvalidServerResponse is the description reported when the CAS server
// response is unparseable or matches neither success nor failure.
const ErrInvalidServerResponse = "invalid_CAS_server_response"

// Client validates SSO tickets against a CAS server.
type Client struct {
	serverURL  string
	serviceURL string
	httpClient *http.Client
}

// NewClient creates a CAS client for the given server base URL and the fixed
// service URL registered with the SSO server.
func NewClient(serverURL, serviceURL string) *Client {
	return &Client{
		serverURL:  serverURL,
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ValidateTicket exchanges a ticket for a validation result.
//
// A transport-level failure is returned as an error; a CAS-level rejection
// or an unparseable body is reported through the result so the gateway can
// surface it to the browser as a structured response.
func (c *Client) ValidateTicket(ctx context.Context, ticket string) (*ValidationResult, error) {
	validateURL := fmt.Sprintf("%s/serviceValidate", c.serverURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build CAS request: %w", err)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("ticket", ticket)
	q.Set("service", c.serviceURL)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CAS serviceValidate request failed: %w", err)
	}
	defer resp.Body.Close()

	var envelope serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &ValidationResult{Validated: false, Description: ErrInvalidServerResponse}, nil
	}

	switch {
	case envelope.ServiceResponse.AuthenticationSuccess != nil:
		return &ValidationResult{
			Validated: true,
			User:      envelope.ServiceResponse.AuthenticationSuccess.User,
		}, nil
	case envelope.ServiceResponse.AuthenticationFailure != nil:
		failure := envelope.ServiceResponse.AuthenticationFailure
		return &ValidationResult{
			Validated:   false,
			Code:        failure.Code,
			Description: failure.Description,
		}, nil
	default:
		return &ValidationResult{Validated: false, Description: ErrInvalidServerResponse}, nil
	}
}
