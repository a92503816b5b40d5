package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AuthClient calls the unauthenticated auth endpoints to obtain a token.
type AuthClient struct {
	baseURL string
	http    *http.Client
}

// NewAuthClient builds an auth client for the API rooted at baseURL.
func NewAuthClient(baseURL string, httpClient *http.Client) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AuthClient{baseURL: baseURL, http: httpClient}
}

type authResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// Register creates an account and returns its token.
func (a *AuthClient) Register(ctx context.Context, handle, displayName, password string) (string, error) {
	body := struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}{handle, displayName, password}
	resp, err := a.post(ctx, "/api/auth/register", body)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Login exchanges credentials for a token.
func (a *AuthClient) Login(ctx context.Context, handle, password string) (string, error) {
	body := struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}{handle, password}
	resp, err := a.post(ctx, "/api/auth/login", body)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Guest creates a throwaway guest account and returns its token and
// session id.
func (a *AuthClient) Guest(ctx context.Context) (token, sessionID string, err error) {
	resp, err := a.post(ctx, "/api/auth/guest", nil)
	if err != nil {
		return "", "", err
	}
	return resp.Token, resp.SessionID, nil
}

func (a *AuthClient) post(ctx context.Context, path string, body any) (*authResponse, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}

	var decoded authResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &decoded, nil
}
