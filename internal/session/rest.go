package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Room is a room summary as returned by the chat API.
type Room struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	IsGroup       bool       `json:"is_group"`
	Members       []Member   `json:"members"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

// Member is a room participant.
type Member struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// Message is a stored chat message as returned by the history endpoint.
type Message struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id"`
	SenderID          int64     `json:"sender_id"`
	SenderHandle      string    `json:"sender_handle"`
	SenderDisplayName string    `json:"sender_display_name"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

// APIError is a non-2xx response from the chat API.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat api: %s (%s, http %d)", e.Msg, e.Code, e.Status)
	}
	return fmt.Sprintf("chat api: http %d", e.Status)
}

// Client calls the chat REST API with an explicitly injected bearer
// token. It never reads ambient session state.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a REST client for the API rooted at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// ListRooms returns the user's rooms, most recently active first.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, "/chat/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom creates a group room with the given participants.
func (c *Client) CreateRoom(ctx context.Context, name string, participantIDs []int64) (*Room, error) {
	body := struct {
		Name           string  `json:"name"`
		IsGroup        bool    `json:"is_group"`
		ParticipantIDs []int64 `json:"participant_ids"`
	}{name, true, participantIDs}
	var room Room
	if err := c.do(ctx, http.MethodPost, "/chat/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateDirectRoom returns the direct room with recipientID, creating it
// on first use. Repeat calls yield the same room.
func (c *Client) CreateDirectRoom(ctx context.Context, recipientID int64) (*Room, error) {
	body := struct {
		RecipientID int64 `json:"recipient_id"`
	}{recipientID}
	var room Room
	if err := c.do(ctx, http.MethodPost, "/chat/rooms/direct", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom fetches one room summary.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/chat/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListMessages pages through a room's history, oldest first. beforeID,
// when non-nil, returns only messages older than that id.
func (c *Client) ListMessages(ctx context.Context, roomID string, limit int, beforeID *string) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if beforeID != nil {
		q.Set("before_id", *beforeID)
	}
	path := "/chat/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var messages []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead marks the whole room as read for the current user.
func (c *Client) MarkRead(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/read", nil, nil)
}

// RenameRoom renames a group room.
func (c *Client) RenameRoom(ctx context.Context, roomID, name string) (*Room, error) {
	body := struct {
		Name string `json:"name"`
	}{name}
	var room Room
	if err := c.do(ctx, http.MethodPatch, "/chat/rooms/"+url.PathEscape(roomID), body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
