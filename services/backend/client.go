package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// The CRUD backend owns all durable records. This client only mutates
// participants and session records on its behalf.

// ErrNotFound marks a record the backend no longer has. Callers on the
// teardown/decline paths treat it as success.
var ErrNotFound = errors.New("record not found")

// ErrNotParticipant is the backend's answer to removing a member who was
// never added.
var ErrNotParticipant = errors.New("member is not a participant")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type participantRequest struct {
	Type        string `json:"type"` // "event" or "game"
	Participant string `json:"participant"`
	ID          string `json:"id"`
}

// AddParticipant appends a member to the persisted session record.
func (c *Client) AddParticipant(kind, sessionID, member string) error {
	body := participantRequest{Type: kind, Participant: member, ID: sessionID}
	return c.send(http.MethodPost, "/participants", body)
}

// RemoveParticipant drops a member from the persisted session record.
func (c *Client) RemoveParticipant(kind, sessionID, member string) error {
	body := participantRequest{Type: kind, Participant: member, ID: sessionID}
	return c.send(http.MethodDelete, "/participants", body)
}

// DeleteSession removes the persisted record itself.
func (c *Client) DeleteSession(kind, sessionID string) error {
	return c.send(http.MethodDelete, "/"+kind+"s", map[string]string{"id": sessionID})
}

// CreateSession persists a new session record from an approved room
// request's payload. Only approved requests ever reach this call.
func (c *Client) CreateSession(kind string, payload json.RawMessage) error {
	return c.send(http.MethodPost, "/"+kind+"s", payload)
}

func (c *Client) send(method, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling %s %s body: %v", method, path, err)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error building %s %s request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable for %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrNotParticipant
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d for %s %s: %s", resp.StatusCode, method, path, msg)
	}
}
