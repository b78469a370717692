package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const sessionHeader = "X-Session-ID"

// apiClient calls the support service's JSON API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) httpClient() *http.Client {
	if c.http != nil {
		return c.http
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

// do sends body as JSON and decodes a 2xx response into out. Error
// responses are turned into errors carrying the server's message.
func (c *apiClient) do(method, path string, body, out interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// openSession connects the session WebSocket and returns the connection
// with the session ID the server assigned.
func (c *apiClient) openSession() (*websocket.Conn, string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/session"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("open session: %w", err)
	}
	var opened struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := conn.ReadJSON(&opened); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("read session id: %w", err)
	}
	if opened.SessionID == "" {
		conn.Close()
		return nil, "", fmt.Errorf("server sent %q instead of a session id", opened.Type)
	}
	return conn, opened.SessionID, nil
}
