package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatMessage: тело POST /chat.
type ChatMessage struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Role      string `json:"role,omitempty"`
}

// ChatResponse: ответ POST /chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// HistoryMessage: одно сообщение беседы.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory: ответ GET /messages/{id}.
type ConversationHistory struct {
	ID        string           `json:"_id,omitempty"`
	SessionID string           `json:"session_id"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	Messages  []HistoryMessage `json:"messages"`
}

// Health: ответ GET /health.
type Health struct {
	Status    string `json:"status"`
	MongoDB   string `json:"mongodb,omitempty"`
	GenAI     string `json:"genai,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatClient вызывает чат-API от имени сессии Manager.
//
// Без сохранённого access-токена вызов завершается ErrNoToken до сети.
// 401 завершает сессию (Manager.Logout). 5xx возвращается как *APIError,
// сессия при этом не меняется.
type ChatClient struct {
	baseURL string
	m       *Manager
	t       *transport
}

// NewChatClient создаёт клиента чат-API.
func NewChatClient(baseURL string, m *Manager, opts ...Option) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		m:       m,
		t:       newTransport("chat-api", opts),
	}
}

// Send отправляет сообщение в текущую беседу. Если беседы ещё нет,
// создаётся новый идентификатор и сохраняется в Manager.
func (c *ChatClient) Send(ctx context.Context, message string) (*ChatResponse, error) {
	token := c.m.AccessToken()
	if token == "" {
		return nil, ErrNoToken
	}

	sid := c.m.ConversationID()
	if sid == "" {
		sid = uuid.NewString()
		if err := c.m.SetConversationID(sid); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(ChatMessage{SessionID: sid, Message: message, Role: "user"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out ChatResponse
	if err := c.call(req, token, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// History возвращает историю беседы. Пустой sessionID означает текущую беседу.
// Неизвестная беседа (404) даёт nil без ошибки.
func (c *ChatClient) History(ctx context.Context, sessionID string) (*ConversationHistory, error) {
	token := c.m.AccessToken()
	if token == "" {
		return nil, ErrNoToken
	}

	if sessionID == "" {
		sessionID = c.m.ConversationID()
		if sessionID == "" {
			return nil, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages/"+url.PathEscape(sessionID), http.NoBody)
	if err != nil {
		return nil, err
	}

	var out ConversationHistory
	if err := c.call(req, token, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &out, nil
}

// Health проверяет доступность чат-API. Токен не требуется.
func (c *ChatClient) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.t.do(req)
	if err != nil {
		return nil, err
	}

	var out Health
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *ChatClient) call(req *http.Request, token string, dst any) error {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.t.do(req)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.m.Logout()
		return &APIError{StatusCode: http.StatusUnauthorized, Message: "session expired"}
	}

	return decodeResponse(resp, dst)
}
