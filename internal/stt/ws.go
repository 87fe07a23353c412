package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"

	"github.com/vettalabs/vetta-core/internal/config"
)

type wsStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDialer builds the production dialer: fetch a short-lived credential
// over HTTP, then open the streaming socket with it.
func NewDialer(cfg config.STTConfig) Dialer {
	return func(ctx context.Context) (Stream, error) {
		token, err := fetchToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return dial(ctx, cfg, token)
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func fetchToken(ctx context.Context, cfg config.STTConfig) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", cfg.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch stt token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("stt token endpoint returned status %s", resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode stt token: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("stt token endpoint returned empty token")
	}
	return tok.Token, nil
}

func dial(ctx context.Context, cfg config.STTConfig, token string) (Stream, error) {
	endpoint, err := url.Parse(cfg.SocketURL)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("token", token)
	endpoint.RawQuery = q.Encode()

	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, timeout)
	defer cancelDial()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn, _, err := websocket.Dial(dialCtx, endpoint.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial stt socket: %w", err)
	}
	// transcripts can exceed the library default read limit
	conn.SetReadLimit(1 << 20)

	return &wsStream{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *wsStream) Send(ctx context.Context, pcm []byte) error {
	return s.conn.Write(ctx, websocket.MessageBinary, pcm)
}

func (s *wsStream) Recv(ctx context.Context) (TurnMessage, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return TurnMessage{}, err
	}
	var msg TurnMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TurnMessage{}, fmt.Errorf("decode stt message: %w", err)
	}
	return msg, nil
}

func (s *wsStream) Terminate(ctx context.Context) error {
	payload := []byte(`{"type":"` + messageTypeTerminate + `"}`)
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *wsStream) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
