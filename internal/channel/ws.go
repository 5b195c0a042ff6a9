package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"sona/voice/internal/auth"
)

// WSDialer dials the backend voice channel over websocket, presenting an
// HMAC bearer token when a secret is configured.
type WSDialer struct {
	URL         string
	TokenSecret string
	TokenTTL    time.Duration

	clientID string
}

func NewWSDialer(url, tokenSecret string, tokenTTL time.Duration) *WSDialer {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &WSDialer{
		URL:         url,
		TokenSecret: tokenSecret,
		TokenTTL:    tokenTTL,
		clientID:    uuid.New().String(),
	}
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	hdr := make(http.Header)
	if d.TokenSecret != "" {
		exp := time.Now().Add(d.TokenTTL).Unix()
		hdr.Set("Authorization", "Bearer "+auth.GenerateSessionToken(d.TokenSecret, d.clientID, exp))
	}
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dctx, d.URL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
