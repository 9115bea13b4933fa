package events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	log "github.com/sirupsen/logrus"
)

const (
	defaultReconnectDelay = 3 * time.Second
	handshakeTimeout      = 10 * time.Second
)

type HandlerFunc func(Event)

// Client 는 세션 이벤트 웹소켓을 구독한다. 연결이 끊기면 잠시 뒤 다시 연결한다.
type Client struct {
	url            string
	header         http.Header
	handler        HandlerFunc
	dialer         *websocket.Dialer
	ReconnectDelay time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url, viewerID string, handler HandlerFunc) *Client {
	header := http.Header{}
	if viewerID != "" {
		header.Set("X-Viewer-Id", viewerID)
	}
	return &Client{
		url:            url,
		header:         header,
		handler:        handler,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		ReconnectDelay: defaultReconnectDelay,
	}
}

// Run 은 ctx 가 끝날 때까지 연결과 재연결을 반복한다.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warnf("events: connection to %s lost: %v, reconnecting in %v", c.url, err, c.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.ReconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Infof("events: connected to %s", c.url)

	// ctx 가 끝나면 읽기를 깨운다.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := Decode(data)
		if err != nil {
			log.Warn("events: ", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("events: handler panic: ", r)
		}
	}()
	if c.handler != nil {
		c.handler(ev)
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
