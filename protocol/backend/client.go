package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kokoavailable/livesync/av"

	log "github.com/sirupsen/logrus"
)

var (
	ErrStatus = fmt.Errorf("unexpected backend status")
)

// 실시간 생성 시작 응답. 상품 단위면 audio_url, 세션 단위면 audio_urls 가 채워진다.
type RealtimeStart struct {
	AudioURL  string          `json:"audio_url"`
	AudioURLs []PlaylistAudio `json:"audio_urls"`
	FPS       int             `json:"fps"`
}

type PlaylistAudio struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	AudioURL    string  `json:"audio_url"`
	StartTime   float64 `json:"start_time"`
	Duration    float64 `json:"duration"`
	Order       int     `json:"order"`
}

func (a PlaylistAudio) Unit() av.ProductStreamUnit {
	return av.ProductStreamUnit{
		ProductID:   a.ProductID,
		ProductName: a.ProductName,
		AudioURL:    a.AudioURL,
		StartTime:   a.StartTime,
		Duration:    a.Duration,
		Order:       a.Order,
	}
}

type GenerationStatus struct {
	IsGenerating bool `json:"is_generating"`
}

type MuseTalkStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AudioURL string `json:"audio_url"`
	Order    int    `json:"order"`
}

type Session struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	FPS          int       `json:"fps"`
	WaitDuration float64   `json:"wait_duration"`
	Products     []Product `json:"products"`
}

// MediaSession 은 세션 응답을 내부 모델로 바꾼다. 모르는 상태 값은 preparing 으로 본다.
func (s Session) MediaSession() av.MediaSession {
	status, err := av.ParseSessionStatus(s.Status)
	if err != nil {
		log.Warnf("session %s: %v", s.ID, err)
	}
	return av.MediaSession{
		SessionID:    s.ID,
		FPS:          s.FPS,
		Status:       status,
		WaitDuration: time.Duration(s.WaitDuration * float64(time.Second)),
	}
}

// Client 는 영상 생성 백엔드의 HTTP API 를 부른다.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// StartRealtime 은 세션(과 상품)의 실시간 생성을 시작한다. productID 가 비면 세션 전체이다.
func (c *Client) StartRealtime(ctx context.Context, sessionID, productID string) (RealtimeStart, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	if productID != "" {
		q.Set("product_id", productID)
	}
	var out RealtimeStart
	if err := c.do(ctx, http.MethodPost, "/webrtc/realtime/start", q, &out); err != nil {
		return RealtimeStart{}, err
	}
	log.Debugf("realtime started: session=%s product=%s audio=%s audios=%d fps=%d",
		sessionID, productID, out.AudioURL, len(out.AudioURLs), out.FPS)
	return out, nil
}

func (c *Client) GenerationStatus(ctx context.Context, sessionID string) (GenerationStatus, error) {
	var out GenerationStatus
	err := c.do(ctx, http.MethodGet, "/webrtc/realtime/status/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

func (c *Client) MuseTalkStatus(ctx context.Context) (MuseTalkStatus, error) {
	var out MuseTalkStatus
	err := c.do(ctx, http.MethodGet, "/webrtc/musetalk/status", nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}
