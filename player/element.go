package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kokoavailable/livesync/parser"

	log "github.com/sirupsen/logrus"
)

var (
	ErrElementClosed = fmt.Errorf("audio element closed")
)

// 오디오 리소스 하나를 다루는 최소 기능이다. HTMLAudioElement 의 재생 제어 부분에 해당한다.
// 위치 단위는 초이다.
type Element interface {
	Play() error
	Pause()
	CurrentTime() float64
	SetCurrentTime(sec float64)
	Paused() bool
	Ended() bool
	Duration() float64
	Close()
}

// URL 로 오디오를 끝까지 받아 재생 가능한 Element 를 만든다.
// 반환 시점은 canplaythrough 와 같다. 더 이상 버퍼링으로 멈추지 않는다.
type Loader interface {
	Load(ctx context.Context, src string) (Element, error)
}

// 벽시계를 기준으로 재생 위치가 흘러가는 Element 이다.
// 재생 중에는 pos + (now - startedAt) 가 현재 위치이고, 길이에 닿으면 끝난 상태가 된다.
type clockElement struct {
	mu        sync.Mutex
	src       string
	data      []byte
	duration  float64
	pos       float64
	startedAt time.Time
	playing   bool
	closed    bool
	now       func() time.Time
}

func newClockElement(src string, data []byte, duration time.Duration, now func() time.Time) *clockElement {
	if now == nil {
		now = time.Now
	}
	return &clockElement{
		src:      src,
		data:     data,
		duration: duration.Seconds(),
		now:      now,
	}
}

// mu 를 잡은 상태에서 호출한다.
func (e *clockElement) position() float64 {
	if !e.playing {
		return e.pos
	}
	p := e.pos + e.now().Sub(e.startedAt).Seconds()
	if e.duration > 0 && p >= e.duration {
		return e.duration
	}
	return p
}

func (e *clockElement) ended() bool {
	return e.duration > 0 && e.position() >= e.duration
}

func (e *clockElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrElementClosed
	}
	if e.playing || e.ended() {
		return nil
	}
	e.startedAt = e.now()
	e.playing = true
	return nil
}

func (e *clockElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return
	}
	e.pos = e.position()
	e.playing = false
}

func (e *clockElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position()
}

func (e *clockElement) SetCurrentTime(sec float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sec < 0 {
		sec = 0
	}
	if e.duration > 0 && sec > e.duration {
		sec = e.duration
	}
	e.pos = sec
	e.startedAt = e.now()
}

func (e *clockElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing || e.ended()
}

func (e *clockElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended()
}

func (e *clockElement) Duration() float64 {
	return e.duration
}

// 소스를 비우고 더 이상 재생하지 않는다.
func (e *clockElement) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.playing = false
	e.pos = 0
	e.data = nil
	e.src = ""
}

// HTTP 로 오디오 파일 전체를 받아오는 Loader.
// "/media/a.wav" 같은 상대 경로는 BaseURL 기준으로 바꾼다.
type HTTPLoader struct {
	BaseURL *url.URL
	Client  *http.Client
	Now     func() time.Time
}

func NewHTTPLoader(base string, timeout time.Duration) (*HTTPLoader, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	return &HTTPLoader{
		BaseURL: u,
		Client:  &http.Client{Timeout: timeout},
	}, nil
}

func (l *HTTPLoader) resolve(src string) (string, error) {
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || l.BaseURL == nil {
		return ref.String(), nil
	}
	return l.BaseURL.ResolveReference(ref).String(), nil
}

func (l *HTTPLoader) Load(ctx context.Context, src string) (Element, error) {
	abs, err := l.resolve(src)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", src, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch audio: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	info, err := parser.Probe(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	log.Debugf("audio loaded: %s format=%s rate=%d duration=%v", abs, info.Format, info.SampleRate, info.Duration)
	return newClockElement(abs, data, info.Duration, l.Now), nil
}
