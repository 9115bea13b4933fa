package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/kokoavailable/livesync/av"
	"github.com/kokoavailable/livesync/player"
	"github.com/kokoavailable/livesync/protocol/backend"
)

type fakeBackend struct {
	mu         sync.Mutex
	starts     []string
	polls      int
	pollErrs   int            // 처음 몇 번의 폴링을 실패시킨다
	startErrs  map[string]int // 상품별로 처음 몇 번의 시작을 실패시킨다
	generating bool
	audioURLs  []backend.PlaylistAudio
	fps        int
	museCalls  int
}

func (b *fakeBackend) StartRealtime(ctx context.Context, sessionID, productID string) (backend.RealtimeStart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, productID)
	if b.startErrs[productID] > 0 {
		b.startErrs[productID]--
		return backend.RealtimeStart{}, fmt.Errorf("503 service unavailable")
	}
	rt := backend.RealtimeStart{FPS: b.fps, AudioURLs: b.audioURLs}
	if productID != "" {
		rt.AudioURL = "/media/" + productID + ".wav"
	}
	return rt, nil
}

func (b *fakeBackend) GenerationStatus(ctx context.Context, sessionID string) (backend.GenerationStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.pollErrs {
		return backend.GenerationStatus{}, fmt.Errorf("connection refused")
	}
	return backend.GenerationStatus{IsGenerating: b.generating}, nil
}

func (b *fakeBackend) MuseTalkStatus(ctx context.Context) (backend.MuseTalkStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.museCalls++
	return backend.MuseTalkStatus{Status: "ready", ModelLoaded: true}, nil
}

func (b *fakeBackend) calls() ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.starts...), b.polls
}

type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	negotiations int
	closes       int
}

func (t *fakeTransport) Connect(ctx context.Context, sessionID string, fps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	t.negotiations++
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.connected = false
	return nil
}

func (t *fakeTransport) stats() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.negotiations, t.closes
}

type stubElement struct {
	mu      sync.Mutex
	playing bool
	closed  bool
}

func (e *stubElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	return nil
}

func (e *stubElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

func (e *stubElement) CurrentTime() float64 { return 0 }

func (e *stubElement) SetCurrentTime(sec float64) {}

func (e *stubElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

func (e *stubElement) Ended() bool { return false }

func (e *stubElement) Duration() float64 { return 30 }

func (e *stubElement) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.playing = false
}

type stubLoader struct {
	mu    sync.Mutex
	fail  bool
	loads []string
	els   []*stubElement
}

func (l *stubLoader) Load(ctx context.Context, src string) (player.Element, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, src)
	if l.fail {
		return nil, fmt.Errorf("decode error")
	}
	el := &stubElement{}
	l.els = append(l.els, el)
	return el, nil
}

// 동시에 살아 있는 프레임 구독 수를 센다. 동기화 컨트롤러 수와 같다.
type countingSurface struct {
	mu        sync.Mutex
	active    int
	maxActive int
	total     int
}

func (s *countingSurface) Info() av.Info { return av.Info{Key: "test"} }

func (s *countingSurface) SubscribeFrames() (<-chan av.FrameMeta, func()) {
	s.mu.Lock()
	s.active++
	s.total++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	ch := make(chan av.FrameMeta)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *countingSurface) stats() (active, maxActive, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.maxActive, s.total
}

type memStore struct {
	mu     sync.Mutex
	states []string
	saved  []string // "status/state"
}

func (m *memStore) SaveProgress(p av.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, p.State)
	m.saved = append(m.saved, p.Status+"/"+p.State)
	return nil
}

func (m *memStore) history() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...)
}
