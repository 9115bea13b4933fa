package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/kokoavailable/livesync/av"
)

// 테스트용 오디오 원소. 시간은 직접 옮긴다.
type fakeElement struct {
	src      string
	pos      float64
	duration float64
	playing  bool
	closed   bool
	plays    int
	pauses   int
	seeks    []float64
}

func (e *fakeElement) Play() error {
	if e.closed {
		return ErrElementClosed
	}
	e.plays++
	e.playing = true
	return nil
}

func (e *fakeElement) Pause() {
	if e.playing {
		e.pauses++
	}
	e.playing = false
}

func (e *fakeElement) CurrentTime() float64 { return e.pos }

func (e *fakeElement) SetCurrentTime(sec float64) {
	e.seeks = append(e.seeks, sec)
	e.pos = sec
}

func (e *fakeElement) Paused() bool { return !e.playing }
func (e *fakeElement) Ended() bool { return e.duration > 0 && e.pos >= e.duration }
func (e *fakeElement) Duration() float64 { return e.duration }

func (e *fakeElement) Close() {
	e.closed = true
	e.playing = false
}

type fakeLoader struct {
	mu       sync.Mutex
	elements map[string]*fakeElement
	fail     map[string]bool
	loads    []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{elements: map[string]*fakeElement{}, fail: map[string]bool{}}
}

func (l *fakeLoader) Load(ctx context.Context, src string) (Element, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, src)
	if l.fail[src] {
		return nil, fmt.Errorf("status 404")
	}
	el := &fakeElement{src: src, duration: 60}
	l.elements[src] = el
	return el, nil
}

func (l *fakeLoader) element(src string) *fakeElement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elements[src]
}

// 프레임 콜백이 없는 표면
type plainSurface struct{}

func (plainSurface) Info() av.Info { return av.Info{Key: "plain"} }

type notifierSurface struct {
	mu     sync.Mutex
	subs   int
	closed int
	ch     chan av.FrameMeta
}

func newNotifierSurface() *notifierSurface {
	return &notifierSurface{ch: make(chan av.FrameMeta, 16)}
}

func (s *notifierSurface) Info() av.Info { return av.Info{Key: "test"} }

func (s *notifierSurface) SubscribeFrames() (<-chan av.FrameMeta, func()) {
	s.mu.Lock()
	s.subs++
	s.mu.Unlock()
	return s.ch, func() {
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
	}
}
