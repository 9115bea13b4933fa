package player

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	ErrAudioLoad = fmt.Errorf("audio load failed")
)

// AudioPlayer 는 한 번에 하나의 오디오 리소스만 소유한다.
// 새 소스를 불러오기 전에 이전 리소스를 항상 먼저 해제하므로 두 리소스가 겹쳐 살아 있는 순간이 없다.
type AudioPlayer struct {
	loader Loader
	loadMu sync.Mutex // Load 직렬화

	mu          sync.Mutex
	el          Element
	src         string
	loaded      bool
	autoStarted bool // 이 상품 단위의 오디오가 의도적으로 시작된 적이 있는지
}

func NewAudioPlayer(loader Loader) *AudioPlayer {
	return &AudioPlayer{
		loader: loader,
	}
}

// Load 는 src 를 끝까지 받아 재생 가능한 상태로 만든다. 실패하면 아무것도 로드되지 않은 상태로 남는다.
func (p *AudioPlayer) Load(ctx context.Context, src string) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	p.Release()

	log.Debugf("AudioPlayer: loading %s", src)
	el, err := p.loader.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAudioLoad, src, err)
	}

	p.mu.Lock()
	p.el = el
	p.src = src
	p.loaded = true
	p.mu.Unlock()
	log.Infof("AudioPlayer: %s loaded and ready (%.2fs)", src, el.Duration())
	return nil
}

// Release 는 현재 리소스를 정지하고 소스를 비운다.
func (p *AudioPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.el != nil {
		p.el.Pause()
		p.el.Close()
	}
	p.el = nil
	p.src = ""
	p.loaded = false
	p.autoStarted = false
}

func (p *AudioPlayer) Play() error {
	p.mu.Lock()
	el := p.el
	loaded := p.loaded
	p.mu.Unlock()
	if el == nil || !loaded {
		return nil
	}
	return el.Play()
}

func (p *AudioPlayer) Pause() {
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	if el != nil {
		el.Pause()
	}
}

func (p *AudioPlayer) CurrentTime() float64 {
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	if el == nil {
		return 0
	}
	return el.CurrentTime()
}

func (p *AudioPlayer) SetCurrentTime(sec float64) {
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	if el != nil {
		el.SetCurrentTime(sec)
	}
}

func (p *AudioPlayer) Paused() bool {
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	if el == nil {
		return true
	}
	return el.Paused()
}

func (p *AudioPlayer) Ended() bool {
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	return el != nil && el.Ended()
}

func (p *AudioPlayer) IsLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *AudioPlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *AudioPlayer) AutoStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoStarted
}

func (p *AudioPlayer) SetAutoStarted(v bool) {
	p.mu.Lock()
	p.autoStarted = v
	p.mu.Unlock()
}
