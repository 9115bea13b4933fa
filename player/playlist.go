package player

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kokoavailable/livesync/av"

	log "github.com/sirupsen/logrus"
)

const defaultEntryDuration = 30 // 초

type playlistEntry struct {
	unit av.ProductStreamUnit
	el   Element
}

// Playlist 는 세션 전체 오디오를 미리 불러 두고 비디오 시간에 맞는 항목을 고른다.
// 한 번에 하나의 항목만 재생된다.
type Playlist struct {
	loader Loader

	mu          sync.Mutex
	entries     []*playlistEntry
	current     int
	autoStarted bool
}

func NewPlaylist(loader Loader) *Playlist {
	return &Playlist{loader: loader}
}

// LoadList 는 기존 목록을 모두 해제하고 units 를 순서대로 불러온다.
// 개별 실패는 건너뛰고, 하나도 불러오지 못하면 ErrAudioLoad 를 반환한다.
func (p *Playlist) LoadList(ctx context.Context, units []av.ProductStreamUnit) error {
	p.Release()
	if len(units) == 0 {
		return fmt.Errorf("%w: empty audio list", ErrAudioLoad)
	}

	sorted := make([]av.ProductStreamUnit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	var entries []*playlistEntry
	for _, u := range sorted {
		el, err := p.loader.Load(ctx, u.AudioURL)
		if err != nil {
			log.Errorf("Playlist: audio load error for %s: %v", u, err)
			continue
		}
		if u.Duration <= 0 {
			u.Duration = el.Duration()
		}
		if u.Duration <= 0 {
			u.Duration = defaultEntryDuration
		}
		entries = append(entries, &playlistEntry{unit: u, el: el})
	}

	p.mu.Lock()
	p.entries = entries
	p.current = 0
	p.mu.Unlock()

	log.Infof("Playlist: loaded %d/%d audio files", len(entries), len(units))
	if len(entries) == 0 {
		return fmt.Errorf("%w: no audio in list could be loaded", ErrAudioLoad)
	}
	return nil
}

func (p *Playlist) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.el.Pause()
		e.el.Close()
	}
	p.entries = nil
	p.current = 0
	p.autoStarted = false
}

func (p *Playlist) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) > 0
}

func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// AudioForTime 은 [start, start+duration) 구간에 videoTime 이 들어가는 항목 인덱스를 찾는다.
func (p *Playlist) AudioForTime(videoTime float64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		end := e.unit.StartTime + e.unit.Duration
		if videoTime >= e.unit.StartTime && videoTime < end {
			return i, true
		}
	}
	return -1, false
}

// SwitchTo 는 현재 항목을 멈추고 처음으로 되감은 뒤 i 로 바꾼다.
func (p *Playlist) SwitchTo(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) || i == p.current {
		return false
	}
	cur := p.entries[p.current]
	cur.el.Pause()
	cur.el.SetCurrentTime(0)
	p.current = i
	log.Infof("Playlist: switched to audio %d/%d: %s", i+1, len(p.entries), p.entries[i].unit)
	return true
}

// Current 는 현재 항목의 상품 정보와 Element 를 돌려준다.
func (p *Playlist) Current() (av.ProductStreamUnit, Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current >= len(p.entries) {
		return av.ProductStreamUnit{}, nil, false
	}
	e := p.entries[p.current]
	return e.unit, e.el, true
}

func (p *Playlist) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Playlist) AutoStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoStarted
}

func (p *Playlist) SetAutoStarted(v bool) {
	p.mu.Lock()
	p.autoStarted = v
	p.mu.Unlock()
}

// PlaylistSync 는 세션 타임라인 위의 여러 오디오를 비디오 시간에 맞춰 갈아 끼우며 재생한다.
// 항목 전환 뒤 위치가 크게 어긋나므로 hard seek 는 설정과 관계없이 항상 켜져 있다.
type PlaylistSync struct {
	engine
	list *Playlist
}

func NewPlaylistSync(surface av.Surface, list *Playlist, cfg SyncConfig) *PlaylistSync {
	s := &PlaylistSync{list: list}
	cfg.HardSeek = true
	s.init(surface, cfg, "playlist")
	s.reconcile = s.reconcilePlaylist
	s.snapshot = s.status
	return s
}

func (s *PlaylistSync) reconcilePlaylist() {
	if s.list == nil || !s.list.Ready() {
		return
	}
	videoTime, ok := s.clock.RelativeTime()
	if !ok {
		return
	}

	idx, found := s.list.AudioForTime(videoTime)
	if !found {
		// 이 시간대에 재생할 오디오가 없다.
		if _, el, ok := s.list.Current(); ok && !el.Paused() {
			el.Pause()
			s.logger.Debugf("paused audio, nothing scheduled at %.2fs", videoTime)
		}
		return
	}
	if idx != s.list.CurrentIndex() {
		s.list.SwitchTo(idx)
	}
	unit, el, ok := s.list.Current()
	if !ok {
		return
	}
	relative := videoTime - unit.StartTime

	if !s.list.AutoStarted() {
		if s.clock.Presented() >= 1 && relative >= 0 {
			s.list.SetAutoStarted(true)
			if err := el.Play(); err != nil {
				s.logger.Warn("auto-start audio failed: ", err)
			}
			s.logger.Infof("audio auto-started: %s at video time %.2fs", unit, videoTime)
		}
		return
	}
	if el.Ended() {
		return
	}

	audioTime := el.CurrentTime()
	c := correct(audioTime, relative, el.Paused(), s.cfg)
	if c.seek {
		el.SetCurrentTime(c.seekTo)
		s.lastCorrection = time.Now()
		s.logger.Infof("audio time corrected: %.2fs -> %.2fs for %s", audioTime, c.seekTo, unit)
	}
	switch {
	case c.pause:
		el.Pause()
		s.lastCorrection = time.Now()
		s.logger.Debugf("audio paused: audioTime=%.2fs, relativeVideoTime=%.2fs, product=%s", audioTime, relative, unit)
	case c.resume:
		if err := el.Play(); err != nil {
			s.logger.Warn("audio resume failed: ", err)
			return
		}
		s.lastCorrection = time.Now()
		s.logger.Debugf("audio resumed: audioTime=%.2fs, relativeVideoTime=%.2fs, product=%s", audioTime, relative, unit)
	}
}

func (s *PlaylistSync) status() SyncStatus {
	st := s.clockStatus()
	st.AudioLoaded = s.list.Ready()
	st.AudioAutoStarted = s.list.AutoStarted()
	if unit, el, ok := s.list.Current(); ok {
		st.AudioTime = el.CurrentTime()
		st.AudioPaused = el.Paused()
		st.AudioSource = unit.AudioURL
	} else {
		st.AudioPaused = true
	}
	return st
}
