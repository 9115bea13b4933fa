package player

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kokoavailable/livesync/av"

	log "github.com/sirupsen/logrus"
)

const (
	statusLogInterval = 5 * time.Second
)

var (
	ErrNoFrameCallback = fmt.Errorf("surface has no frame presentation callback")
	ErrSyncStopped     = fmt.Errorf("sync controller already stopped")
)

// 오디오/비디오 동기화 파라미터. 시간 값은 초 단위이다.
type SyncConfig struct {
	FPS               int
	Threshold         float64       // 오디오가 이만큼 앞서면 일시정지
	Interval          time.Duration // 보정 주기
	StrictResume      bool          // true 면 오디오가 비디오 시간 이하로 돌아와야 재개
	HardSeek          bool          // 큰 차이를 직접 seek 로 보정
	HardSeekThreshold float64
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		FPS:               25,
		Threshold:         0.2,
		Interval:          100 * time.Millisecond,
		HardSeekThreshold: 0.5,
	}
}

type syncState int

const (
	syncIdle syncState = iota
	syncActive
	syncStopped
)

func (s syncState) String() string {
	switch s {
	case syncIdle:
		return "idle"
	case syncActive:
		return "active"
	case syncStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// 동기화 상태 스냅샷. getStatus 결과와 같은 모양이다.
type SyncStatus struct {
	State            string    `json:"state"`
	PresentedFrames  uint64    `json:"presented_frames"`
	BaselineFrames   uint64    `json:"baseline_frames"`
	VideoTime        float64   `json:"video_time"`
	AudioTime        float64   `json:"audio_time"`
	AudioSource      string    `json:"audio_source"`
	AudioLoaded      bool      `json:"audio_loaded"`
	AudioAutoStarted bool      `json:"audio_auto_started"`
	AudioPaused      bool      `json:"audio_paused"`
	LastCorrection   time.Time `json:"last_correction"`
}

// 한 번의 보정 판단 결과.
type correction struct {
	seek   bool
	seekTo float64
	pause  bool
	resume bool
}

// correct 는 오디오 위치와 비디오 시간을 비교해 취할 동작을 정한다.
// 앞서 나간 오디오만 멈추고, 뒤처진 오디오는 강제로 당기지 않는다 (HardSeek 제외).
func correct(audioTime, videoTime float64, paused bool, cfg SyncConfig) correction {
	var c correction
	if cfg.HardSeek && math.Abs(audioTime-videoTime) > cfg.HardSeekThreshold {
		c.seek = true
		c.seekTo = videoTime
		audioTime = videoTime
	}

	lead := audioTime - videoTime
	resumeLimit := cfg.Threshold
	if cfg.StrictResume {
		resumeLimit = 0
	}
	switch {
	case lead > cfg.Threshold && !paused:
		c.pause = true
	case lead <= resumeLimit && paused:
		c.resume = true
	}
	return c
}

// engine 은 동기화 컨트롤러의 공통 수명주기이다.
// 프레임 구독과 주기 보정이 하나의 고루틴 select 루프에서 처리되고, Stop 으로 루프가 끝난다.
type engine struct {
	mu             sync.Mutex
	cfg            SyncConfig
	surface        av.Surface
	clock          *FrameClock
	state          syncState
	lastCorrection time.Time
	done           chan struct{}
	unsubscribe    func()
	logger         *log.Entry

	reconcile func() // mu 를 잡은 상태로 호출된다
	snapshot  func() SyncStatus
}

func (e *engine) init(surface av.Surface, cfg SyncConfig, name string) {
	def := DefaultSyncConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HardSeekThreshold <= 0 {
		cfg.HardSeekThreshold = def.HardSeekThreshold
	}
	e.cfg = cfg
	e.surface = surface
	e.clock = NewFrameClock(cfg.FPS)
	e.done = make(chan struct{})
	e.logger = log.WithField("sync", name)
	e.logger.Infof("initialized: fps=%d, threshold=%.2f", cfg.FPS, cfg.Threshold)
}

// Start 는 idle -> active 전이이다. 표면이 프레임 콜백을 지원하지 않으면 한 번 경고하고
// 아무 보정도 하지 않는다.
func (e *engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case syncActive:
		return nil
	case syncStopped:
		return ErrSyncStopped
	}
	e.state = syncActive
	e.clock.Reset()

	notifier, ok := e.surface.(av.FrameNotifier)
	if !ok {
		e.logger.Warn(ErrNoFrameCallback.Error(), ", video time tracking unavailable")
		return nil
	}
	frames, cancel := notifier.SubscribeFrames()
	e.unsubscribe = cancel

	go e.run(ctx, frames)
	e.logger.Info("started")
	return nil
}

func (e *engine) run(ctx context.Context, frames <-chan av.FrameMeta) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sync loop panic: ", r)
		}
	}()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	statusTicker := time.NewTicker(statusLogInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-e.done:
			return
		case m, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			e.OnFrame(m)
		case <-ticker.C:
			e.Tick()
		case <-statusTicker.C:
			e.logger.Debugf("sync status: %+v", e.Status())
		}
	}
}

// OnFrame 은 프레임 표시 콜백이다. 비활성 상태면 무시한다.
func (e *engine) OnFrame(m av.FrameMeta) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != syncActive {
		return
	}
	e.clock.Observe(m.PresentedFrames)
}

// Tick 은 보정 한 번이다. 패닉은 여기서 멈춘다.
func (e *engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sync tick panic: ", r)
		}
	}()
	if e.state != syncActive {
		return
	}
	e.reconcile()
}

// Stop 은 보정 타이머와 프레임 구독을 끊는다. 여러 번 불러도 된다.
func (e *engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == syncStopped {
		return
	}
	e.state = syncStopped
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	close(e.done)
	e.logger.Info("stopped")
}

func (e *engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == syncActive
}

func (e *engine) Status() SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// mu 를 잡은 상태에서 호출한다.
func (e *engine) clockStatus() SyncStatus {
	base, _ := e.clock.Baseline()
	videoTime, _ := e.clock.RelativeTime()
	return SyncStatus{
		State:           e.state.String(),
		PresentedFrames: e.clock.Presented(),
		BaselineFrames:  base,
		VideoTime:       videoTime,
		LastCorrection:  e.lastCorrection,
	}
}

// VideoAudioSync 는 상품 하나의 오디오를 표시된 프레임 기준 비디오 시간에 맞춘다.
// FrameClock 은 소유하고, AudioPlayer 는 참조만 한다.
type VideoAudioSync struct {
	engine
	audio *AudioPlayer
}

func NewVideoAudioSync(surface av.Surface, audio *AudioPlayer, cfg SyncConfig) *VideoAudioSync {
	s := &VideoAudioSync{audio: audio}
	s.init(surface, cfg, audio.Source())
	s.reconcile = s.reconcileAudio
	s.snapshot = s.status
	return s
}

func (s *VideoAudioSync) reconcileAudio() {
	if s.audio == nil || !s.audio.IsLoaded() {
		return
	}
	videoTime, ok := s.clock.RelativeTime()
	if !ok {
		return
	}

	// 첫 프레임이 표시된 시점이 오디오 시작점이다. 같은 tick 에서는 보정하지 않는다.
	if !s.audio.AutoStarted() {
		if s.clock.Presented() >= 1 {
			s.audio.SetAutoStarted(true)
			if err := s.audio.Play(); err != nil {
				s.logger.Warn("auto-start audio failed: ", err)
			}
			s.logger.Infof("audio auto-started at frame %d", s.clock.Presented())
		}
		return
	}
	if s.audio.Ended() {
		return
	}

	audioTime := s.audio.CurrentTime()
	c := correct(audioTime, videoTime, s.audio.Paused(), s.cfg)
	if c.seek {
		s.audio.SetCurrentTime(c.seekTo)
		s.lastCorrection = time.Now()
		s.logger.Infof("audio time corrected: %.2fs -> %.2fs", audioTime, c.seekTo)
	}
	switch {
	case c.pause:
		s.audio.Pause()
		s.lastCorrection = time.Now()
		s.logger.Debugf("audio paused: audioTime=%.2fs, videoTime=%.2fs, threshold=%.2fs", audioTime, videoTime, s.cfg.Threshold)
	case c.resume:
		if err := s.audio.Play(); err != nil {
			s.logger.Warn("audio resume failed: ", err)
			return
		}
		s.lastCorrection = time.Now()
		s.logger.Debugf("audio resumed: audioTime=%.2fs, videoTime=%.2fs, threshold=%.2fs", audioTime, videoTime, s.cfg.Threshold)
	}
}

func (s *VideoAudioSync) status() SyncStatus {
	st := s.clockStatus()
	if s.audio != nil {
		st.AudioTime = s.audio.CurrentTime()
		st.AudioSource = s.audio.Source()
		st.AudioLoaded = s.audio.IsLoaded()
		st.AudioAutoStarted = s.audio.AutoStarted()
		st.AudioPaused = s.audio.Paused()
	}
	return st
}
