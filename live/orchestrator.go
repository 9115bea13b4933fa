package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kokoavailable/livesync/av"
	"github.com/kokoavailable/livesync/player"
	"github.com/kokoavailable/livesync/protocol/backend"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNoProducts     = fmt.Errorf("no products to stream")
	ErrUnknownProduct = fmt.Errorf("product not in session")
)

const (
	defaultPollInterval = time.Second
)

// 영상 생성 서버 API 중 오케스트레이터가 쓰는 부분.
type Backend interface {
	StartRealtime(ctx context.Context, sessionID, productID string) (backend.RealtimeStart, error)
	GenerationStatus(ctx context.Context, sessionID string) (backend.GenerationStatus, error)
	MuseTalkStatus(ctx context.Context) (backend.MuseTalkStatus, error)
}

type Transport interface {
	Connect(ctx context.Context, sessionID string, fps int) error
	Close() error
}

type ProgressStore interface {
	SaveProgress(p av.Progress) error
}

type syncController interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	Status() player.SyncStatus
}

type Config struct {
	Session      av.MediaSession
	Products     []av.ProductStreamUnit
	PollInterval time.Duration
	Sync         player.SyncConfig
	Playlist     bool // 세션 전체 오디오 목록을 한 번에 받는 모드
}

type Status struct {
	SessionID     string             `json:"session_id"`
	SessionStatus string             `json:"session_status"`
	State         string             `json:"state"`
	Mode          string             `json:"mode"`
	FPS           int                `json:"fps"`
	ProductIndex  int                `json:"product_index"`
	ProductID     string             `json:"product_id"`
	Products      int                `json:"products"`
	Sync          *player.SyncStatus `json:"sync,omitempty"`
}

// Orchestrator 는 세션의 상품을 순서대로 스트리밍한다.
// 서버가 생성 종료를 알리면 대기 후 다음 상품으로 넘어간다. 세션 하나에 인스턴스 하나이다.
type Orchestrator struct {
	cfg       Config
	backend   Backend
	transport Transport
	surface   av.Surface
	audio     *player.AudioPlayer
	playlist  *player.Playlist
	store     ProgressStore

	opMu sync.Mutex // 시작/전환/정지 직렬화

	mu       sync.Mutex
	session  av.MediaSession
	state    State
	index    int
	syncer   syncController
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func New(cfg Config, b Backend, t Transport, surface av.Surface, loader player.Loader, store ProgressStore) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Session.FPS <= 0 {
		cfg.Session.FPS = player.DefaultSyncConfig().FPS
	}
	return &Orchestrator{
		cfg:       cfg,
		backend:   b,
		transport: t,
		surface:   surface,
		audio:     player.NewAudioPlayer(loader),
		playlist:  player.NewPlaylist(loader),
		store:     store,
		session:   cfg.Session,
		state:     StateIdle,
	}
}

// Start 는 설정된 모드로 스트리밍을 시작한다. ctx 는 세션 수명이다.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.cfg.Playlist {
		return o.StartSessionStream(ctx)
	}
	return o.InitProductStreaming(ctx)
}

// InitProductStreaming 은 첫 상품부터 스트리밍을 시작하고 상태 폴링 루프를 띄운다.
// 상품 목록이 비어 있으면 네트워크 호출 없이 실패한다.
func (o *Orchestrator) InitProductStreaming(ctx context.Context) error {
	if len(o.cfg.Products) == 0 {
		log.Warnf("session %s: product list is empty, streaming not started", o.cfg.Session.SessionID)
		return ErrNoProducts
	}

	o.opMu.Lock()
	if !o.startable() {
		o.opMu.Unlock()
		log.Debugf("session %s: already streaming", o.cfg.Session.SessionID)
		return nil
	}
	o.mu.Lock()
	o.index = 0
	o.session.FPS = o.cfg.Session.FPS
	o.mu.Unlock()
	err := o.startProduct(ctx, o.cfg.Products[0].ProductID)
	o.opMu.Unlock()
	if err != nil {
		return err
	}
	o.startLoop(ctx)
	return nil
}

func (o *Orchestrator) startable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateIdle || o.state == StateFinished || o.state == StateStopped
}

// StartProductStream 은 상품 하나의 실시간 생성을 시작하고 오디오와 동기화를 새로 준비한다.
// 오디오를 불러오지 못해도 비디오는 계속되므로 실패로 보지 않는다.
func (o *Orchestrator) StartProductStream(ctx context.Context, productID string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.startProduct(ctx, productID)
}

// opMu 를 잡은 상태에서 호출한다.
func (o *Orchestrator) startProduct(ctx context.Context, productID string) error {
	sessionID := o.cfg.Session.SessionID
	unit, index, ok := o.lookup(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	logger := log.WithFields(log.Fields{"session": sessionID, "product": unit.String()})
	if next, ok := o.product(index + 1); ok {
		logger.Infof("starting product %d/%d, next: %s", index+1, len(o.cfg.Products), next)
	} else {
		logger.Infof("starting product %d/%d (last)", index+1, len(o.cfg.Products))
	}

	rt, err := o.backend.StartRealtime(ctx, sessionID, productID)
	if err != nil {
		logger.Error("realtime start failed: ", err)
		return fmt.Errorf("start realtime %s: %w", productID, err)
	}
	fps := o.fixFPS(rt.FPS)

	// 연결은 세션당 한 번이다. 두 번째 상품부터는 Connect 가 아무것도 하지 않는다.
	if err := o.transport.Connect(ctx, sessionID, fps); err != nil {
		logger.Error("media transport: ", err)
		return err
	}

	o.stopSync()

	audioURL := rt.AudioURL
	if audioURL == "" {
		audioURL = unit.AudioURL
	}
	if audioURL == "" {
		o.audio.Release()
		logger.Warn("no audio url for product, video plays silently")
	} else if err := o.audio.Load(ctx, audioURL); err != nil {
		logger.Warn("audio unavailable, video plays silently: ", err)
	}

	cfg := o.cfg.Sync
	cfg.FPS = fps
	s := player.NewVideoAudioSync(o.surface, o.audio, cfg)
	if err := s.Start(ctx); err != nil {
		logger.Error("sync start: ", err)
	}

	o.mu.Lock()
	o.syncer = s
	o.index = index
	o.state = StateStreaming
	o.session.Status = av.StatusLive
	o.mu.Unlock()
	o.save()
	return nil
}

// StartSessionStream 은 세션 전체 오디오 목록을 받아 플레이리스트로 재생한다.
func (o *Orchestrator) StartSessionStream(ctx context.Context) error {
	o.opMu.Lock()
	if !o.startable() {
		o.opMu.Unlock()
		return nil
	}
	sessionID := o.cfg.Session.SessionID
	logger := log.WithField("session", sessionID)

	// MuseTalk 상태는 참고용이다. 시작을 막지 않는다.
	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		st, err := o.backend.MuseTalkStatus(probeCtx)
		if err != nil {
			logger.Debug("musetalk status unavailable: ", err)
			return
		}
		logger.Infof("musetalk status: %s (model loaded: %v)", st.Status, st.ModelLoaded)
	}()

	rt, err := o.backend.StartRealtime(ctx, sessionID, "")
	if err != nil {
		o.opMu.Unlock()
		logger.Error("realtime start failed: ", err)
		return fmt.Errorf("start realtime session %s: %w", sessionID, err)
	}
	o.mu.Lock()
	o.session.FPS = o.cfg.Session.FPS
	o.mu.Unlock()
	fps := o.fixFPS(rt.FPS)

	if err := o.transport.Connect(ctx, sessionID, fps); err != nil {
		o.opMu.Unlock()
		logger.Error("media transport: ", err)
		return err
	}

	o.stopSync()

	units := make([]av.ProductStreamUnit, 0, len(rt.AudioURLs))
	for _, a := range rt.AudioURLs {
		units = append(units, a.Unit())
	}
	if err := o.playlist.LoadList(ctx, units); err != nil {
		logger.Warn("playlist unavailable, video plays silently: ", err)
	}

	cfg := o.cfg.Sync
	cfg.FPS = fps
	s := player.NewPlaylistSync(o.surface, o.playlist, cfg)
	if err := s.Start(ctx); err != nil {
		logger.Error("sync start: ", err)
	}

	o.mu.Lock()
	o.syncer = s
	o.index = 0
	o.state = StateStreaming
	o.session.Status = av.StatusLive
	o.mu.Unlock()
	o.opMu.Unlock()
	o.save()

	o.startLoop(ctx)
	return nil
}

// 세션 FPS 는 처음 정해진 값으로 고정된다.
func (o *Orchestrator) fixFPS(reported int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateIdle || o.state == StateFinished || o.state == StateStopped {
		if reported > 0 {
			o.session.FPS = reported
		}
	} else if reported > 0 && reported != o.session.FPS {
		log.Warnf("session %s: server fps %d ignored, keeping %d", o.session.SessionID, reported, o.session.FPS)
	}
	return o.session.FPS
}

func (o *Orchestrator) lookup(productID string) (av.ProductStreamUnit, int, bool) {
	for i, p := range o.cfg.Products {
		if p.ProductID == productID {
			return p, i, true
		}
	}
	return av.ProductStreamUnit{}, 0, false
}

func (o *Orchestrator) product(i int) (av.ProductStreamUnit, bool) {
	if i < 0 || i >= len(o.cfg.Products) {
		return av.ProductStreamUnit{}, false
	}
	return o.cfg.Products[i], true
}

func (o *Orchestrator) stopSync() {
	o.mu.Lock()
	s := o.syncer
	o.syncer = nil
	o.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (o *Orchestrator) startLoop(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.loopDone = make(chan struct{})
	go o.loop(loopCtx, o.loopDone)
}

// loop 는 생성 상태를 주기적으로 확인한다. 전환 대기 중에는 폴링하지 않는다.
func (o *Orchestrator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestrator loop panic: ", r)
		}
	}()

	poll := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()
	pollC := poll.C
	var waitC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollC:
			if generating, ok := o.poll(ctx); !ok || generating {
				continue
			}
			if o.cfg.Playlist {
				o.finish()
				return
			}
			o.endProduct()
			pollC = nil
			waitC = time.After(o.waitDuration())
		case <-waitC:
			waitC = nil
			if !o.advance(ctx) {
				return
			}
			pollC = poll.C
		}
	}
}

func (o *Orchestrator) poll(ctx context.Context) (bool, bool) {
	st, err := o.backend.GenerationStatus(ctx, o.cfg.Session.SessionID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("generation status poll failed: ", err)
		}
		return false, false
	}
	return st.IsGenerating, true
}

func (o *Orchestrator) waitDuration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.WaitDuration
}

// 현재 상품이 끝났다. 동기화를 멈추고 전환 대기 상태가 된다.
func (o *Orchestrator) endProduct() {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.stopSync()
	o.audio.Pause()
	o.mu.Lock()
	o.state = StateAdvancing
	idx := o.index
	o.mu.Unlock()
	log.Infof("session %s: product %d finished, advancing", o.cfg.Session.SessionID, idx+1)
	o.save()
}

// 다음 상품을 시작한다. 더 없으면 finished 가 되고 false 를 돌려준다.
func (o *Orchestrator) advance(ctx context.Context) bool {
	o.mu.Lock()
	next := o.index + 1
	o.mu.Unlock()

	unit, ok := o.product(next)
	if !ok {
		o.finish()
		return false
	}
	if err := o.StartProductStream(ctx, unit.ProductID); err != nil {
		// 다음 상품을 시작하지 못하면 다음 폴링에서 다시 종료를 감지해 재시도한다.
		log.Error("advance failed: ", err)
		o.mu.Lock()
		o.index = next - 1
		o.mu.Unlock()
	}
	return true
}

func (o *Orchestrator) finish() {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.stopSync()
	o.audio.Release()
	o.playlist.Release()
	o.mu.Lock()
	o.state = StateFinished
	o.session.Status = av.StatusCompleted
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	log.Infof("session %s: all products finished", o.cfg.Session.SessionID)
	o.save()
}

// Stop 은 페이지 이탈에 해당한다. 동기화와 오디오, 연결을 모두 정리한다.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.loopDone
	o.cancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()
	o.stopSync()
	o.audio.Release()
	o.playlist.Release()
	if err := o.transport.Close(); err != nil {
		log.Warn("transport close: ", err)
	}

	o.mu.Lock()
	prev := o.state
	o.state = StateStopped
	o.mu.Unlock()
	if prev != StateStopped {
		log.Infof("session %s: stopped", o.cfg.Session.SessionID)
		o.save()
	}
}

// SetSessionStatus 는 서버가 알린 세션 상태를 반영하고 진행 상황을 저장한다.
func (o *Orchestrator) SetSessionStatus(st av.SessionStatus) {
	if o.markSession(st) {
		o.save()
	}
}

func (o *Orchestrator) markSession(st av.SessionStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	changed := o.session.Status != st
	o.session.Status = st
	return changed
}

func (o *Orchestrator) SessionStatus() av.SessionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Status
}

// Done 은 상태 폴링 루프가 끝나면 닫힌다. 루프가 없으면 nil 이다.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loopDone
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		SessionID:     o.cfg.Session.SessionID,
		SessionStatus: o.session.Status.String(),
		State:         o.state.String(),
		Mode:          "product",
		FPS:           o.session.FPS,
		ProductIndex:  o.index,
		Products:      len(o.cfg.Products),
	}
	if p, ok := o.product(o.index); ok {
		st.ProductID = p.ProductID
	}
	s := o.syncer
	o.mu.Unlock()

	if o.cfg.Playlist {
		st.Mode = "playlist"
		st.Products = o.playlist.Len()
	}
	if s != nil {
		ss := s.Status()
		st.Sync = &ss
	}
	return st
}

func (o *Orchestrator) progress() av.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := av.Progress{
		SessionID:    o.cfg.Session.SessionID,
		Status:       o.session.Status.String(),
		State:        o.state.String(),
		ProductIndex: o.index,
		UpdatedAt:    time.Now(),
	}
	if u, ok := o.product(o.index); ok {
		p.ProductID = u.ProductID
	}
	return p
}

func (o *Orchestrator) save() {
	if o.store == nil {
		return
	}
	if err := o.store.SaveProgress(o.progress()); err != nil {
		log.Warn("save progress: ", err)
	}
}
