package webrtc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNegotiation      = fmt.Errorf("webrtc negotiation failed")
	ErrAlreadyConnected = fmt.Errorf("transport already connected to another session")
)

type Config struct {
	APIBase      string // 시그널링 서버 주소, /webrtc/offer 가 붙는다
	ICEServers   []string
	ReceiveAudio bool
	Timeout      time.Duration
}

// Transport 는 세션 하나에 대한 수신 전용 WebRTC 연결이다.
// 연결은 세션당 한 번만 맺고, 상품이 바뀌어도 유지된다.
type Transport struct {
	cfg     Config
	client  *http.Client
	surface *Surface

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	sessionID string
	connected bool
}

func NewTransport(cfg Config, surface *Surface) *Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		surface: surface,
	}
}

func (t *Transport) offerURL() string {
	return strings.TrimRight(t.cfg.APIBase, "/") + "/webrtc/offer"
}

// Connect 는 offer/answer 교환으로 연결을 맺는다.
// 같은 세션에 이미 연결되어 있으면 아무것도 하지 않는다. 실패하면 연결을 닫고 미연결 상태로 남는다.
func (t *Transport) Connect(ctx context.Context, sessionID string, fps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		if t.sessionID == sessionID {
			log.Debugf("transport: session %s already connected", sessionID)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, t.sessionID)
	}

	pc, err := newReceiverPeer(t.cfg.ICEServers, t.cfg.ReceiveAudio)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	// 트랙 핸들러는 협상 전에 등록한다.
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		go handleTrack(track, t.surface)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Infof("transport: session %s connection state %s", sessionID, state)
	})

	if err := t.negotiate(ctx, pc, sessionID, fps); err != nil {
		pc.Close()
		log.Errorf("transport: session %s negotiation failed: %v", sessionID, err)
		return fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	t.pc = pc
	t.sessionID = sessionID
	t.connected = true
	log.Infof("transport: session %s connected (fps=%d)", sessionID, fps)
	return nil
}

func (t *Transport) negotiate(ctx context.Context, pc *webrtc.PeerConnection, sessionID string, fps int) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	// ICE 후보를 모두 모은 뒤 SDP 에 담아 한 번에 보낸다.
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := pc.LocalDescription()
	answer, err := exchangeOffer(ctx, t.client, t.offerURL(), SignalMessage{
		SessionID: sessionID,
		Type:      local.Type.String(),
		SDP:       local.SDP,
		FPS:       fps,
	})
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Transport) Surface() *Surface {
	return t.surface
}

// Close 는 PeerConnection 을 닫는다. 이후 다시 Connect 할 수 있다.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pc == nil {
		return nil
	}
	err := t.pc.Close()
	t.pc = nil
	t.connected = false
	log.Infof("transport: session %s closed", t.sessionID)
	t.sessionID = ""
	return err
}
