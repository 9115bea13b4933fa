package webrtc

import (
	"sync"
	"time"

	"github.com/kokoavailable/livesync/av"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
)

const (
	frameBufferSize   = 32
	defaultAliveTimer = 5 * time.Second
)

// Surface 는 수신한 비디오가 표시되는 렌더 표면이다.
// 표시된 프레임 수는 단조 증가하고, 구독자에게 프레임마다 알린다.
type Surface struct {
	info     av.Info
	liveness *av.Liveness

	mu        sync.Mutex
	presented uint64
	nextID    int
	subs      map[int]chan av.FrameMeta
}

// uid 가 비어 있으면 새로 만든다.
func NewSurface(key, uid string, aliveTimeout time.Duration) *Surface {
	if aliveTimeout <= 0 {
		aliveTimeout = defaultAliveTimer
	}
	if uid == "" {
		uid = uuid.NewV4().String()
	}
	return &Surface{
		info: av.Info{
			Key: key,
			UID: uid,
		},
		liveness: av.NewLiveness(aliveTimeout),
		subs:     make(map[int]chan av.FrameMeta),
	}
}

func (s *Surface) Info() av.Info {
	return s.info
}

// Present 는 프레임 하나가 표시되었음을 기록하고 누적 값을 돌려준다.
// 느린 구독자에게는 이번 알림을 버린다. 누적 값이므로 다음 알림에서 따라잡는다.
func (s *Surface) Present(at time.Time) uint64 {
	s.liveness.SetPreTime(at)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented++
	meta := av.FrameMeta{PresentedFrames: s.presented, PresentedAt: at}
	for id, ch := range s.subs {
		select {
		case ch <- meta:
		default:
			log.Debugf("surface %s: subscriber %d slow, frame %d dropped", s.info.Key, id, meta.PresentedFrames)
		}
	}
	return s.presented
}

func (s *Surface) PresentedFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Alive 는 최근 timeout 안에 프레임이 표시되었는지 알려준다.
func (s *Surface) Alive() bool {
	return s.liveness.Alive()
}

// SubscribeFrames 는 프레임 표시 알림 채널과 해제 함수를 준다.
// 해제 함수는 여러 번 불러도 되고, 호출 후 채널은 닫힌다.
func (s *Surface) SubscribeFrames() (<-chan av.FrameMeta, func()) {
	ch := make(chan av.FrameMeta, frameBufferSize)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Surface) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
