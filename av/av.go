package av

import (
	"fmt"
	"strings"
	"time"
)

// 라이브 세션의 진행 상태이다. 서버의 stream_sessions.status 값과 같다.
type SessionStatus int

const (
	StatusPreparing SessionStatus = iota
	StatusReady
	StatusLive
	StatusCompleted
)

func (s SessionStatus) String() string {
	switch s {
	case StatusPreparing:
		return "preparing"
	case StatusReady:
		return "ready"
	case StatusLive:
		return "live"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch strings.ToLower(s) {
	case "preparing", "":
		return StatusPreparing, nil
	case "ready":
		return StatusReady, nil
	case "live":
		return StatusLive, nil
	case "completed":
		return StatusCompleted, nil
	}
	return StatusPreparing, fmt.Errorf("unknown session status: %s", s)
}

// 라이브 세션 하나의 재생 파라미터.
// FPS 와 WaitDuration 은 스트리밍이 시작된 뒤에는 바뀌지 않는다.
type MediaSession struct {
	SessionID    string
	FPS          int
	Status       SessionStatus
	WaitDuration time.Duration // 상품 하나가 끝난 뒤 다음 상품까지 대기 시간
}

// 상품 하나에 대한 스트리밍 단위이다. 한 번에 하나만 활성화된다.
// StartTime, Duration 은 세션 전체 오디오 목록을 미리 받는 플레이리스트 모드에서만 쓰인다.
type ProductStreamUnit struct {
	ProductID   string
	ProductName string
	AudioURL    string
	StartTime   float64 // 세션 비디오 타임라인 상의 시작 위치(초)
	Duration    float64 // 재생 길이 힌트(초)
	Order       int
}

func (u ProductStreamUnit) String() string {
	if u.ProductName != "" {
		return fmt.Sprintf("%s(%s)", u.ProductName, u.ProductID)
	}
	return u.ProductID
}

// 오케스트레이터 진행 상황 스냅샷이다. 세션 저장소에 그대로 기록된다.
type Progress struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	State        string    `json:"state"`
	ProductIndex int       `json:"product_index"`
	ProductID    string    `json:"product_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// 렌더러가 실제로 화면에 그린 프레임 정보이다. requestVideoFrameCallback 의 metadata 에 해당한다.
type FrameMeta struct {
	PresentedFrames uint64    // 지금까지 표시된 프레임 누적 수 (단조 증가)
	PresentedAt     time.Time // 표시된 시각
}

// 비디오가 그려지는 렌더 표면.
type Surface interface {
	Info() Info
}

// 프레임 표시 콜백을 지원하는 렌더 표면이다. 지원 여부는 타입 단언으로 확인한다.
// 반환된 함수를 호출하면 구독이 해제되고 채널은 더 이상 값을 받지 않는다.
type FrameNotifier interface {
	Surface
	SubscribeFrames() (<-chan FrameMeta, func())
}

// 스트림의 메타데이터를 관리하기 위해 설계된 구조체이다.
type Info struct {
	Key string // 스트림 식별 고유 키 (세션 ID)
	URL string // 시그널링 URL
	UID string // 시청자 고유 UID
}

func (info Info) String() string {
	return fmt.Sprintf("<key: %s, URL: %s, UID: %s>",
		info.Key, info.URL, info.UID)
}
