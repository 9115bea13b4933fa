package av

import (
	"sync"
	"time"
)

// 마지막 활동 시점을 기록해 스트림이 살아 있는지 판단한다.
// 프레임이 timeout 이상 들어오지 않으면 멈춘 것으로 본다.
type Liveness struct {
	lock    sync.Mutex
	timeout time.Duration
	PreTime time.Time // 마지막으로 갱신된 시점
}

func NewLiveness(timeout time.Duration) *Liveness {
	return &Liveness{
		timeout: timeout,
	}
}

func (l *Liveness) SetPreTime(t time.Time) {
	l.lock.Lock()
	l.PreTime = t
	l.lock.Unlock()
}

func (l *Liveness) Alive() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.PreTime.IsZero() {
		return false
	}
	return time.Since(l.PreTime) < l.timeout
}
