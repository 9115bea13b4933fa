package player

// FrameClock 은 벽시계가 아니라 실제로 표시된 프레임 수로 비디오 시간을 만든다.
// (재)시작 뒤 처음 0 이 아닌 값이 기준점이 되어 상품 단위마다 0 초부터 시작한다.
type FrameClock struct {
	fps         int
	presented   uint64
	baseline    uint64
	hasBaseline bool
}

func NewFrameClock(fps int) *FrameClock {
	if fps <= 0 {
		fps = 25
	}
	return &FrameClock{fps: fps}
}

// Observe 는 누적 표시 프레임 수를 반영한다. 뒤로 가는 값은 무시한다.
func (c *FrameClock) Observe(presented uint64) {
	if presented < c.presented {
		return
	}
	c.presented = presented
	if !c.hasBaseline && presented > 0 {
		c.baseline = presented
		c.hasBaseline = true
	}
}

// Reset 은 기준점을 지운다. 누적 카운터는 렌더러 것이므로 유지한다.
func (c *FrameClock) Reset() {
	c.baseline = 0
	c.hasBaseline = false
}

// RelativeTime 은 (presented - baseline) / fps 이다. 기준점이 없으면 false.
func (c *FrameClock) RelativeTime() (float64, bool) {
	if !c.hasBaseline {
		return 0, false
	}
	return float64(c.presented-c.baseline) / float64(c.fps), true
}

func (c *FrameClock) Presented() uint64 {
	return c.presented
}

func (c *FrameClock) Baseline() (uint64, bool) {
	return c.baseline, c.hasBaseline
}

func (c *FrameClock) FPS() int {
	return c.fps
}
