package player

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kokoavailable/livesync/av"
)

// 주기 tick 이 끼어들지 않도록 간격을 길게 잡는다.
func testSyncConfig() SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.Interval = time.Hour
	return cfg
}

func newLoadedSync(t *testing.T, cfg SyncConfig) (*VideoAudioSync, *fakeElement, *notifierSurface) {
	t.Helper()
	loader := newFakeLoader()
	audio := NewAudioPlayer(loader)
	if err := audio.Load(context.Background(), "/media/a.wav"); err != nil {
		t.Fatalf("load: %v", err)
	}
	surface := newNotifierSurface()
	s := NewVideoAudioSync(surface, audio, cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, loader.element("/media/a.wav"), surface
}

func frame(n uint64) av.FrameMeta {
	return av.FrameMeta{PresentedFrames: n, PresentedAt: time.Now()}
}

func TestSyncPausesWhenAudioLeads(t *testing.T) {
	s, el, _ := newLoadedSync(t, testSyncConfig())

	// T0, T1: 아직 표시된 프레임이 없다
	for _, n := range []uint64{0, 0} {
		s.OnFrame(frame(n))
		s.Tick()
		if el.plays != 0 {
			t.Fatalf("audio started before any frame was presented")
		}
	}

	// T2: 기준점 1, 첫 시작
	s.OnFrame(frame(1))
	s.Tick()
	if el.plays != 1 || !el.playing {
		t.Fatalf("plays = %d, playing = %v; want audio auto-started", el.plays, el.playing)
	}
	if st := s.Status(); st.BaselineFrames != 1 || !st.AudioAutoStarted {
		t.Errorf("status = %+v, want baseline 1 and auto-started", st)
	}

	// T3: 비디오 1.0s, 오디오 1.3s
	s.OnFrame(frame(26))
	el.pos = 1.3
	s.Tick()
	if el.playing {
		t.Fatal("expected audio paused when it leads video by 0.3s")
	}
	if got := s.Status().VideoTime; got != 1.0 {
		t.Errorf("video time = %v, want 1.0", got)
	}

	// T4: 비디오 2.0s 가 오디오를 따라잡으면 재개
	s.OnFrame(frame(51))
	s.Tick()
	if !el.playing {
		t.Fatal("expected audio resumed once video caught up")
	}
	if len(el.seeks) != 0 {
		t.Errorf("seeks = %v, want none in default mode", el.seeks)
	}
}

func TestSyncFirstStartSkipsCorrection(t *testing.T) {
	s, el, _ := newLoadedSync(t, testSyncConfig())
	el.pos = 5
	s.OnFrame(frame(3))
	s.Tick()
	if !el.playing {
		t.Fatal("first tick with a presented frame must start audio without correcting")
	}
	s.Tick()
	if el.playing {
		t.Fatal("second tick should pause audio that leads by 5s")
	}
}

func TestSyncResumeLimit(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		audio  float64
		resume bool
	}{
		{"within threshold", false, 1.1, true},
		{"strict within threshold", true, 1.1, false},
		{"strict behind video", true, 0.9, true},
		{"beyond threshold", false, 1.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSyncConfig()
			cfg.StrictResume = tt.strict
			s, el, _ := newLoadedSync(t, cfg)
			s.OnFrame(frame(1))
			s.Tick() // auto-start
			el.Pause()
			el.pos = tt.audio
			s.OnFrame(frame(26))
			s.Tick()
			if el.playing != tt.resume {
				t.Errorf("playing = %v, want %v", el.playing, tt.resume)
			}
		})
	}
}

func TestSyncNeverSeeksForwardByDefault(t *testing.T) {
	s, el, _ := newLoadedSync(t, testSyncConfig())
	s.OnFrame(frame(1))
	s.Tick()
	el.pos = 0.1
	s.OnFrame(frame(76)) // 3.0s
	s.Tick()
	if len(el.seeks) != 0 {
		t.Errorf("seeks = %v, want none", el.seeks)
	}
	if !el.playing {
		t.Error("lagging audio should keep playing")
	}
}

func TestSyncHardSeek(t *testing.T) {
	cfg := testSyncConfig()
	cfg.HardSeek = true
	s, el, _ := newLoadedSync(t, cfg)
	s.OnFrame(frame(1))
	s.Tick()
	el.pos = 0.1
	s.OnFrame(frame(76))
	s.Tick()
	if len(el.seeks) != 1 || el.seeks[0] != 3.0 {
		t.Fatalf("seeks = %v, want [3]", el.seeks)
	}
	if !el.playing {
		t.Error("audio should keep playing after a seek to video time")
	}
}

func TestSyncSkipsWhenAudioNotLoaded(t *testing.T) {
	audio := NewAudioPlayer(newFakeLoader())
	s := NewVideoAudioSync(newNotifierSurface(), audio, testSyncConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	s.OnFrame(frame(10))
	s.Tick()
	if audio.AutoStarted() {
		t.Error("auto-start must not happen without loaded audio")
	}
}

func TestSyncSkipsEndedAudio(t *testing.T) {
	s, el, _ := newLoadedSync(t, testSyncConfig())
	s.OnFrame(frame(1))
	s.Tick()
	el.pos = el.duration
	el.playing = true
	s.OnFrame(frame(26))
	s.Tick()
	if el.pauses != 0 {
		t.Errorf("pauses = %d, want no correction on ended audio", el.pauses)
	}
}

func TestSyncInertWithoutFrameCallback(t *testing.T) {
	loader := newFakeLoader()
	audio := NewAudioPlayer(loader)
	if err := audio.Load(context.Background(), "a.wav"); err != nil {
		t.Fatal(err)
	}
	s := NewVideoAudioSync(plainSurface{}, audio, testSyncConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start returned %v, want nil", err)
	}
	defer s.Stop()
	s.Tick()
	if el := loader.element("a.wav"); el.plays != 0 {
		t.Errorf("plays = %d, want 0", el.plays)
	}
}

func TestSyncStartStop(t *testing.T) {
	s, el, surface := newLoadedSync(t, testSyncConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("second start: %v", err)
	}
	if surface.subs != 1 {
		t.Errorf("subscriptions = %d, want 1", surface.subs)
	}

	s.Stop()
	s.Stop()
	if s.Active() {
		t.Fatal("expected inactive after stop")
	}
	surface.mu.Lock()
	closed := surface.closed
	surface.mu.Unlock()
	if closed != 1 {
		t.Errorf("unsubscribe calls = %d, want 1", closed)
	}
	if err := s.Start(context.Background()); err != ErrSyncStopped {
		t.Errorf("restart = %v, want ErrSyncStopped", err)
	}

	s.OnFrame(frame(5))
	s.Tick()
	if el.plays != 0 {
		t.Error("stopped sync must not touch audio")
	}
}

func TestSyncLoopConsumesFrames(t *testing.T) {
	cfg := DefaultSyncConfig()
	cfg.Interval = 10 * time.Millisecond
	loader := newFakeLoader()
	audio := NewAudioPlayer(loader)
	if err := audio.Load(context.Background(), "a.wav"); err != nil {
		t.Fatal(err)
	}
	surface := newNotifierSurface()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewVideoAudioSync(surface, audio, cfg)
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	surface.ch <- frame(1)

	deadline := time.Now().Add(2 * time.Second)
	for !audio.AutoStarted() {
		if time.Now().After(deadline) {
			t.Fatal("audio was not auto-started by the sync loop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for s.Active() {
		if time.Now().After(deadline) {
			t.Fatal("sync still active after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCorrect(t *testing.T) {
	cfg := DefaultSyncConfig()
	tests := []struct {
		name          string
		audio, video  float64
		paused        bool
		pause, resume bool
	}{
		{"in sync", 1.0, 1.0, false, false, false},
		{"lead above threshold", 1.3, 1.0, false, true, false},
		{"lead at threshold", 1.2, 1.0, false, false, false},
		{"already paused", 1.3, 1.0, true, false, false},
		{"paused and caught up", 1.0, 1.1, true, false, true},
	}
	for _, tt := range tests {
		c := correct(tt.audio, tt.video, tt.paused, cfg)
		if c.pause != tt.pause || c.resume != tt.resume || c.seek {
			t.Errorf("%s: got %+v, want pause=%v resume=%v", tt.name, c, tt.pause, tt.resume)
		}
	}
}

func TestCorrectAcrossThresholds(t *testing.T) {
	for _, th := range []float64{0.05, 0.2, 0.5, 1.0} {
		cfg := DefaultSyncConfig()
		cfg.Threshold = th
		tests := []struct {
			name          string
			lead          float64
			paused        bool
			pause, resume bool
		}{
			{"lead above threshold", th * 1.5, false, true, false},
			{"lead below threshold", th * 0.5, false, false, false},
			{"paused within threshold", th * 0.5, true, false, true},
			{"paused above threshold", th * 1.5, true, false, false},
			{"lagging audio", -2, false, false, false},
		}
		for _, tt := range tests {
			c := correct(10+tt.lead, 10, tt.paused, cfg)
			if c.pause != tt.pause || c.resume != tt.resume || c.seek {
				t.Errorf("threshold %v, %s: got %+v, want pause=%v resume=%v", th, tt.name, c, tt.pause, tt.resume)
			}
		}
	}
}

func TestSyncThresholds(t *testing.T) {
	for _, th := range []float64{0.05, 0.5, 1.0} {
		t.Run(fmt.Sprintf("threshold %v", th), func(t *testing.T) {
			cfg := testSyncConfig()
			cfg.Threshold = th
			s, el, _ := newLoadedSync(t, cfg)
			s.OnFrame(frame(1))
			s.Tick() // auto-start

			s.OnFrame(frame(26)) // 1.0s
			el.pos = 1.0 + th*1.5
			s.Tick()
			if el.playing {
				t.Fatalf("audio leading by %v should pause", th*1.5)
			}

			el.pos = 1.0 + th*0.5
			s.Tick()
			if !el.playing {
				t.Fatalf("audio leading by %v should resume", th*0.5)
			}
			if len(el.seeks) != 0 {
				t.Errorf("seeks = %v, want none", el.seeks)
			}
		})
	}
}
