package configure

import (
	"errors"
	"testing"
	"time"

	"github.com/kokoavailable/livesync/av"
)

func TestSessionStoreLocalProgress(t *testing.T) {
	s, err := NewSessionStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.GetProgress("s1"); !errors.Is(err, ErrProgressNotFound) {
		t.Errorf("GetProgress on empty store = %v, want ErrProgressNotFound", err)
	}

	want := av.Progress{SessionID: "s1", Status: "live", State: "streaming", ProductIndex: 1, ProductID: "p2", UpdatedAt: time.Unix(100, 0).UTC()}
	if err := s.SaveProgress(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetProgress("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) || got.ProductID != want.ProductID || got.State != want.State {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if !s.DeleteProgress("s1") {
		t.Error("DeleteProgress returned false for an existing session")
	}
	if s.DeleteProgress("s1") {
		t.Error("DeleteProgress returned true twice")
	}
}

func TestSessionStoreViewerIDStable(t *testing.T) {
	s, err := NewSessionStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.ViewerID("s1")
	if err != nil || a == "" {
		t.Fatalf("ViewerID = %q, %v", a, err)
	}
	b, _ := s.ViewerID("s1")
	if a != b {
		t.Errorf("viewer id changed: %s -> %s", a, b)
	}
	if c, _ := s.ViewerID("s2"); c == a {
		t.Error("different sessions share a viewer id")
	}
}
