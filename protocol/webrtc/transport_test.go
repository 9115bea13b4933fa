package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
)

// 시그널링 서버 역할을 하는 answerer 이다.
type answerer struct {
	mu     sync.Mutex
	offers []SignalMessage
	peers  []*webrtc.PeerConnection
}

func (a *answerer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/webrtc/offer" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var msg SignalMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid signaling message", http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.offers = append(a.offers, msg)
	a.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "Failed to create peer connection", http.StatusInternalServerError)
		return
	}
	a.mu.Lock()
	a.peers = append(a.peers, pc)
	a.mu.Unlock()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}); err != nil {
		http.Error(w, "Failed to set remote description", http.StatusInternalServerError)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		http.Error(w, "Failed to create answer", http.StatusInternalServerError)
		return
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		http.Error(w, "Failed to set local description", http.StatusInternalServerError)
		return
	}
	<-gathered
	json.NewEncoder(w).Encode(SignalMessage{Type: "answer", SDP: pc.LocalDescription().SDP})
}

func (a *answerer) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, pc := range a.peers {
		pc.Close()
	}
}

func (a *answerer) offerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.offers)
}

func TestTransportConnect(t *testing.T) {
	ans := &answerer{}
	ts := httptest.NewServer(ans)
	defer ts.Close()
	defer ans.close()

	tr := NewTransport(Config{APIBase: ts.URL, Timeout: 5 * time.Second}, NewSurface("s1", "", time.Second))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tr.Connect(ctx, "s1", 25); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !tr.Connected() || tr.SessionID() != "s1" {
		t.Fatalf("connected=%v session=%q", tr.Connected(), tr.SessionID())
	}

	offer := ans.offers[0]
	if offer.SessionID != "s1" || offer.FPS != 25 || offer.Type != "offer" {
		t.Errorf("offer = {%s %s fps=%d}, want {s1 offer fps=25}", offer.SessionID, offer.Type, offer.FPS)
	}
	if !strings.Contains(offer.SDP, "m=video") || !strings.Contains(offer.SDP, "a=recvonly") {
		t.Error("offer has no recvonly video section")
	}
	if strings.Contains(offer.SDP, "m=audio") {
		t.Error("offer has an audio section without receive_audio")
	}

	// 같은 세션은 다시 협상하지 않는다
	if err := tr.Connect(ctx, "s1", 25); err != nil {
		t.Errorf("second Connect: %v", err)
	}
	if got := ans.offerCount(); got != 1 {
		t.Errorf("offers = %d, want 1", got)
	}
	if err := tr.Connect(ctx, "s2", 25); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Connect other session = %v, want ErrAlreadyConnected", err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if tr.Connected() {
		t.Error("still connected after Close")
	}
}

func TestTransportReceiveAudio(t *testing.T) {
	ans := &answerer{}
	ts := httptest.NewServer(ans)
	defer ts.Close()
	defer ans.close()

	tr := NewTransport(Config{APIBase: ts.URL + "/", ReceiveAudio: true}, NewSurface("s1", "", time.Second))
	defer tr.Close()
	if err := tr.Connect(context.Background(), "s1", 30); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !strings.Contains(ans.offers[0].SDP, "m=audio") {
		t.Error("offer has no audio section")
	}
}

func TestTransportNegotiationFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no session", http.StatusNotFound)
	}))
	defer ts.Close()

	tr := NewTransport(Config{APIBase: ts.URL}, NewSurface("s1", "", time.Second))
	err := tr.Connect(context.Background(), "s1", 25)
	if !errors.Is(err, ErrNegotiation) {
		t.Fatalf("Connect = %v, want ErrNegotiation", err)
	}
	if tr.Connected() {
		t.Error("transport connected after failed negotiation")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close after failure: %v", err)
	}
}

func TestDepacketizerFor(t *testing.T) {
	for _, mime := range []string{webrtc.MimeTypeH264, "video/vp8", webrtc.MimeTypeVP9} {
		if depacketizerFor(mime) == nil {
			t.Errorf("no depacketizer for %s", mime)
		}
	}
	if depacketizerFor(webrtc.MimeTypeOpus) != nil {
		t.Error("opus should not be treated as video")
	}
}
