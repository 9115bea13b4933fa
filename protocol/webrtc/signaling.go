package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pion/webrtc/v3"
)

// 시그널링 서버와 주고받는 SDP 메시지이다.
type SignalMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Type      string `json:"type"`
	SDP       string `json:"sdp"`
	FPS       int    `json:"fps,omitempty"`
}

// offer 를 보내고 answer 를 받는다. 2xx 이외의 응답은 실패이다.
func exchangeOffer(ctx context.Context, client *http.Client, url string, offer SignalMessage) (webrtc.SessionDescription, error) {
	body, err := json.Marshal(offer)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return webrtc.SessionDescription{}, fmt.Errorf("offer rejected: status %d", resp.StatusCode)
	}

	var msg SignalMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode answer: %w", err)
	}
	if msg.Type != "" && msg.Type != webrtc.SDPTypeAnswer.String() {
		return webrtc.SessionDescription{}, fmt.Errorf("unexpected signaling type %q", msg.Type)
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}, nil
}
