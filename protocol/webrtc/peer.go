package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
)

// 수신 전용 PeerConnection 을 만든다.
// offer 를 만들기 전에 recvonly 트랜시버를 선언해야 SDP 에 미디어 섹션이 생긴다.
func newReceiverPeer(iceServers []string, receiveAudio bool) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		// ICE 가 연결 경로를 찾을 때 사용할 STUN/TURN 서버 목록이다.
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo}
	if receiveAudio {
		kinds = append(kinds, webrtc.RTPCodecTypeAudio)
	}
	for _, kind := range kinds {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return pc, nil
}
