package webrtc

import (
	"strings"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/samplebuilder"

	log "github.com/sirupsen/logrus"
)

// 재정렬을 기다리는 최대 패킷 수
const maxLate = 128

func depacketizerFor(mimeType string) rtp.Depacketizer {
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return &codecs.H264Packet{}
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return &codecs.VP8Packet{}
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP9):
		return &codecs.VP9Packet{}
	}
	return nil
}

// 원격 피어가 보내는 트랙을 끝날 때까지 읽는다.
// 비디오는 RTP 패킷을 프레임 단위로 다시 조립하고, 완성된 프레임마다 표면에 표시한다.
// 오디오는 읽어서 버린다. 상품 오디오는 별도 파일로 재생된다.
func handleTrack(track *webrtc.TrackRemote, surface *Surface) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("track handler panic: ", r)
		}
	}()

	codec := track.Codec()
	log.Infof("track received: kind=%s codec=%s ssrc=%d", track.Kind(), codec.MimeType, track.SSRC())

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		drainTrack(track)
		return
	}

	depacketizer := depacketizerFor(codec.MimeType)
	if depacketizer == nil {
		log.Warnf("unsupported video codec %s, frames are not counted", codec.MimeType)
		drainTrack(track)
		return
	}

	sb := samplebuilder.New(maxLate, depacketizer, codec.ClockRate)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Infof("video track ended: %v", err)
			return
		}
		sb.Push(pkt)
		for sample := sb.Pop(); sample != nil; sample = sb.Pop() {
			n := surface.Present(time.Now())
			if n == 1 {
				log.Infof("first video frame presented (%d bytes)", len(sample.Data))
			}
		}
	}
}

func drainTrack(track *webrtc.TrackRemote) {
	var packets int
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			log.Debugf("%s track ended after %d packets: %v", track.Kind(), packets, err)
			return
		}
		packets++
	}
}
