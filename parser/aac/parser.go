package aac

import (
	"fmt"
	"time"
)

/*
ADTS 로 감싼 AAC 스트림(.aac 파일)을 순회하며 프레임 수와 샘플링 정보를 읽는 AAC Parser이다.
ADTS 헤더는 7바이트(CRC 포함시 9바이트)이고 프레임마다 반복된다.
*/

// ADTS 헤더에서 읽어낸 설정 정보를 저장한다.
type mpegCfgInfo struct {
	objectType byte // MPEG 객체 타입 (profile + 1)
	sampleRate byte // 샘플링 레이트 인덱스
	channel    byte // 채널 수
}

// AAC의 샘플 레이트 테이블이다. sampleRate 필드에서 인덱스로 참조해 실제 Hz 값을 얻는다.
var aacRates = []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

var (
	audioBufInvalid = fmt.Errorf("audiodata  invalid")
	adtsSyncInvalid = fmt.Errorf("adts sync word not found")
)

const (
	adtsHeaderLen = 7
	// AAC 한 프레임(raw data block)의 샘플 수
	samplesPerBlock = 1024
)

type Parser struct {
	cfgInfo *mpegCfgInfo
	frames  int // 헤더가 유효했던 ADTS 프레임 수
	blocks  int // raw data block 총합
}

func NewParser() *Parser {
	return &Parser{
		cfgInfo: &mpegCfgInfo{},
	}
}

// IsADTS 는 src 가 ADTS 싱크 워드로 시작하는지 확인한다.
func IsADTS(src []byte) bool {
	return len(src) >= adtsHeaderLen && src[0] == 0xff && src[1]&0xf6 == 0xf0
}

// Parse 는 src 전체의 ADTS 프레임을 순회한다. 첫 프레임의 설정을 기준으로 삼는다.
func (parser *Parser) Parse(src []byte) error {
	if !IsADTS(src) {
		return adtsSyncInvalid
	}
	parser.frames, parser.blocks = 0, 0
	for offset := 0; offset+adtsHeaderLen <= len(src); {
		h := src[offset:]
		if !IsADTS(h) {
			break
		}
		// 13비트 frame_length 는 헤더를 포함한 크기이다.
		frameLen := int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5])>>5
		if frameLen < adtsHeaderLen {
			return audioBufInvalid
		}
		if parser.frames == 0 {
			parser.cfgInfo.objectType = (h[2] >> 6) + 1
			parser.cfgInfo.sampleRate = (h[2] >> 2) & 0x0f
			parser.cfgInfo.channel = (h[2]&0x01)<<2 | h[3]>>6
		}
		parser.frames++
		parser.blocks += int(h[6]&0x03) + 1
		offset += frameLen
	}
	if parser.frames == 0 {
		return audioBufInvalid
	}
	return nil
}

func (parser *Parser) SampleRate() int {
	rate := 44100                                           // 기본 샘플링 레이트를 설정한다.
	if parser.cfgInfo.sampleRate <= byte(len(aacRates)-1) { // 인덱스가 유효 배열 내에 있는가 ?
		rate = aacRates[parser.cfgInfo.sampleRate]
	}
	return rate
}

func (parser *Parser) Channels() int {
	return int(parser.cfgInfo.channel)
}

// Duration 은 읽은 블록 수로 계산한 재생 길이이다.
func (parser *Parser) Duration() time.Duration {
	samples := int64(parser.blocks) * samplesPerBlock
	return time.Duration(samples * int64(time.Second) / int64(parser.SampleRate()))
}
