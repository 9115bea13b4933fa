package mp3

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MP3 프레임 헤더에서 샘플링 주기와 비트레이트를 읽어 재생 길이를 추정한다.
type Parser struct {
	samplingFrequency int
	bitrate           int // bps
	headerOffset      int // ID3 태그를 건너뛴 첫 프레임 위치
	samplesPerFrame   int
	frames            int // Xing/Info 또는 VBRI 헤더의 프레임 수. 없으면 0
}

// 생성 함수.
func NewParser() *Parser {
	return &Parser{}
}

// sampling_frequency - indicates the sampling frequency, according to the following table.
// '00' 44.1 kHz
// '01' 48 kHz
// '10' 32 kHz
// '11' reserved
// MPEG2 는 절반, MPEG2.5 는 1/4 값을 사용한다.
var mp3Rates = []int{44100, 48000, 32000}

// Layer III 비트레이트 테이블(kbps). 0 은 free format, 15 는 금지 값이다.
var (
	mpeg1L3Bitrates = []int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mpeg2L3Bitrates = []int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

var (
	errMp3DataInvalid = fmt.Errorf("mp3data  invalid")
	errIndexInvalid   = fmt.Errorf("invalid rate index")
	errNoFrameSync    = fmt.Errorf("mp3 frame sync not found")
)

const (
	versionMPEG25 = 0
	versionMPEG2  = 2
	versionMPEG1  = 3
	layerIII      = 1
	channelMono   = 3
)

// VBR 헤더에서 전체 프레임 수를 읽는다.
// Xing/Info 는 사이드 정보 바로 뒤, VBRI 는 헤더 뒤 32바이트 위치에 있다.
func vbrFrames(frame []byte, version byte) int {
	mono := frame[3]>>6 == channelMono
	side := 32
	switch {
	case version == versionMPEG1 && mono:
		side = 17
	case version != versionMPEG1 && mono:
		side = 9
	case version != versionMPEG1:
		side = 17
	}

	if x := frame[min(4+side, len(frame)):]; len(x) >= 12 {
		tag := string(x[0:4])
		if tag == "Xing" || tag == "Info" {
			flags := binary.BigEndian.Uint32(x[4:8])
			if flags&0x1 == 0 {
				return 0
			}
			return int(binary.BigEndian.Uint32(x[8:12]))
		}
	}
	if v := frame[min(36, len(frame)):]; len(v) >= 18 && string(v[0:4]) == "VBRI" {
		return int(binary.BigEndian.Uint32(v[14:18]))
	}
	return 0
}

// ID3v2 태그 크기를 반환한다. 크기는 7비트씩 끊어 쓴 syncsafe 정수이다.
func id3Size(src []byte) int {
	if len(src) < 10 || string(src[0:3]) != "ID3" {
		return 0
	}
	size := int(src[6]&0x7f)<<21 | int(src[7]&0x7f)<<14 | int(src[8]&0x7f)<<7 | int(src[9]&0x7f)
	return 10 + size
}

// parse 메서드는 첫 번째 프레임 헤더를 찾아 샘플링 주파수와 비트레이트를 추출한다.
func (parser *Parser) Parse(src []byte) error {
	offset := id3Size(src)
	if len(src)-offset < 4 {
		return errMp3DataInvalid
	}
	// 프레임 싱크(11비트 1)를 찾는다.
	for ; offset+4 <= len(src); offset++ {
		if src[offset] == 0xff && src[offset+1]&0xe0 == 0xe0 {
			break
		}
	}
	if offset+4 > len(src) {
		return errNoFrameSync
	}
	h := src[offset:]
	version := (h[1] >> 3) & 0x3
	layer := (h[1] >> 1) & 0x3
	if version == 1 || layer != layerIII {
		return errMp3DataInvalid
	}

	// 3번째 바이트를 받아 시프트, 마스킹 연산을 한다.
	index := (h[2] >> 2) & 0x3
	if index > byte(len(mp3Rates)-1) {
		// 2비트만 예약되어있다. 3은 reserved 이다.
		return errIndexInvalid
	}
	rate := mp3Rates[index]
	table := mpeg1L3Bitrates
	switch version {
	case versionMPEG2:
		rate /= 2
		table = mpeg2L3Bitrates
	case versionMPEG25:
		rate /= 4
		table = mpeg2L3Bitrates
	}
	bitrateIndex := h[2] >> 4
	if int(bitrateIndex) >= len(table) {
		return errIndexInvalid
	}

	parser.samplingFrequency = rate
	parser.bitrate = table[bitrateIndex] * 1000
	parser.headerOffset = offset
	parser.samplesPerFrame = 1152
	if version != versionMPEG1 {
		parser.samplesPerFrame = 576
	}
	parser.frames = vbrFrames(h, version)
	return nil
}

// 샘플레이트 메서드는 샘플레이트를 반환한다. 디폴트 44100을 반환.
func (parser *Parser) SampleRate() int {
	if parser.samplingFrequency == 0 {
		parser.samplingFrequency = 44100
	}
	return parser.samplingFrequency
}

// Bitrate 는 첫 프레임의 비트레이트(bps)이다. free format 이면 0 이다.
func (parser *Parser) Bitrate() int {
	return parser.bitrate
}

// Frames 는 VBR 헤더가 알려준 프레임 수이다.
func (parser *Parser) Frames() int {
	return parser.frames
}

// Duration 은 VBR 헤더가 있으면 프레임 수로 계산하고, 없으면 CBR 을 가정해 추정한다.
// total 은 태그를 포함한 파일 전체 크기이다.
func (parser *Parser) Duration(total int) time.Duration {
	if parser.frames > 0 && parser.samplingFrequency > 0 {
		samples := int64(parser.frames) * int64(parser.samplesPerFrame)
		return time.Duration(samples * int64(time.Second) / int64(parser.samplingFrequency))
	}
	if parser.bitrate == 0 || total <= parser.headerOffset {
		return 0
	}
	bits := int64(total-parser.headerOffset) * 8
	return time.Duration(bits * int64(time.Second) / int64(parser.bitrate))
}
