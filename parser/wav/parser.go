package wav

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RIFF/WAVE 컨테이너의 fmt, data 청크를 찾아 PCM 형식과 길이를 계산한다.
type Parser struct {
	audioFormat uint16
	channels    uint16
	sampleRate  uint32
	byteRate    uint32
	bitsPerSamp uint16
	dataSize    uint32
}

var (
	errNotRiff   = fmt.Errorf("not a RIFF/WAVE file")
	errNoFmt     = fmt.Errorf("wav fmt chunk missing")
	errNoData    = fmt.Errorf("wav data chunk missing")
	errFmtLength = fmt.Errorf("wav fmt chunk too short")
)

func NewParser() *Parser {
	return &Parser{}
}

// IsWAV 는 RIFF 헤더와 WAVE 폼 타입을 확인한다.
func IsWAV(src []byte) bool {
	return len(src) >= 12 && string(src[0:4]) == "RIFF" && string(src[8:12]) == "WAVE"
}

// Parse 는 청크를 순서대로 읽는다. 청크는 짝수 바이트로 정렬된다.
func (parser *Parser) Parse(src []byte) error {
	if !IsWAV(src) {
		return errNotRiff
	}
	var gotFmt, gotData bool
	for offset := 12; offset+8 <= len(src); {
		id := string(src[offset : offset+4])
		size := binary.LittleEndian.Uint32(src[offset+4 : offset+8])
		body := offset + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(src) {
				return errFmtLength
			}
			parser.audioFormat = binary.LittleEndian.Uint16(src[body:])
			parser.channels = binary.LittleEndian.Uint16(src[body+2:])
			parser.sampleRate = binary.LittleEndian.Uint32(src[body+4:])
			parser.byteRate = binary.LittleEndian.Uint32(src[body+8:])
			parser.bitsPerSamp = binary.LittleEndian.Uint16(src[body+14:])
			gotFmt = true
		case "data":
			parser.dataSize = size
			// 스트리밍으로 쓰인 파일은 data 크기가 실제보다 클 수 있다.
			if remain := uint32(len(src) - body); size > remain {
				parser.dataSize = remain
			}
			gotData = true
		}
		if gotFmt && gotData {
			return nil
		}
		offset = body + int(size) + int(size&1)
	}
	if !gotFmt {
		return errNoFmt
	}
	return errNoData
}

func (parser *Parser) SampleRate() int {
	return int(parser.sampleRate)
}

func (parser *Parser) Channels() int {
	return int(parser.channels)
}

func (parser *Parser) Duration() time.Duration {
	if parser.byteRate == 0 {
		return 0
	}
	return time.Duration(int64(parser.dataSize) * int64(time.Second) / int64(parser.byteRate))
}
