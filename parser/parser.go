package parser

import (
	"fmt"
	"time"

	"github.com/kokoavailable/livesync/parser/aac"
	"github.com/kokoavailable/livesync/parser/mp3"
	"github.com/kokoavailable/livesync/parser/wav"
)

var (
	ErrUnknownFormat = fmt.Errorf("unknown audio format")
)

type Format string

const (
	FormatWAV Format = "wav"
	FormatAAC Format = "aac"
	FormatMP3 Format = "mp3"
)

// 오디오 파일 헤더에서 얻은 재생 정보이다.
type Info struct {
	Format     Format
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Probe 는 버퍼 전체를 보고 포맷을 판별한다. WAV, ADTS 순으로 시그니처를 확인하고
// 나머지는 MP3 프레임 싱크를 찾는다.
func Probe(src []byte) (Info, error) {
	switch {
	case wav.IsWAV(src):
		p := wav.NewParser()
		if err := p.Parse(src); err != nil {
			return Info{}, err
		}
		return Info{Format: FormatWAV, SampleRate: p.SampleRate(), Channels: p.Channels(), Duration: p.Duration()}, nil
	case aac.IsADTS(src):
		p := aac.NewParser()
		if err := p.Parse(src); err != nil {
			return Info{}, err
		}
		return Info{Format: FormatAAC, SampleRate: p.SampleRate(), Channels: p.Channels(), Duration: p.Duration()}, nil
	}

	p := mp3.NewParser()
	if err := p.Parse(src); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return Info{Format: FormatMP3, SampleRate: p.SampleRate(), Duration: p.Duration(len(src))}, nil
}
