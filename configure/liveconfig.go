package configure

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

/*
api_base: http://localhost:8000
session_id: "12"
products: [p1, p2]
fps: 25
wait_duration: 2s
sync_threshold: 0.2
*/

// 시청 클라이언트 설정이다.
// mapstructure 태그로 설정 파일, 플래그, 환경 변수의 키를 필드에 매핑한다.
type ClientCfg struct {
	Level      string `mapstructure:"level"`
	ConfigFile string `mapstructure:"config_file"`

	APIBase     string        `mapstructure:"api_base"` // 영상 생성 서버
	WSURL       string        `mapstructure:"ws_url"`   // 세션 이벤트 웹소켓, 비면 api_base 의 /ws
	APIAddr     string        `mapstructure:"api_addr"` // 로컬 관리 API
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	SessionID    string        `mapstructure:"session_id"`
	Products     []string      `mapstructure:"products"` // 비면 서버에서 세션 상품 목록을 받아온다
	Mode         string        `mapstructure:"mode"`     // product | playlist
	FPS          int           `mapstructure:"fps"`
	WaitDuration time.Duration `mapstructure:"wait_duration"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	AutoStart    bool          `mapstructure:"auto_start"` // false 면 session_started 이벤트를 기다린다

	SyncInterval      time.Duration `mapstructure:"sync_interval"`
	SyncThreshold     float64       `mapstructure:"sync_threshold"`
	StrictResume      bool          `mapstructure:"strict_resume"`
	HardSeek          bool          `mapstructure:"hard_seek"`
	HardSeekThreshold float64       `mapstructure:"hard_seek_threshold"`

	ReceiveAudio bool     `mapstructure:"receive_audio"`
	ICEServers   []string `mapstructure:"ice_servers"`

	RedisAddr string `mapstructure:"redis_addr"`
	RedisPwd  string `mapstructure:"redis_pwd"`
}

const (
	ModeProduct  = "product"
	ModePlaylist = "playlist"
)

// default config
var defaultConf = ClientCfg{
	Level:             "info",
	ConfigFile:        "livesync.yaml",
	APIBase:           "http://localhost:8000",
	APIAddr:           ":8090",
	HTTPTimeout:       10 * time.Second,
	Mode:              ModeProduct,
	FPS:               25,
	WaitDuration:      2 * time.Second,
	PollInterval:      time.Second,
	AutoStart:         true,
	SyncInterval:      100 * time.Millisecond,
	SyncThreshold:     0.2,
	HardSeekThreshold: 0.5,
	ICEServers:        []string{"stun:stun.l.google.com:19302"},
}

var (
	Config = viper.New()
)

func initLog() {
	if l, err := log.ParseLevel(Config.GetString("level")); err == nil {
		log.SetLevel(l)
		log.SetReportCaller(l == log.DebugLevel)
	}
}

// Init 은 args 로 전역 설정을 만든다. 기본값, 플래그, 설정 파일, 환경 변수 순으로 덮어쓴다.
func Init(args []string) error {
	v, err := Load(args)
	if err != nil {
		return err
	}
	Config = v

	// Log
	initLog()

	// Print final config
	c, _ := Current()
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))
	return nil
}

// Load 는 전역 상태를 건드리지 않고 설정을 읽는다.
func Load(args []string) (*viper.Viper, error) {
	v := viper.New()

	// Default config
	b, _ := json.Marshal(defaultConf)
	def := viper.New()
	def.SetConfigType("json")
	if err := def.ReadConfig(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	v.MergeConfigMap(def.AllSettings())

	// Flags
	// P 가 없는 메서드는 긴 형식 플래그만 지원한다.
	fs := pflag.NewFlagSet("livesync", pflag.ContinueOnError)
	fs.String("level", "info", "Log level")
	fs.String("config_file", "livesync.yaml", "configure filename")
	fs.String("api_base", "http://localhost:8000", "video generation server base URL")
	fs.String("ws_url", "", "session event websocket URL")
	fs.String("api_addr", ":8090", "HTTP manage interface listen address")
	fs.Duration("http_timeout", 10*time.Second, "backend request timeout")
	fs.String("session_id", "", "live session to watch")
	fs.StringSlice("products", nil, "product ids in streaming order")
	fs.String("mode", ModeProduct, "product: one audio per product, playlist: session audio list")
	fs.Int("fps", 25, "fallback frame rate")
	fs.Duration("wait_duration", 2*time.Second, "pause between products")
	fs.Duration("poll_interval", time.Second, "generation status poll interval")
	fs.Bool("auto_start", true, "start streaming without waiting for session_started")
	fs.Duration("sync_interval", 100*time.Millisecond, "audio correction interval")
	fs.Float64("sync_threshold", 0.2, "pause audio leading video by more than this (seconds)")
	fs.Bool("strict_resume", false, "resume only after video catches up with audio")
	fs.Bool("hard_seek", false, "seek audio to video time on large drift")
	fs.Float64("hard_seek_threshold", 0.5, "drift that triggers a hard seek (seconds)")
	fs.Bool("receive_audio", false, "also negotiate a recvonly audio track")
	fs.StringSlice("ice_servers", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	fs.String("redis_addr", "", "redis address for shared session progress")
	fs.String("redis_pwd", "", "redis password")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v.BindPFlags(fs)

	// File
	v.SetConfigFile(v.GetString("config_file"))
	v.AddConfigPath(".")
	err := v.ReadInConfig()
	if err != nil {
		log.Warning(err)
		log.Info("Using default config")
	} else {
		v.MergeInConfig()
	}

	// Environment
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	return v, nil
}

func Current() (ClientCfg, error) {
	return Decode(Config)
}

func Decode(v *viper.Viper) (ClientCfg, error) {
	c := ClientCfg{}
	err := v.Unmarshal(&c)
	return c, err
}

// EventURL 은 설정된 웹소켓 주소, 없으면 api_base 에서 만든 주소이다.
func (c ClientCfg) EventURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	base := strings.TrimRight(c.APIBase, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}
