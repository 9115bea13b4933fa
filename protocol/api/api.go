package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/kokoavailable/livesync/live"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

type Response struct {
	w      http.ResponseWriter
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

func (r *Response) SendJson() (int, error) {
	resp, _ := json.Marshal(r)
	r.w.Header().Set("Content-Type", "application/json")
	r.w.WriteHeader(r.Status)
	return r.w.Write(resp)
}

// 관리 API 가 다루는 오케스트레이터 기능.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Status() live.Status
}

// 표면 상태. 최근 프레임 표시 여부와 누적 프레임 수.
type SurfaceProbe interface {
	Alive() bool
	PresentedFrames() uint64
}

type SurfaceStatus struct {
	Alive           bool   `json:"alive"`
	PresentedFrames uint64 `json:"presented_frames"`
}

type StatusResponse struct {
	live.Status
	Surface *SurfaceStatus `json:"surface,omitempty"`
	Time    time.Time      `json:"time"`
}

// Server 는 로컬 관리 API 이다. 상태 조회와 시작/정지를 제공한다.
type Server struct {
	ctrl    Controller
	surface SurfaceProbe
	ctx     context.Context // 시작 요청으로 띄운 스트리밍의 수명
	srv     *http.Server
}

func NewServer(ctx context.Context, ctrl Controller, surface SurfaceProbe) *Server {
	return &Server{
		ctrl:    ctrl,
		surface: surface,
		ctx:     ctx,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/control/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/control/stop", s.handleStop).Methods(http.MethodPost)

	n := negroni.New(negroni.NewRecovery())
	n.Use(negroni.HandlerFunc(logRequest))
	n.UseHandler(r)
	return n
}

func logRequest(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)
	res := w.(negroni.ResponseWriter)
	log.Debugf("api: %s %s %d %v", r.Method, r.URL.Path, res.Status(), time.Since(start))
}

func (s *Server) Serve(l net.Listener) error {
	s.srv = &http.Server{Handler: s.Handler()}
	log.Info("HTTP-API listen On ", l.Addr())
	err := s.srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	st := StatusResponse{Status: s.ctrl.Status(), Time: time.Now()}
	if s.surface != nil {
		st.Surface = &SurfaceStatus{
			Alive:           s.surface.Alive(),
			PresentedFrames: s.surface.PresentedFrames(),
		}
	}
	res.Data = st
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	// 요청 컨텍스트가 아니라 서버 수명으로 시작한다.
	if err := s.ctrl.Start(s.ctx); err != nil {
		res.Status = http.StatusBadRequest
		res.Data = err.Error()
		return
	}
	res.Data = s.ctrl.Status()
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	s.ctrl.Stop()
	res.Data = s.ctrl.Status()
}
