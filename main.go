package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/kokoavailable/livesync/av"
	"github.com/kokoavailable/livesync/configure"
	"github.com/kokoavailable/livesync/live"
	"github.com/kokoavailable/livesync/player"
	"github.com/kokoavailable/livesync/protocol/api"
	"github.com/kokoavailable/livesync/protocol/backend"
	"github.com/kokoavailable/livesync/protocol/events"
	"github.com/kokoavailable/livesync/protocol/webrtc"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var VERSION = "master"

// 택스트 포매터 구조체 포인터를 전달해 로거의 포매터를 설정한다.
// 호출 함수의 이름과 파일 이름 및 라인 번호를 출력한다.
func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := path.Base(f.File)
			return fmt.Sprintf("%s()", f.Function), fmt.Sprintf(" %s:%d", filename, f.Line)
		},
	})
}

// 세션 정보와 상품 목록을 정한다. 설정에 상품이 없으면 서버에서 받아온다.
func resolveSession(ctx context.Context, cfg configure.ClientCfg, client *backend.Client) (av.MediaSession, []av.ProductStreamUnit) {
	session := av.MediaSession{
		SessionID:    cfg.SessionID,
		FPS:          cfg.FPS,
		Status:       av.StatusPreparing,
		WaitDuration: cfg.WaitDuration,
	}

	var units []av.ProductStreamUnit
	for i, id := range cfg.Products {
		units = append(units, av.ProductStreamUnit{ProductID: id, Order: i})
	}
	if len(units) > 0 || cfg.Mode == configure.ModePlaylist {
		return session, units
	}

	s, err := client.GetSession(ctx, cfg.SessionID)
	if err != nil {
		log.Warn("session lookup failed: ", err)
		return session, nil
	}
	remote := s.MediaSession()
	session.Status = remote.Status
	if remote.FPS > 0 {
		session.FPS = remote.FPS
	}
	if remote.WaitDuration > 0 {
		session.WaitDuration = remote.WaitDuration
	}
	for _, p := range s.Products {
		units = append(units, av.ProductStreamUnit{
			ProductID:   p.ID,
			ProductName: p.Name,
			AudioURL:    p.AudioURL,
			Order:       p.Order,
		})
	}
	log.Infof("session %s: %d products, status %s", session.SessionID, len(units), session.Status)
	return session, units
}

func run() error {
	if err := configure.Init(os.Args[1:]); err != nil {
		return err
	}
	cfg, err := configure.Current()
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if cfg.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down: ", sig)
		cancel()
	}()

	store, err := configure.NewSessionStore(cfg.RedisAddr, cfg.RedisPwd)
	if err != nil {
		return err
	}
	defer store.Close()
	viewerID, err := store.ViewerID(cfg.SessionID)
	if err != nil {
		return err
	}

	client := backend.NewClient(cfg.APIBase, cfg.HTTPTimeout)
	session, products := resolveSession(ctx, cfg, client)

	surface := webrtc.NewSurface(cfg.SessionID, viewerID, 0)
	transport := webrtc.NewTransport(webrtc.Config{
		APIBase:      cfg.APIBase,
		ICEServers:   cfg.ICEServers,
		ReceiveAudio: cfg.ReceiveAudio,
		Timeout:      cfg.HTTPTimeout,
	}, surface)
	loader, err := player.NewHTTPLoader(cfg.APIBase, cfg.HTTPTimeout)
	if err != nil {
		return err
	}

	orch := live.New(live.Config{
		Session:      session,
		Products:     products,
		PollInterval: cfg.PollInterval,
		Sync: player.SyncConfig{
			FPS:               session.FPS,
			Threshold:         cfg.SyncThreshold,
			Interval:          cfg.SyncInterval,
			StrictResume:      cfg.StrictResume,
			HardSeek:          cfg.HardSeek,
			HardSeekThreshold: cfg.HardSeekThreshold,
		},
		Playlist: cfg.Mode == configure.ModePlaylist,
	}, client, transport, surface, loader, store)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.APIAddr != "" {
		opListen, err := net.Listen("tcp", cfg.APIAddr)
		if err != nil {
			return err
		}
		opServer := api.NewServer(ctx, orch, surface)
		g.Go(func() error {
			return opServer.Serve(opListen)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return opServer.Shutdown(shutdownCtx)
		})
	}

	eventClient := events.NewClient(cfg.EventURL(), viewerID, func(ev events.Event) {
		orch.HandleEvent(ctx, ev)
	})
	g.Go(func() error {
		return eventClient.Run(ctx)
	})

	if cfg.AutoStart {
		// 시작 실패는 세션 이벤트나 관리 API 로 다시 시도할 수 있다.
		if err := orch.Start(ctx); err != nil {
			log.Error("start streaming: ", err)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		orch.Stop()
		return nil
	})

	return g.Wait()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error("livesync panic: ", r)
			time.Sleep(1 * time.Second)
		}
	}()

	log.Infof(`
     _     _            ____                   
    | |   (_)_   _____ / ___| _   _ _ __   ___ 
    | |   | \ \ / / _ \\___ \| | | | '_ \ / __|
    | |___| |\ V /  __/ ___) | |_| | | | | (__ 
    |_____|_| \_/ \___||____/ \__, |_| |_|\___|
                              |___/            
        version: %s
	`, VERSION)

	if err := run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
