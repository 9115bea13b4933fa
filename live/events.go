package live

import (
	"context"
	"fmt"

	"github.com/kokoavailable/livesync/av"
	"github.com/kokoavailable/livesync/protocol/events"

	log "github.com/sirupsen/logrus"
)

// HandleEvent 는 세션 이벤트 소켓에서 받은 메시지를 처리한다.
// 다른 세션의 메시지는 무시한다.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev events.Event) {
	if sid := events.SessionOf(ev); sid != "" && !sid.Matches(o.cfg.Session.SessionID) {
		return
	}

	switch e := ev.(type) {
	case events.SessionEvent:
		o.handleSessionEvent(ctx, e)
	case events.CommentEvent:
		if e.Comment.IsQuestion && !e.Comment.Answered {
			log.Infof("question from %s: %s", e.Comment.Username, e.Comment.Message)
		} else {
			log.Debugf("comment from %s: %s", e.Comment.Username, e.Comment.Message)
		}
	case events.QuestionEvent:
		switch e.Kind {
		case events.KindQuestionError:
			log.Warnf("question %s: %s", e.CommentID, e.Message)
		case events.KindQuestionAnswered:
			log.Infof("question %s answered: %s", e.CommentID, e.VideoPath)
		default:
			log.Infof("question %s: %s", e.CommentID, e.Message)
		}
	case events.Unknown:
		log.Debug(fmt.Errorf("%w: %q", events.ErrUnknownMessage, e.Type))
	default:
		log.Debug(fmt.Errorf("%w: %T", events.ErrUnknownMessage, ev))
	}
}

func (o *Orchestrator) handleSessionEvent(ctx context.Context, e events.SessionEvent) {
	switch e.Kind {
	case events.KindSessionStarted:
		log.Infof("session %s started", e.SessionID)
		if err := o.Start(ctx); err != nil {
			log.Error("start streaming: ", err)
		}
	case events.KindSessionStopped:
		log.Infof("session %s stopped", e.SessionID)
		if o.State() == StateStopped {
			o.SetSessionStatus(av.StatusCompleted)
			return
		}
		// 종료 상태는 Stop 이 저장하는 진행 상황에 함께 기록된다.
		o.markSession(av.StatusCompleted)
		o.Stop()
	case events.KindSessionReady:
		log.Infof("session %s ready", e.SessionID)
		o.SetSessionStatus(av.StatusReady)
	case events.KindSessionError:
		log.Errorf("session %s error: %s", e.SessionID, e.Message)
	}
}
