package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

var (
	ErrUnknownMessage = fmt.Errorf("unknown event message")
)

type Kind string

const (
	KindSessionStarted     Kind = "session_started"
	KindSessionStopped     Kind = "session_stopped"
	KindSessionReady       Kind = "session_ready"
	KindSessionError       Kind = "session_error"
	KindNewComment         Kind = "new_comment"
	KindLiveComment        Kind = "live_comment"
	KindQuestionProcessing Kind = "question_processing"
	KindQuestionAnswered   Kind = "question_answered"
	KindQuestionError      Kind = "question_error"
)

// ID 는 서버가 숫자나 문자열로 보내는 식별자이다.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Event 는 웹소켓으로 받은 메시지 하나이다. 아래 타입 중 하나이다.
type Event interface {
	EventKind() Kind
}

type SessionEvent struct {
	Kind      Kind
	SessionID ID
	Message   string
}

type Comment struct {
	ID         ID     `json:"id"`
	SessionID  ID     `json:"session_id"`
	Username   string `json:"username"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	IsQuestion bool   `json:"is_question"`
	Answered   bool   `json:"answered"`
}

type CommentEvent struct {
	Kind      Kind
	SessionID ID
	Comment   Comment
}

type QuestionEvent struct {
	Kind      Kind
	SessionID ID
	Message   string
	CommentID ID
	VideoPath string
}

// 모르는 type 값. 원문을 보관한다.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (e SessionEvent) EventKind() Kind { return e.Kind }
func (e CommentEvent) EventKind() Kind { return e.Kind }
func (e QuestionEvent) EventKind() Kind { return e.Kind }
func (e Unknown) EventKind() Kind { return Kind(e.Type) }

type envelope struct {
	Type      string  `json:"type"`
	SessionID ID      `json:"session_id"`
	Message   string  `json:"message"`
	Comment   Comment `json:"comment"`
	CommentID ID      `json:"comment_id"`
	VideoPath string  `json:"video_path"`
}

// Decode 는 메시지를 종류별 이벤트로 바꾼다. 모르는 type 은 Unknown 으로 돌려준다.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	kind := Kind(env.Type)
	switch kind {
	case KindSessionStarted, KindSessionStopped, KindSessionReady, KindSessionError:
		return SessionEvent{Kind: kind, SessionID: env.SessionID, Message: env.Message}, nil
	case KindNewComment, KindLiveComment:
		sid := env.SessionID
		if sid == "" {
			sid = env.Comment.SessionID
		}
		return CommentEvent{Kind: kind, SessionID: sid, Comment: env.Comment}, nil
	case KindQuestionProcessing, KindQuestionAnswered, KindQuestionError:
		return QuestionEvent{
			Kind:      kind,
			SessionID: env.SessionID,
			Message:   env.Message,
			CommentID: env.CommentID,
			VideoPath: env.VideoPath,
		}, nil
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Unknown{Type: env.Type, Raw: raw}, nil
}

// SessionOf 는 이벤트가 속한 세션을 돌려준다.
func SessionOf(ev Event) ID {
	switch e := ev.(type) {
	case SessionEvent:
		return e.SessionID
	case CommentEvent:
		return e.SessionID
	case QuestionEvent:
		return e.SessionID
	}
	return ""
}

// 숫자 세션 ID 와 문자열 세션 ID 를 같은 것으로 본다.
func (id ID) Matches(other string) bool {
	if string(id) == other {
		return true
	}
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(other, 10, 64)
	return errA == nil && errB == nil && a == b
}
