package configure // 설정 관련 패키지

/*
	세션 진행 상황과 시청자 UID 를 로컬 캐시나 redis 에 저장한다.
	redis 환경에서는 여러 시청 인스턴스가 같은 세션 진행 상황을 볼 수 있다.
	로컬 환경에서는 단일 인스턴스에 대해서만 작동한다.
*/
import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kokoavailable/livesync/av"

	"github.com/go-redis/redis/v7"
	"github.com/patrickmn/go-cache"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrProgressNotFound = fmt.Errorf("session progress not found")
)

const (
	keyPrefix   = "livesync:"
	progressTTL = 24 * time.Hour
)

type SessionStore struct {
	redisCli   *redis.Client // 레디스 클라이언트
	localCache *cache.Cache  // 로컬 캐시
}

// redisAddr 가 비어 있으면 로컬 캐시를 쓴다.
func NewSessionStore(redisAddr, redisPwd string) (*SessionStore, error) {
	s := &SessionStore{
		localCache: cache.New(progressTTL, 10*time.Minute),
	}
	if redisAddr == "" {
		return s, nil
	}

	s.redisCli = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPwd,
		DB:       0,
	})
	if _, err := s.redisCli.Ping().Result(); err != nil {
		s.redisCli.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("Redis connected")
	return s, nil
}

func progressKey(sessionID string) string {
	return keyPrefix + "progress:" + sessionID
}

func viewerKey(sessionID string) string {
	return keyPrefix + "viewer:" + sessionID
}

// SaveProgress 는 오케스트레이터 상태 전이마다 불린다.
func (s *SessionStore) SaveProgress(p av.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if s.redisCli != nil {
		return s.redisCli.Set(progressKey(p.SessionID), b, progressTTL).Err()
	}
	s.localCache.SetDefault(progressKey(p.SessionID), b)
	return nil
}

func (s *SessionStore) GetProgress(sessionID string) (av.Progress, error) {
	var b []byte
	if s.redisCli != nil {
		v, err := s.redisCli.Get(progressKey(sessionID)).Bytes()
		if err == redis.Nil {
			return av.Progress{}, fmt.Errorf("%w: %s", ErrProgressNotFound, sessionID)
		} else if err != nil {
			return av.Progress{}, err
		}
		b = v
	} else {
		v, found := s.localCache.Get(progressKey(sessionID))
		if !found {
			return av.Progress{}, fmt.Errorf("%w: %s", ErrProgressNotFound, sessionID)
		}
		b = v.([]byte)
	}

	var p av.Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return av.Progress{}, err
	}
	return p, nil
}

func (s *SessionStore) DeleteProgress(sessionID string) bool {
	if s.redisCli != nil {
		return s.redisCli.Del(progressKey(sessionID)).Err() == nil
	}
	_, ok := s.localCache.Get(progressKey(sessionID))
	s.localCache.Delete(progressKey(sessionID))
	return ok
}

// ViewerID 는 세션별 시청자 UID 를 돌려준다. 없으면 새로 만들어 저장한다.
// 재시작해도 redis 를 쓰면 같은 UID 로 다시 접속한다.
func (s *SessionStore) ViewerID(sessionID string) (string, error) {
	key := viewerKey(sessionID)
	if s.redisCli != nil {
		id, err := s.redisCli.Get(key).Result()
		if err == nil {
			return id, nil
		} else if err != redis.Nil {
			return "", err
		}
		id = uuid.NewV4().String()
		// 다른 인스턴스가 먼저 만들었으면 그 값을 쓴다.
		ok, err := s.redisCli.SetNX(key, id, 0).Result()
		if err != nil {
			return "", err
		}
		if !ok {
			return s.redisCli.Get(key).Result()
		}
		log.Debugf("[VIEWER] new viewer for session [%s]: %s", sessionID, id)
		return id, nil
	}

	if id, found := s.localCache.Get(key); found {
		return id.(string), nil
	}
	id := uuid.NewV4().String()
	if err := s.localCache.Add(key, id, cache.NoExpiration); err != nil {
		v, _ := s.localCache.Get(key)
		return v.(string), nil
	}
	log.Debugf("[VIEWER] new viewer for session [%s]: %s", sessionID, id)
	return id, nil
}

func (s *SessionStore) Close() error {
	if s.redisCli != nil {
		return s.redisCli.Close()
	}
	return nil
}
