package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
)

// DefaultPendingTTL bounds how long a session's history, pending action and
// collected parameters survive without activity.
const DefaultPendingTTL = 5 * time.Minute

// SessionStore persists conversation sessions: the per-user active pointer,
// the ordered history, the pending action and partially collected parameters.
// The keys are written separately but created and destroyed together. Every
// key except the pointer lapses after the pending TTL without writes, so an
// abandoned prompt takes its in-flight request with it.
type SessionStore struct {
	client     *Client
	pendingTTL time.Duration
	loc        *time.Location
	now        func() time.Time
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

func WithPendingTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// WithLocation sets the zone history timestamps are recorded in.
func WithLocation(loc *time.Location) SessionOption {
	return func(s *SessionStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionStore(client *Client, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		client:     client,
		pendingTTL: DefaultPendingTTL,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PendingTTL returns the expiry applied to pending actions and params.
func (s *SessionStore) PendingTTL() time.Duration {
	return s.pendingTTL
}

// GetOrCreateSession returns the user's active session id, minting
// sess<N>_<userKey> when none exists. When two callers race to create, the
// pointer is claimed with SETNX and the loser adopts the winner's id.
func (s *SessionStore) GetOrCreateSession(ctx context.Context, userKey string) (string, error) {
	rdb := s.client.rdb
	activeKey := ActiveSessionKey(userKey)

	id, err := rdb.Get(ctx, activeKey).Result()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis.SessionStore.GetOrCreateSession: get pointer: %w", err)
	}

	n, err := rdb.Incr(ctx, SessionCounterKey(userKey)).Result()
	if err != nil {
		return "", fmt.Errorf("redis.SessionStore.GetOrCreateSession: incr counter: %w", err)
	}
	id = SessionID(n, userKey)

	claimed, err := rdb.SetNX(ctx, activeKey, id, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis.SessionStore.GetOrCreateSession: claim pointer: %w", err)
	}
	if claimed {
		log.Debug().Str("user_key", userKey).Str("session_id", id).Msg("session created")
		return id, nil
	}

	winner, err := rdb.Get(ctx, activeKey).Result()
	if err != nil {
		return "", fmt.Errorf("redis.SessionStore.GetOrCreateSession: read winner: %w", err)
	}
	return winner, nil
}

// ActiveSession returns the user's active session id without creating one.
func (s *SessionStore) ActiveSession(ctx context.Context, userKey string) (string, bool, error) {
	id, err := s.client.rdb.Get(ctx, ActiveSessionKey(userKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis.SessionStore.ActiveSession: %w", err)
	}
	return id, true, nil
}

// AppendMessage appends one entry to the session history and refreshes its
// expiry.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) error {
	msg := domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now().In(s.loc),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis.SessionStore.AppendMessage: marshal: %w", err)
	}
	key := HistoryKey(sessionID)
	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, s.pendingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.SessionStore.AppendMessage: %w", err)
	}
	return nil
}

// History returns the session history in insertion order. Entries that fail to
// decode are skipped.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	raw, err := s.client.rdb.LRange(ctx, HistoryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.SessionStore.History: %w", err)
	}

	msgs := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("skipping undecodable history entry")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SetPending replaces the session's pending action. The action and the
// history it belongs to expire together after the pending TTL.
func (s *SessionStore) SetPending(ctx context.Context, sessionID string, payload []byte) error {
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, PendingKey(sessionID), payload, s.pendingTTL)
		pipe.Expire(ctx, HistoryKey(sessionID), s.pendingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.SessionStore.SetPending: %w", err)
	}
	return nil
}

// GetPending returns the pending payload, or ok=false when none is set or it
// has expired.
func (s *SessionStore) GetPending(ctx context.Context, sessionID string) ([]byte, bool, error) {
	data, err := s.client.rdb.Get(ctx, PendingKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis.SessionStore.GetPending: %w", err)
	}
	return data, true, nil
}

func (s *SessionStore) ClearPending(ctx context.Context, sessionID string) error {
	if err := s.client.rdb.Del(ctx, PendingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis.SessionStore.ClearPending: %w", err)
	}
	return nil
}

// SetParams replaces the collected parameters as a whole record and refreshes
// their expiry.
func (s *SessionStore) SetParams(ctx context.Context, sessionID string, params map[string]string) error {
	key := ParamsKey(sessionID)
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(params) == 0 {
			return nil
		}
		values := make(map[string]any, len(params))
		for k, v := range params {
			values[k] = v
		}
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.pendingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.SessionStore.SetParams: %w", err)
	}
	return nil
}

// GetParams returns the collected parameters; an empty map when none are stored.
func (s *SessionStore) GetParams(ctx context.Context, sessionID string) (map[string]string, error) {
	params, err := s.client.rdb.HGetAll(ctx, ParamsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.SessionStore.GetParams: %w", err)
	}
	return params, nil
}

// EndSession deletes history, pending action, params and the active pointer in
// one pipelined batch. Every key is attempted; failures are logged per key and
// returned joined.
func (s *SessionStore) EndSession(ctx context.Context, userKey, sessionID string) error {
	keys := []string{
		HistoryKey(sessionID),
		PendingKey(sessionID),
		ParamsKey(sessionID),
		ActiveSessionKey(userKey),
	}

	cmds, err := s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, k)
		}
		return nil
	})
	if err == nil {
		log.Debug().Str("user_key", userKey).Str("session_id", sessionID).Msg("session ended")
		return nil
	}

	var errs []error
	for i, cmd := range cmds {
		if cmdErr := cmd.Err(); cmdErr != nil {
			key := "unknown"
			if i < len(keys) {
				key = keys[i]
			}
			log.Error().Err(cmdErr).Str("key", key).Str("session_id", sessionID).Msg("session teardown: delete failed")
			errs = append(errs, fmt.Errorf("%s: %w", key, cmdErr))
		}
	}
	if len(errs) == 0 {
		errs = append(errs, err)
	}
	return fmt.Errorf("redis.SessionStore.EndSession: %w", errors.Join(errs...))
}
