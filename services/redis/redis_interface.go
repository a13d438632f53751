package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	redis_utils "github.com/brandonscholten/capstone-spring-2025/services/redis/utils"

	"github.com/redis/go-redis/v9"
)

// RedisClient handles Redis operations: the live session registry, the
// pending approval requests, and the pub/sub event bus subscription.
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(Addr string, DB int) *RedisClient {
	var client *redis.Client
	if Addr != "localhost:6379" {
		log.Println("Connecting to remote Redis...")
		opt, err := redis.ParseURL(Addr)
		if err != nil {
			panic("Error parsing Redis URL")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: Addr,
			DB:   DB,
		})
	}
	return &RedisClient{
		client: client,
		ctx:    context.Background(),
	}
}

// SaveSession stores a live session's registry entry.
// Key format: "session:{id}". The entry also carries a reverse index from
// the announcement message id, so reaction events can find the session
// without scraping the rendered message.
func (rc *RedisClient) SaveSession(session *redis_models.Session) error {
	key := redis_utils.FormatSessionKey(session.Id)
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error marshaling session data: %v", err)
	}

	pipe := rc.client.Pipeline()
	pipe.Set(rc.ctx, key, data, 0)
	if session.AnnouncementID != "" {
		pipe.Set(rc.ctx, redis_utils.FormatAnnouncementKey(session.AnnouncementID), session.Id, 0)
	}
	if _, err := pipe.Exec(rc.ctx); err != nil {
		return fmt.Errorf("error saving session data: %v", err)
	}
	return nil
}

// GetSession retrieves a session registry entry.
// Key format: "session:{id}"
func (rc *RedisClient) GetSession(sessionId string) (*redis_models.Session, error) {
	key := redis_utils.FormatSessionKey(sessionId)
	data, err := rc.client.Get(rc.ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting session data: %v", err)
	}

	var session redis_models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("error unmarshaling session data: %v", err)
	}
	return &session, nil
}

// GetSessionByAnnouncement resolves the session behind an announcement
// message id via the reverse index.
func (rc *RedisClient) GetSessionByAnnouncement(messageId string) (*redis_models.Session, error) {
	sessionId, err := rc.client.Get(rc.ctx, redis_utils.FormatAnnouncementKey(messageId)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error resolving announcement %s: %v", messageId, err)
	}
	return rc.GetSession(sessionId)
}

// DeleteSession removes a session and its announcement index entry.
func (rc *RedisClient) DeleteSession(session *redis_models.Session) error {
	pipe := rc.client.Pipeline()
	pipe.Del(rc.ctx, redis_utils.FormatSessionKey(session.Id))
	if session.AnnouncementID != "" {
		pipe.Del(rc.ctx, redis_utils.FormatAnnouncementKey(session.AnnouncementID))
	}
	if _, err := pipe.Exec(rc.ctx); err != nil {
		return fmt.Errorf("error deleting session data: %v", err)
	}
	return nil
}

// ListSessions returns every live session in the registry. Used by the
// status surface; order is unspecified.
func (rc *RedisClient) ListSessions() ([]*redis_models.Session, error) {
	keys, err := rc.client.Keys(rc.ctx, redis_utils.FormatSessionKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("error listing session keys: %v", err)
	}

	sessions := make([]*redis_models.Session, 0, len(keys))
	for _, key := range keys {
		data, err := rc.client.Get(rc.ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("error getting session data for %s: %v", key, err)
		}
		var session redis_models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			log.Printf("[REGISTRY-ERROR] Skipping unparseable session at %s: %v", key, err)
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

// SaveApprovalRequest stores a pending room request keyed by its moderation
// message id.
func (rc *RedisClient) SaveApprovalRequest(request *redis_models.ApprovalRequest) error {
	key := redis_utils.FormatApprovalKey(request.MessageID)
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshaling approval request: %v", err)
	}
	return rc.client.Set(rc.ctx, key, data, 0).Err()
}

// GetApprovalRequest retrieves a pending room request by moderation
// message id.
func (rc *RedisClient) GetApprovalRequest(messageId string) (*redis_models.ApprovalRequest, error) {
	key := redis_utils.FormatApprovalKey(messageId)
	data, err := rc.client.Get(rc.ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting approval request: %v", err)
	}

	var request redis_models.ApprovalRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("error unmarshaling approval request: %v", err)
	}
	return &request, nil
}

// DeleteApprovalRequest drops a terminal room request.
func (rc *RedisClient) DeleteApprovalRequest(messageId string) error {
	return rc.client.Del(rc.ctx, redis_utils.FormatApprovalKey(messageId)).Err()
}

// Subscribe opens a pub/sub subscription on the given bus channels. The
// returned channel delivers raw payloads until ctx is cancelled.
func (rc *RedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan *redis.Message, func() error) {
	sub := rc.client.Subscribe(ctx, channels...)
	return sub.Channel(), sub.Close
}
