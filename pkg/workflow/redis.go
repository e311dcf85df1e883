package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

// RedisInstances implements InstanceStore on Redis. Instance state is a
// JSON blob per key; history is a list trimmed to HistoryLimit entries.
type RedisInstances struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisInstances connects to Redis at addr.
func NewRedisInstances(addr string, password string, db int) *RedisInstances {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisInstances{
		client: rdb,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// NewRedisInstancesWithClient wraps an existing client. Used by tests
// with miniredis-style servers.
func NewRedisInstancesWithClient(client *redis.Client) *RedisInstances {
	return &RedisInstances{
		client: client,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (s *RedisInstances) WithClock(clock func() time.Time) *RedisInstances {
	s.clock = clock
	return s
}

func instKey(orgID, instanceID string) string {
	return fmt.Sprintf("forma:wf:inst:%s:%s", orgID, instanceID)
}

func histKey(orgID, instanceID string) string {
	return fmt.Sprintf("forma:wf:hist:%s:%s", orgID, instanceID)
}

func idxKey(orgID, workflowID string) string {
	return fmt.Sprintf("forma:wf:idx:%s:%s", orgID, workflowID)
}

func (s *RedisInstances) CreateInstance(ctx context.Context, workflowID, entityID, recordID, initialState string) (*Instance, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	inst := &Instance{
		InstanceID: uuid.NewString(),
		WorkflowID: workflowID,
		EntityID:   entityID,
		RecordID:   recordID,
		State:      initialState,
		CreatedAt:  now,
		UpdatedAt:  now,
		History:    []HistoryEntry{},
	}
	if err := s.writeState(ctx, orgID, inst); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, idxKey(orgID, workflowID), inst.InstanceID).Err(); err != nil {
		return nil, fmt.Errorf("workflow: index instance: %w", err)
	}
	return inst, nil
}

func (s *RedisInstances) UpdateInstance(ctx context.Context, instanceID, toState, transitionID, actor string) (*Instance, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := s.readState(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	entry := HistoryEntry{
		At:           now,
		FromState:    inst.State,
		ToState:      toState,
		TransitionID: transitionID,
		Actor:        actor,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode history entry: %w", err)
	}

	inst.State = toState
	inst.UpdatedAt = now
	if err := s.writeState(ctx, orgID, inst); err != nil {
		return nil, err
	}

	key := histKey(orgID, instanceID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, HistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("workflow: append history: %w", err)
	}

	return s.GetInstance(ctx, instanceID)
}

func (s *RedisInstances) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := s.readState(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	entries, err := s.client.LRange(ctx, histKey(orgID, instanceID), 0, HistoryLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("workflow: read history: %w", err)
	}
	inst.History = make([]HistoryEntry, 0, len(entries))
	for _, raw := range entries {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("workflow: decode history entry: %w", err)
		}
		inst.History = append(inst.History, entry)
	}
	return inst, nil
}

func (s *RedisInstances) ListInstances(ctx context.Context, workflowID string) ([]Instance, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, idxKey(orgID, workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("workflow: list instances: %w", err)
	}
	out := []Instance{}
	for _, id := range ids {
		inst, err := s.readState(ctx, orgID, id)
		if errors.Is(err, ErrInstanceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out, nil
}

func (s *RedisInstances) writeState(ctx context.Context, orgID string, inst *Instance) error {
	state := *inst
	state.History = nil
	raw, err := json.Marshal(&state)
	if err != nil {
		return fmt.Errorf("workflow: encode instance: %w", err)
	}
	if err := s.client.Set(ctx, instKey(orgID, inst.InstanceID), raw, 0).Err(); err != nil {
		return fmt.Errorf("workflow: write instance: %w", err)
	}
	return nil
}

func (s *RedisInstances) readState(ctx context.Context, orgID, instanceID string) (*Instance, error) {
	raw, err := s.client.Get(ctx, instKey(orgID, instanceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: read instance: %w", err)
	}
	var inst Instance
	if err := json.Unmarshal([]byte(raw), &inst); err != nil {
		return nil, fmt.Errorf("workflow: decode instance: %w", err)
	}
	inst.History = []HistoryEntry{}
	return &inst, nil
}
