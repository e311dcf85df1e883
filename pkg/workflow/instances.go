package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

// HistoryLimit bounds the transition history kept per instance. Older
// entries are discarded.
const HistoryLimit = 50

var ErrInstanceNotFound = errors.New("workflow: instance not found")

// Instance is one running workflow bound to a record.
type Instance struct {
	InstanceID string         `json:"instance_id"`
	WorkflowID string         `json:"workflow_id"`
	EntityID   string         `json:"entity_id"`
	RecordID   string         `json:"record_id"`
	State      string         `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	History    []HistoryEntry `json:"history"`
}

// HistoryEntry records one applied transition, newest first.
type HistoryEntry struct {
	At           time.Time `json:"at"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	TransitionID string    `json:"transition_id"`
	Actor        string    `json:"actor"`
}

// InstanceStore persists workflow instances per org.
type InstanceStore interface {
	CreateInstance(ctx context.Context, workflowID, entityID, recordID, initialState string) (*Instance, error)
	UpdateInstance(ctx context.Context, instanceID, toState, transitionID, actor string) (*Instance, error)
	GetInstance(ctx context.Context, instanceID string) (*Instance, error)
	ListInstances(ctx context.Context, workflowID string) ([]Instance, error)
}

// MemoryInstances is the in-memory InstanceStore for tests and
// single-node setups.
type MemoryInstances struct {
	mu    sync.Mutex
	orgs  map[string]map[string]*Instance
	clock func() time.Time
}

func NewMemoryInstances() *MemoryInstances {
	return &MemoryInstances{
		orgs:  map[string]map[string]*Instance{},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (s *MemoryInstances) WithClock(clock func() time.Time) *MemoryInstances {
	s.clock = clock
	return s
}

func (s *MemoryInstances) org(ctx context.Context) (map[string]*Instance, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	instances, ok := s.orgs[orgID]
	if !ok {
		instances = map[string]*Instance{}
		s.orgs[orgID] = instances
	}
	return instances, nil
}

func (s *MemoryInstances) CreateInstance(ctx context.Context, workflowID, entityID, recordID, initialState string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances, err := s.org(ctx)
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
	instances[inst.InstanceID] = inst
	return copyInstance(inst), nil
}

func (s *MemoryInstances) UpdateInstance(ctx context.Context, instanceID, toState, transitionID, actor string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances, err := s.org(ctx)
	if err != nil {
		return nil, err
	}
	inst, ok := instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	now := s.clock()
	entry := HistoryEntry{
		At:           now,
		FromState:    inst.State,
		ToState:      toState,
		TransitionID: transitionID,
		Actor:        actor,
	}
	inst.History = append([]HistoryEntry{entry}, inst.History...)
	if len(inst.History) > HistoryLimit {
		inst.History = inst.History[:HistoryLimit]
	}
	inst.State = toState
	inst.UpdatedAt = now
	return copyInstance(inst), nil
}

func (s *MemoryInstances) GetInstance(ctx context.Context, instanceID string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances, err := s.org(ctx)
	if err != nil {
		return nil, err
	}
	inst, ok := instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return copyInstance(inst), nil
}

func (s *MemoryInstances) ListInstances(ctx context.Context, workflowID string) ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instances, err := s.org(ctx)
	if err != nil {
		return nil, err
	}
	out := []Instance{}
	for _, inst := range instances {
		if inst.WorkflowID == workflowID {
			out = append(out, *copyInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out, nil
}

func copyInstance(inst *Instance) *Instance {
	out := *inst
	out.History = append([]HistoryEntry{}, inst.History...)
	return &out
}
