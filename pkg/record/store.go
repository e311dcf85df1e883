package record

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

var (
	ErrRecordNotFound = errors.New("record: not found")
	ErrBadCursor      = errors.New("record: malformed page cursor")
)

// Record is one stored row of an entity.
type Record struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Page is one keyset page, newest-first. NextCursor is empty on the
// last page.
type Page struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// LookupEntry pairs a record id with its display value for pickers.
type LookupEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Store is the record persistence contract the validator's callers use.
// Pagination is keyset on (updated_at, id) descending; the backing
// store must give record ids a total order for ties on updated_at.
type Store interface {
	List(ctx context.Context, entityID string) ([]Record, error)
	Get(ctx context.Context, entityID, id string) (*Record, error)
	Create(ctx context.Context, entityID string, data map[string]any) (*Record, error)
	Update(ctx context.Context, entityID, id string, data map[string]any) (*Record, error)
	Delete(ctx context.Context, entityID, id string) error
	ListPage(ctx context.Context, entityID string, limit int, cursor string) (*Page, error)
	ListLookup(ctx context.Context, entityID, displayField string) ([]LookupEntry, error)
}

// EncodeCursor packs a page boundary as base64("updated_at|id").
func EncodeCursor(updatedAt time.Time, id string) string {
	raw := updatedAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a cursor produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", ErrBadCursor
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return t, id, nil
}

// Memory is the in-memory Store used by tests and the validator's
// single-node callers.
type Memory struct {
	mu    sync.Mutex
	orgs  map[string]map[string]map[string]*Record
	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orgs:  map[string]map[string]map[string]*Record{},
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (s *Memory) WithClock(clock func() time.Time) *Memory {
	s.clock = clock
	return s
}

func (s *Memory) entity(ctx context.Context, entityID string) (map[string]*Record, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	entities, ok := s.orgs[orgID]
	if !ok {
		entities = map[string]map[string]*Record{}
		s.orgs[orgID] = entities
	}
	records, ok := entities[entityID]
	if !ok {
		records = map[string]*Record{}
		entities[entityID] = records
	}
	return records, nil
}

func (s *Memory) List(ctx context.Context, entityID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.entity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range records {
		out = append(out, *copyRecord(r))
	}
	sortRecords(out)
	return out, nil
}

func (s *Memory) Get(ctx context.Context, entityID, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.entity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	r, ok := records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (s *Memory) Create(ctx context.Context, entityID string, data map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.entity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	r := &Record{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Data:      copyData(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if id, ok := data["id"].(string); ok && id != "" {
		r.ID = id
	}
	records[r.ID] = r
	return copyRecord(r), nil
}

func (s *Memory) Update(ctx context.Context, entityID, id string, data map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.entity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	r, ok := records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	for k, v := range data {
		if k == "id" {
			continue
		}
		r.Data[k] = canonical.DeepCopy(v)
	}
	r.UpdatedAt = s.clock()
	return copyRecord(r), nil
}

func (s *Memory) Delete(ctx context.Context, entityID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.entity(ctx, entityID)
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(records, id)
	return nil
}

func (s *Memory) ListPage(ctx context.Context, entityID string, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	all, err := s.List(ctx, entityID)
	if err != nil {
		return nil, err
	}
	start := 0
	if cursor != "" {
		at, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		for i, r := range all {
			if afterBoundary(r, at, id) {
				start = i
				break
			}
			start = len(all)
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := &Page{Records: all[start:end]}
	if end < len(all) {
		last := page.Records[len(page.Records)-1]
		page.NextCursor = EncodeCursor(last.UpdatedAt, last.ID)
	}
	return page, nil
}

func (s *Memory) ListLookup(ctx context.Context, entityID, displayField string) ([]LookupEntry, error) {
	all, err := s.List(ctx, entityID)
	if err != nil {
		return nil, err
	}
	out := make([]LookupEntry, 0, len(all))
	for _, r := range all {
		label, _ := r.Data[displayField].(string)
		out = append(out, LookupEntry{ID: r.ID, Label: label})
	}
	return out, nil
}

// sortRecords orders newest-first with id ascending as the tiebreak,
// matching the keyset cursor.
func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// afterBoundary reports whether r sorts strictly after the cursor
// position (at, id).
func afterBoundary(r Record, at time.Time, id string) bool {
	if !r.UpdatedAt.Equal(at) {
		return r.UpdatedAt.Before(at)
	}
	return r.ID > id
}

func copyRecord(r *Record) *Record {
	out := *r
	out.Data = copyData(r.Data)
	return &out
}

func copyData(data map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range data {
		out[k] = canonical.DeepCopy(v)
	}
	return out
}
