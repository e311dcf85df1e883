package tenancy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// IsolationReceipt records the outcome of a cross-org access check.
type IsolationReceipt struct {
	ReceiptID    string    `json:"receipt_id"`
	OrgID        string    `json:"org_id"`
	ChecksPassed int       `json:"checks_passed"`
	ChecksFailed int       `json:"checks_failed"`
	Violations   []string  `json:"violations,omitempty"`
	Isolated     bool      `json:"isolated"`
	ContentHash  string    `json:"content_hash"`
	At           time.Time `json:"at"`
}

// IsolationChecker verifies that module and snapshot resources are only
// touched by the org that owns them. Stores register resources as they
// create them; the checker is consulted in tests and in debug builds.
type IsolationChecker struct {
	mu        sync.RWMutex
	resources map[string]map[string]bool // org_id -> resource id set
	seq       int64
	clock     func() time.Time
}

func NewIsolationChecker() *IsolationChecker {
	return &IsolationChecker{
		resources: make(map[string]map[string]bool),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for tests.
func (c *IsolationChecker) WithClock(clock func() time.Time) *IsolationChecker {
	c.clock = clock
	return c
}

// Register associates a resource id with an org.
func (c *IsolationChecker) Register(orgID, resourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resources[orgID] == nil {
		c.resources[orgID] = make(map[string]bool)
	}
	c.resources[orgID][resourceID] = true
}

// Check verifies orgID may access every resource in resourceIDs. A
// resource registered to a different org is a violation; an unknown
// resource passes (creation path).
func (c *IsolationChecker) Check(orgID string, resourceIDs []string) *IsolationReceipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	receipt := &IsolationReceipt{
		ReceiptID: fmt.Sprintf("iso-%d", c.seq),
		OrgID:     orgID,
		Isolated:  true,
		At:        c.clock(),
	}
	for _, resourceID := range resourceIDs {
		if c.ownedByOther(orgID, resourceID) {
			receipt.ChecksFailed++
			receipt.Violations = append(receipt.Violations,
				fmt.Sprintf("resource %q is not owned by org %q", resourceID, orgID))
			receipt.Isolated = false
			continue
		}
		receipt.ChecksPassed++
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%v",
		orgID, receipt.ChecksPassed, receipt.ChecksFailed, receipt.Violations)))
	receipt.ContentHash = hex.EncodeToString(sum[:])
	return receipt
}

func (c *IsolationChecker) ownedByOther(orgID, resourceID string) bool {
	for owner, set := range c.resources {
		if owner != orgID && set[resourceID] {
			return true
		}
	}
	return false
}
