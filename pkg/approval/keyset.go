package approval

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const maxRetainedKeys = 10

// InMemoryKeySet holds Ed25519 signing keys in memory and rotates on
// demand. Tokens signed with retired keys keep verifying until the key
// is evicted.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	order      []string
	keys       map[string]ed25519.PrivateKey
}

func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: map[string]ed25519.PrivateKey{}}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a fresh active key and evicts the oldest once the
// retention limit is hit.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("approval: generate key: %w", err)
	}

	kid := fmt.Sprintf("key-%d-%d", time.Now().UnixNano(), len(ks.order))
	ks.keys[kid] = privateKey
	ks.order = append(ks.order, kid)
	ks.currentKID = kid

	for len(ks.order) > maxRetainedKeys {
		oldest := ks.order[0]
		ks.order = ks.order[1:]
		delete(ks.keys, oldest)
	}
	return nil
}

func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("approval: no active signing key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("approval: token header has no kid")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("approval: unknown key %s", kid)
		}
		return key.Public(), nil
	}
}
