// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package botvisor

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 6 * time.Hour

	// SweepThreshold is the table size above which issuing a token
	// also purges every expired token.
	SweepThreshold = 100
)

// Token is a short-lived credential.
type Token struct {
	Value   string    `json:"token"`
	Created time.Time `json:"createdAt"`
	Expires time.Time `json:"expiresAt"`
}

// TokenGate issues tokens in exchange for the shared panel key, and
// verifies them.  Expired tokens are removed lazily: when Verify meets
// one, and in a sweep whenever the table grows past SweepThreshold.
// There is no background timer.
type TokenGate struct {
	key    string
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]Token
	lock   sync.Mutex
}

// NewTokenGate creates a gate for key, which may be given either in
// the clear or as a bcrypt hash.  A zero ttl selects DefaultTokenTTL.
func NewTokenGate(key string, ttl time.Duration) *TokenGate {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenGate{
		key:    key,
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]Token),
	}
}

// SetClock replaces the time source.  Tests use this.
func (g *TokenGate) SetClock(now func() time.Time) {
	g.lock.Lock()
	g.now = now
	g.lock.Unlock()
}

func (g *TokenGate) keyMatches(key string) bool {
	if g.key == "" {
		return false
	}
	if strings.HasPrefix(g.key, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(g.key), []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.key), []byte(key)) == 1
}

// Issue returns a new token if key is the panel key, or ErrAuth.
func (g *TokenGate) Issue(key string) (Token, error) {
	if !g.keyMatches(key) {
		return Token{}, ErrAuth
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	now := g.now()
	t := Token{
		Value:   uuid.NewString(),
		Created: now,
		Expires: now.Add(g.ttl),
	}
	g.tokens[t.Value] = t
	if len(g.tokens) > SweepThreshold {
		g.sweep(now)
	}
	return t, nil
}

// Verify reports whether value is a token that has not yet expired.
func (g *TokenGate) Verify(value string) bool {
	if value == "" {
		return false
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	t, ok := g.tokens[value]
	if !ok {
		return false
	}
	if !g.now().Before(t.Expires) {
		delete(g.tokens, value)
		return false
	}
	return true
}

// Revoke forgets a token.
func (g *TokenGate) Revoke(value string) {
	g.lock.Lock()
	delete(g.tokens, value)
	g.lock.Unlock()
}

// Len returns the number of tokens held, expired or not.
func (g *TokenGate) Len() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.tokens)
}

func (g *TokenGate) sweep(now time.Time) {
	for v, t := range g.tokens {
		if !now.Before(t.Expires) {
			delete(g.tokens, v)
		}
	}
}
