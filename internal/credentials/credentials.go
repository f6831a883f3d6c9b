// Package credentials resolves the upstream API key from the environment or
// the parameter store without ever touching the model service.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"icp-wizard/internal/integrations/paramstore"
)

// ErrMissing is returned when no source could provide an API key.
var ErrMissing = errors.New("credentials: OPENAI_API_KEY is not set on the server")

// Source provides the API key used to authenticate to the upstream service.
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// Env reads the key from an environment variable on every call.
type Env struct {
	Name   string
	lookup func(string) (string, bool)
}

// NewEnv returns an Env source for the named variable.
func NewEnv(name string) *Env {
	return &Env{Name: name, lookup: os.LookupEnv}
}

func (e *Env) APIKey(_ context.Context) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(e.Name)
	if v = strings.TrimSpace(v); v == "" {
		return "", ErrMissing
	}
	return v, nil
}

// tokenPayload is the JSON shape optionally stored in the parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamStore reads the key from a SecureString parameter. The value may be
// either a raw key or a JSON object {"token": "..."}.
type ParamStore struct {
	getter paramstore.Getter
	name   string
}

// NewParamStore returns a source reading <prefix>/open-ai-token.
func NewParamStore(getter paramstore.Getter, prefix string) (*ParamStore, error) {
	if getter == nil {
		return nil, errors.New("credentials: paramstore getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("credentials: parameter prefix must not be empty")
	}
	return &ParamStore{getter: getter, name: prefix + "/open-ai-token"}, nil
}

func (p *ParamStore) APIKey(ctx context.Context) (string, error) {
	raw, err := p.getter.GetParameter(ctx, p.name)
	if err != nil {
		if errors.Is(err, paramstore.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrMissing, err)
		}
		return "", fmt.Errorf("credentials: fetch token from paramstore: %w", err)
	}
	return decodeToken(raw)
}

func decodeToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		if raw == "" {
			return "", ErrMissing
		}
		return raw, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("credentials: unmarshal paramstore token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", ErrMissing
	}
	return strings.TrimSpace(tp.Token), nil
}

// Chain tries each source in order and returns the first key found. Any error
// other than ErrMissing stops the search.
type Chain []Source

func (c Chain) APIKey(ctx context.Context) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		key, err := src.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrMissing) {
			return "", err
		}
	}
	return "", ErrMissing
}

// Cached memoizes a successful lookup of the wrapped source for ttl.
// Failures are not cached, so a key provisioned after startup is picked up
// on the next request. A ttl of zero keeps the key until Invalidate.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	key       string
	fetchedAt time.Time
}

func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{src: src, ttl: ttl, now: time.Now}
}

func (c *Cached) APIKey(ctx context.Context) (string, error) {
	c.mu.RLock()
	key, fresh := c.cachedLocked()
	c.mu.RUnlock()
	if fresh {
		return key, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if key, fresh := c.cachedLocked(); fresh {
		return key, nil
	}
	if c.src == nil {
		return "", ErrMissing
	}
	key, err := c.src.APIKey(ctx)
	if err != nil {
		return "", err
	}
	c.key = key
	c.fetchedAt = c.now()
	return key, nil
}

// Invalidate drops the cached key; the next call reads the source again.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = ""
	c.fetchedAt = time.Time{}
}

func (c *Cached) cachedLocked() (string, bool) {
	if c.key == "" {
		return "", false
	}
	if c.ttl > 0 && c.now().Sub(c.fetchedAt) >= c.ttl {
		return "", false
	}
	return c.key, true
}
