package proxy

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jwk is a single RSA entry from Cognito's JWKS response.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksResponse struct {
	Keys []jwk `json:"keys"`
}

// cachedKey is what's persisted to disk: the raw JWK components rather than
// a parsed *rsa.PublicKey, since the latter doesn't round-trip through JSON.
type cachedKey struct {
	N string `json:"n"`
	E string `json:"e"`
}

type onDiskCache struct {
	FetchedAt time.Time            `json:"fetched_at"`
	Keys      map[string]cachedKey `json:"keys"`
}

// JWKSCache fetches and caches a Cognito user pool's signing keys, persisting
// them to disk so a restart doesn't need a network round trip before the
// first request can be verified.
type JWKSCache struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSCache constructs a cache and loads whatever was last persisted to
// cfg.JWKSCachePath, if present. The loaded keys are used until they expire
// or a kid miss forces a refresh.
func NewJWKSCache(cfg Config) *JWKSCache {
	c := &JWKSCache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
	c.loadFromDisk()
	return c
}

func (c *JWKSCache) ttl() time.Duration {
	if c.cfg.JWKSCacheTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.cfg.JWKSCacheTTL) * time.Second
}

// Prefetch forces an initial fetch, used at startup so the first inbound
// request doesn't pay the JWKS round trip.
func (c *JWKSCache) Prefetch() error {
	return c.refresh()
}

// Key returns the RSA public key for kid, refreshing the cache (from disk
// cache validity, then network) if necessary.
func (c *JWKSCache) Key(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if fresh && ok {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("jwks: key id %q not found", kid)
	}
	return key, nil
}

func (c *JWKSCache) refresh() error {
	resp, err := c.httpClient.Get(c.cfg.JWKSURL())
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var parsed jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	onDisk := make(map[string]cachedKey)
	for _, k := range parsed.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromComponents(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
		onDisk[k.Kid] = cachedKey{N: k.N, E: k.E}
	}
	if len(keys) == 0 {
		return fmt.Errorf("fetch jwks: no usable RSA keys")
	}

	now := time.Now()
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = now
	c.mu.Unlock()

	c.saveToDisk(onDiskCache{FetchedAt: now, Keys: onDisk})
	return nil
}

func rsaPublicKeyFromComponents(nb64, eb64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nb64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eb64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// saveToDisk atomically persists the cache: write to a .tmp file, then
// rename over the target, so a crash mid-write never leaves a corrupt cache.
func (c *JWKSCache) saveToDisk(cache onDiskCache) {
	if c.cfg.JWKSCachePath == "" {
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.JWKSCachePath), 0o755); err != nil {
		return
	}
	tmp := c.cfg.JWKSCachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, c.cfg.JWKSCachePath)
}

func (c *JWKSCache) loadFromDisk() {
	if c.cfg.JWKSCachePath == "" {
		return
	}
	data, err := os.ReadFile(c.cfg.JWKSCachePath)
	if err != nil {
		return
	}
	var cache onDiskCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return
	}
	keys := make(map[string]*rsa.PublicKey, len(cache.Keys))
	for kid, k := range cache.Keys {
		pub, err := rsaPublicKeyFromComponents(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = cache.FetchedAt
	c.mu.Unlock()
}
