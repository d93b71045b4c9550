package fingerprint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is how long a cached signature stays valid. Regenerating weekly
// tolerates driver and hardware drift; the gateway's stored-signature rule
// absorbs any resulting change for identities that already exist.
const DefaultTTL = 7 * 24 * time.Hour

type cachedSignature struct {
	Signature   string    `json:"signature"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CachedGenerator wraps a Generator with a file-backed cache.
type CachedGenerator struct {
	generator *Generator
	path      string
	ttl       time.Duration

	now func() time.Time
}

func NewCached(generator *Generator, path string, ttl time.Duration) *CachedGenerator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedGenerator{
		generator: generator,
		path:      path,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Signature returns the cached value while it is fresh, regenerating and
// rewriting the cache otherwise. A broken cache file is treated as expired.
func (c *CachedGenerator) Signature() (string, error) {
	if cached, ok := c.load(); ok {
		return cached, nil
	}

	signature := c.generator.Generate()

	if err := c.store(signature); err != nil {
		return "", err
	}

	return signature, nil
}

// Invalidate discards the cached signature.
func (c *CachedGenerator) Invalidate() error {
	err := os.Remove(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *CachedGenerator) load() (string, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", false
	}

	var cached cachedSignature
	if err := json.Unmarshal(data, &cached); err != nil {
		return "", false
	}

	if cached.Signature == "" || c.now().Sub(cached.GeneratedAt) > c.ttl {
		return "", false
	}

	return cached.Signature, true
}

func (c *CachedGenerator) store(signature string) error {
	data, err := json.Marshal(cachedSignature{
		Signature:   signature,
		GeneratedAt: c.now(),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0o600)
}
