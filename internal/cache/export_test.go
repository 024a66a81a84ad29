package cache

import "time"

// Corrupt flips a byte of the stored checksum at key.
func (c *Cache) Corrupt(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.sum[0] ^= 0xff
	}
}

// ForgeIdentity replaces the identity bytes at key, simulating a fingerprint collision.
func (c *Cache) ForgeIdentity(key string, ident []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.ident = ident
	}
}

// SetClock overrides the cache's time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
