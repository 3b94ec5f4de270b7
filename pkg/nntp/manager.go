package nntp

import (
	"context"
	"sync"

	"nzbengine/pkg/apperrors"
	"nzbengine/pkg/config"
	"nzbengine/pkg/yenc"
)

// Manager fails over a single article fetch across an ordered list of
// provider pools (ascending priority), and offers decode-on-fetch
// convenience on top of Pool.
type Manager struct {
	mu    sync.RWMutex
	pools []*Pool
}

// NewManager builds pools for every enabled server, ordered by ascending
// priority. Start is non-blocking: pools dial connections lazily on first
// acquire, not here.
func NewManager(servers []config.NntpServerConfig) (*Manager, error) {
	m := &Manager{}
	pools, err := buildPools(servers)
	if err != nil {
		return nil, err
	}
	m.pools = pools
	return m, nil
}

func buildPools(servers []config.NntpServerConfig) ([]*Pool, error) {
	ordered := make([]config.NntpServerConfig, len(servers))
	copy(ordered, servers)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Priority < ordered[j-1].Priority; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	pools := make([]*Pool, 0, len(ordered))
	for _, s := range ordered {
		p, err := NewPool(s)
		if err != nil {
			for _, built := range pools {
				built.Close()
			}
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// GetArticle tries each provider pool in priority order, returning the first
// success. If every provider fails, the aggregate lists every attempt.
func (m *Manager) GetArticle(ctx context.Context, messageID string) ([]byte, error) {
	m.mu.RLock()
	pools := m.pools
	m.mu.RUnlock()

	var attempts []apperrors.ProviderAttempt
	for _, p := range pools {
		data, err := p.GetArticle(ctx, messageID)
		if err == nil {
			return data, nil
		}
		attempts = append(attempts, apperrors.ProviderAttempt{Provider: p.cfg.Name, Err: err})
	}
	return nil, &apperrors.ArticleNotFoundEverywhere{MessageID: messageID, Attempts: attempts}
}

// GetDecodedArticle fetches and yEnc-decodes an article body.
func (m *Manager) GetDecodedArticle(ctx context.Context, messageID string) (*yenc.Decoded, error) {
	body, err := m.GetArticle(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return yenc.Decode(body)
}

// GetDecodedArticleBytes is GetDecodedArticle trimmed to the decoded payload,
// satisfying mount.ArticleSource for stream construction.
func (m *Manager) GetDecodedArticleBytes(ctx context.Context, messageID string) ([]byte, error) {
	decoded, err := m.GetDecodedArticle(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return decoded.Data, nil
}

// ArticleExists short-circuits on the first provider that reports presence.
func (m *Manager) ArticleExists(ctx context.Context, messageID string) (bool, error) {
	m.mu.RLock()
	pools := m.pools
	m.mu.RUnlock()

	var lastErr error
	for _, p := range pools {
		ok, err := p.Exists(ctx, messageID)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

// Reload atomically swaps the provider list, closing old pools only after
// the new ones are built successfully.
func (m *Manager) Reload(servers []config.NntpServerConfig) error {
	newPools, err := buildPools(servers)
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.pools
	m.pools = newPools
	m.mu.Unlock()

	for _, p := range old {
		p.Close()
	}
	return nil
}

// Stats returns per-provider pool occupancy.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Stats())
	}
	return out
}

// Close shuts down every provider pool.
func (m *Manager) Close() {
	m.mu.RLock()
	pools := m.pools
	m.mu.RUnlock()
	for _, p := range pools {
		p.Close()
	}
}
