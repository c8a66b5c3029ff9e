package feed

import (
	"fmt"
	"sync"

	"RugShield/internal/oracle"
)

// Store holds the latest oracle readings delivered over NATS. It backs
// three of the engine's oracle interfaces; the engine validates each
// reading (staleness, exponent, score range) at use time, so the store
// only has to hand over the most recent data.
type Store struct {
	mu sync.RWMutex

	price    oracle.Price
	hasPrice bool

	risk        map[string]oracle.RiskMetrics
	defaultRisk oracle.RiskMetrics
	hasDefault  bool

	rugged map[string]bool
}

func NewStore() *Store {
	return &Store{
		risk:   make(map[string]oracle.RiskMetrics),
		rugged: make(map[string]bool),
	}
}

// SeedRisk sets the fallback metrics returned for tokens the feed has
// not covered yet.
func (s *Store) SeedRisk(m oracle.RiskMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultRisk = m
	s.hasDefault = true
}

// SetPrice replaces the latest reference price reading.
func (s *Store) SetPrice(p oracle.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = p
	s.hasPrice = true
}

// SetRiskMetrics replaces one token's risk metrics.
func (s *Store) SetRiskMetrics(token string, m oracle.RiskMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risk[token] = m
}

// SetRugged marks a token's rug status.
func (s *Store) SetRugged(token string, rugged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rugged[token] = rugged
}

// Price implements oracle.PriceOracle.
func (s *Store) Price() (oracle.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasPrice {
		return oracle.Price{}, fmt.Errorf("no price reading received: %w", oracle.ErrStalePrice)
	}
	return s.price, nil
}

// RiskMetrics implements oracle.RiskOracle.
func (s *Store) RiskMetrics(token string) (oracle.RiskMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.risk[token]; ok {
		return m, nil
	}
	if s.hasDefault {
		return s.defaultRisk, nil
	}
	return oracle.RiskMetrics{}, fmt.Errorf("no risk metrics for token %s", token)
}

// IsRugged implements oracle.RugStatusOracle. Unknown tokens are not
// rugged: a claim needs positive confirmation from the feed.
func (s *Store) IsRugged(token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rugged[token], nil
}
