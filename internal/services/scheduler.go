package services

import (
	"sync"
	"time"
)

// CooldownScheduler rate-limits per-account polls. The map is per process;
// duplicate fetches across instances are rendered harmless by the uniqueness
// contract on commission_transactions.
type CooldownScheduler struct {
	mu       sync.Mutex
	cooldown time.Duration
	warmup   int
	checked  map[string]time.Time
	now      func() time.Time
}

func NewCooldownScheduler(cooldown time.Duration, warmup int) *CooldownScheduler {
	return &CooldownScheduler{
		cooldown: cooldown,
		warmup:   warmup,
		checked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// ShouldCheck reports whether the account is eligible this cycle. The first
// warmup distinct accounts are always eligible.
func (s *CooldownScheduler) ShouldCheck(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.checked) < s.warmup {
		return true
	}
	last, seen := s.checked[accountID]
	if !seen {
		return true
	}
	return s.now().Sub(last) >= s.cooldown
}

func (s *CooldownScheduler) MarkChecked(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked[accountID] = s.now()
}
