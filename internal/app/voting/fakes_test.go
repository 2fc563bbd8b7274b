package voting

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

var errBancoFora = errors.New("banco fora do ar")

// memoryLedger imita o ledger do Postgres, com ganchos para injetar falhas e atrasos.
type memoryLedger struct {
	mu     sync.Mutex
	votes  []domain.Vote
	totals map[string]int64

	failAppends    int
	commitThenFail bool
	failCounts     bool
	appendDelay    time.Duration
	appendAttempts []domain.VoteID
	blockUser      domain.UserID
	blockEntered   chan struct{}
	blockRelease   chan struct{}
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{totals: make(map[string]int64)}
}

func (l *memoryLedger) Append(_ context.Context, vote domain.Vote) error {
	if l.blockUser != "" && vote.UserID == l.blockUser {
		close(l.blockEntered)
		<-l.blockRelease
	}
	if l.appendDelay > 0 {
		time.Sleep(l.appendDelay)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendAttempts = append(l.appendAttempts, vote.ID)

	for _, v := range l.votes {
		if v.ID == vote.ID {
			return errors.New("chave duplicada")
		}
	}
	if l.failAppends > 0 {
		l.failAppends--
		if l.commitThenFail {
			l.store(vote)
		}
		return errBancoFora
	}
	l.store(vote)
	return nil
}

func (l *memoryLedger) store(vote domain.Vote) {
	l.votes = append(l.votes, vote)
	l.totals[vote.Country]++
}

func (l *memoryLedger) MostRecentVote(_ context.Context, userID domain.UserID) (domain.Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		last  domain.Vote
		found bool
	)
	for _, v := range l.votes {
		if v.UserID != userID {
			continue
		}
		if !found || !v.CastAt.Before(last.CastAt) {
			last, found = v, true
		}
	}
	if !found {
		return domain.Vote{}, domain.ErrNotFound
	}
	return last, nil
}

func (l *memoryLedger) AllVotes(_ context.Context) ([]domain.Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Vote, len(l.votes))
	copy(out, l.votes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CastAt.Before(out[j].CastAt) })
	return out, nil
}

func (l *memoryLedger) CountByCountry(_ context.Context) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCounts {
		return nil, errBancoFora
	}
	out := make(map[string]int64, len(l.totals))
	for k, v := range l.totals {
		out[k] = v
	}
	return out, nil
}

func (l *memoryLedger) Compact(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.votes[:0]
	var removed int64
	for _, v := range l.votes {
		if v.CastAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	l.votes = kept
	return removed, nil
}

func (l *memoryLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.votes)
}

type staticCatalog map[string]bool

func (c staticCatalog) Exists(country string) bool { return c[country] }

func (c staticCatalog) List() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls [][]domain.CountryTally
}

func (p *recordingPublisher) PublishTally(tallies []domain.CountryTally) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, tallies)
}

func (p *recordingPublisher) last() ([]domain.CountryTally, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil, 0
	}
	return p.calls[len(p.calls)-1], len(p.calls)
}

type staticClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *staticClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *staticClock) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}
