package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

var testPolicy = Policy{MaxAttempts: 3, Window: time.Minute}

type MemoryLimiterSuite struct {
	suite.Suite
	now     time.Time
	limiter *MemoryLimiter
	ctx     context.Context
}

func TestMemoryLimiterSuite(t *testing.T) {
	suite.Run(t, new(MemoryLimiterSuite))
}

func (s *MemoryLimiterSuite) SetupTest() {
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.limiter = NewMemoryLimiter(100, WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *MemoryLimiterSuite) TearDownTest() {
	s.Require().NoError(s.limiter.Close())
}

func (s *MemoryLimiterSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *MemoryLimiterSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.limiter.Allow(s.ctx, "actor:a", testPolicy)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2, result.Remaining)
	})

	s.Run("requests up to limit allowed", func() {
		var result Result
		var err error
		for range testPolicy.MaxAttempts {
			result, err = s.limiter.Allow(s.ctx, "actor:b", testPolicy)
			s.Require().NoError(err)
		}
		s.True(result.Allowed)
		s.Equal(0, result.Remaining)
	})

	s.Run("request over limit rejected with retry-after", func() {
		for range testPolicy.MaxAttempts {
			_, err := s.limiter.Allow(s.ctx, "actor:c", testPolicy)
			s.Require().NoError(err)
		}
		result, err := s.limiter.Allow(s.ctx, "actor:c", testPolicy)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(time.Minute, result.RetryAfter)
	})
}

func (s *MemoryLimiterSuite) TestWindowExpiryResets() {
	for range testPolicy.MaxAttempts + 1 {
		_, err := s.limiter.Allow(s.ctx, "actor:a", testPolicy)
		s.Require().NoError(err)
	}

	s.advance(time.Minute)

	result, err := s.limiter.Allow(s.ctx, "actor:a", testPolicy)
	s.Require().NoError(err)
	s.True(result.Allowed, "a fresh window starts once the old one expires")
	s.Equal(2, result.Remaining)
}

func (s *MemoryLimiterSuite) TestCheckDoesNotConsume() {
	for range 10 {
		result, err := s.limiter.Check(s.ctx, "actor:a", testPolicy)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}

	s.Require().NoError(s.limiter.Increment(s.ctx, "actor:a", testPolicy))
	result, err := s.limiter.Check(s.ctx, "actor:a", testPolicy)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(2, result.Remaining)
}

func (s *MemoryLimiterSuite) TestCheckRejectsAtLimit() {
	for range testPolicy.MaxAttempts {
		s.Require().NoError(s.limiter.Increment(s.ctx, "actor:a", testPolicy))
	}

	result, err := s.limiter.Check(s.ctx, "actor:a", testPolicy)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(time.Minute, result.RetryAfter)
}

func (s *MemoryLimiterSuite) TestEvictionBound() {
	limiter := NewMemoryLimiter(10, WithClock(func() time.Time { return s.now }))
	defer limiter.Close()

	for i := range 25 {
		_, err := limiter.Allow(s.ctx, fmt.Sprintf("actor:%d", i), testPolicy)
		s.Require().NoError(err)
	}
	s.Equal(10, limiter.Len(), "distinct keys never exceed the configured bound")

	// The oldest keys were evicted, so counting starts over for them.
	result, err := limiter.Allow(s.ctx, "actor:0", testPolicy)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(2, result.Remaining)
}

func (s *MemoryLimiterSuite) TestEvictExpired() {
	for i := range 5 {
		_, err := s.limiter.Allow(s.ctx, fmt.Sprintf("actor:%d", i), testPolicy)
		s.Require().NoError(err)
	}
	s.Equal(5, s.limiter.Len())

	s.advance(2 * time.Minute)
	s.limiter.evictExpired()
	s.Equal(0, s.limiter.Len())
}

func (s *MemoryLimiterSuite) TestConcurrentIncrements() {
	const goroutines = 50
	var wg sync.WaitGroup
	allowed := make(chan struct{}, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.limiter.Allow(s.ctx, "actor:shared", testPolicy)
			if err == nil && result.Allowed {
				allowed <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(allowed)

	s.Len(allowed, testPolicy.MaxAttempts, "exactly the window limit is admitted under contention")
}

func (s *MemoryLimiterSuite) TestActorKey() {
	s.Equal("actor:u1|ip:10.0.0.1", ActorKey("u1", "10.0.0.1"))
	s.Equal("actor:u1", ActorKey("u1", ""))
}
