package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsOnce(t *testing.T) {
	b := NewBreaker(nil, nil)
	assert.False(t, b.Open())

	b.Trip(errors.New("connection refused"))
	assert.True(t, b.Open())

	// There is no way back; a second trip is a no-op and Open stays true.
	b.Trip(errors.New("again"))
	assert.True(t, b.Open())
}

func TestBreakerConcurrentTrips(t *testing.T) {
	b := NewBreaker(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Trip(errors.New("boom"))
		}()
	}
	wg.Wait()
	assert.True(t, b.Open())
}

func TestTripIfConnectionClassifies(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		trips bool
	}{
		{"nil error", nil, false},
		{"plain error", errors.New("bad query syntax"), false},
		{"engine status error", fmt.Errorf("engine returned 400: parse failure"), false},
		{"wrapped conn error", &connError{err: errors.New("dial tcp: refused")}, true},
		{"deeply wrapped conn error", fmt.Errorf("index widgets: %w", &connError{err: errors.New("refused")}), true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"deadline", context.DeadlineExceeded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBreaker(nil, nil)
			assert.Equal(t, tt.trips, b.TripIfConnection(tt.err))
			assert.Equal(t, tt.trips, b.Open())
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("anything")))
	assert.True(t, IsConnectionError(&connError{err: errors.New("refused")}))
	assert.True(t, IsConnectionError(context.DeadlineExceeded))
}
