package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimiter_ChannelCapRejectsBeyondLimit(t *testing.T) {
	l := NewConnectionLimiter(ConnectionLimiterConfig{Enabled: true, MaxClientsPerChannel: 2, MaxClientsPerProxy: 10})

	h1, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)
	h2, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)

	_, err = l.Register("proxy-a", "chan-1")
	require.Error(t, err)
	var capErr *CapExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, CapChannel, capErr.Kind)

	assert.Equal(t, 2, l.ChannelClientCount("proxy-a", "chan-1"))
	assert.Equal(t, 2, l.ProxyClientCount("proxy-a"))

	h1.Release()
	h2.Release()
	assert.Equal(t, 0, l.ChannelClientCount("proxy-a", "chan-1"))
	assert.Equal(t, 0, l.ProxyClientCount("proxy-a"))
}

func TestConnectionLimiter_ProxyCapRejectsAcrossChannels(t *testing.T) {
	l := NewConnectionLimiter(ConnectionLimiterConfig{Enabled: true, MaxClientsPerChannel: 10, MaxClientsPerProxy: 1})

	h1, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)

	_, err = l.Register("proxy-a", "chan-2")
	require.Error(t, err)
	var capErr *CapExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, CapProxy, capErr.Kind)

	h1.Release()

	h2, err := l.Register("proxy-a", "chan-2")
	require.NoError(t, err)
	h2.Release()
}

func TestConnectionLimiter_ReleaseIsIdempotent(t *testing.T) {
	l := NewConnectionLimiter(ConnectionLimiterConfig{Enabled: true, MaxClientsPerChannel: 1, MaxClientsPerProxy: 1})

	h, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)

	h.Release()
	h.Release()
	h.Release()

	assert.Equal(t, 0, l.ChannelClientCount("proxy-a", "chan-1"))
}

func TestConnectionLimiter_DisabledNeverRejects(t *testing.T) {
	l := NewConnectionLimiter(ConnectionLimiterConfig{Enabled: false, MaxClientsPerChannel: 1, MaxClientsPerProxy: 1})

	h1, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)
	h2, err := l.Register("proxy-a", "chan-1")
	require.NoError(t, err)

	assert.Equal(t, 0, l.ChannelClientCount("proxy-a", "chan-1"))

	h1.Release()
	h2.Release()
}

func TestConnectionLimiter_ConcurrentRegisterRespectsCap(t *testing.T) {
	l := NewConnectionLimiter(ConnectionLimiterConfig{Enabled: true, MaxClientsPerChannel: 5, MaxClientsPerProxy: 5})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
		handles  []*ConnectionHandle
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Register("proxy-a", "chan-1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
			} else {
				accepted++
				handles = append(handles, h)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 15, rejected)

	for _, h := range handles {
		h.Release()
	}
}
