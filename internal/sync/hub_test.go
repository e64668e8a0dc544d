package sync

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed bool
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestPublishRoutesByUser(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice, bob := &fakeConn{}, &fakeConn{}
	hub.add(alice, "alice")
	hub.add(bob, "bob")

	hub.Publish(NewEvent(EventStatusAuto, "alice", map[string]int{"updated_count": 1}))
	hub.Publish(NewEvent(EventCatalogRefreshed, "", map[string]int{"updated": 3}))

	require.Len(t, alice.msgs, 2)
	require.Len(t, bob.msgs, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(bob.msgs[0], &ev))
	require.Equal(t, EventCatalogRefreshed, ev.Type)
}

func TestPublishDropsBrokenClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ok, broken := &fakeConn{}, &fakeConn{fail: true}
	hub.add(ok, "u1")
	hub.add(broken, "u2")

	hub.Publish(NewEvent(EventCatalogRefreshed, "", nil))

	require.True(t, broken.closed)
	require.Equal(t, Stats{WSClients: 1, Users: 1}, hub.Stats())
}

type stalledConn struct {
	fakeConn
	entered chan struct{}
	release chan struct{}
}

func (s *stalledConn) WriteMessage(typ int, data []byte) error {
	close(s.entered)
	<-s.release
	return s.fakeConn.WriteMessage(typ, data)
}

func TestSlowSocketDoesNotBlockHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &stalledConn{entered: make(chan struct{}), release: make(chan struct{})}
	hub.add(slow, "slow")

	published := make(chan struct{})
	go func() {
		hub.Publish(NewEvent(EventStatusAuto, "slow", nil))
		close(published)
	}()
	<-slow.entered

	done := make(chan struct{})
	go func() {
		hub.add(&fakeConn{}, "other")
		_ = hub.Stats()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub registry blocked by an in-flight socket write")
	}
	require.Equal(t, Stats{WSClients: 2, Users: 2}, hub.Stats())

	close(slow.release)
	<-published
	require.Len(t, slow.msgs, 1)
}
