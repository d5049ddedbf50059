package realtime_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/presence"
	"github.com/trezcool/darasa/core/realtime"
	tu "github.com/trezcool/darasa/tests"
)

type presenceLog struct {
	mu      sync.Mutex
	changes []string
}

func (l *presenceLog) listen(userID string, online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if online {
		l.changes = append(l.changes, "+"+userID)
	} else {
		l.changes = append(l.changes, "-"+userID)
	}
}

func (l *presenceLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.changes...)
}

func newHub(reg prometheus.Registerer) *realtime.Hub {
	return realtime.NewHub(presence.NewTracker(4), tu.NewLogger(), reg)
}

func TestHub_presenceTransitions(t *testing.T) {
	hub := newHub(nil)
	plog := new(presenceLog)
	hub.OnPresenceChange(plog.listen)

	tab1, tab2 := tu.NewConn("u1"), tu.NewConn("u1")

	assert.True(t, hub.Register(tab1), "first tab brings the user online")
	hub.Flush()
	assert.False(t, hub.Register(tab2))
	assert.False(t, hub.Register(tab2), "registering twice is a no-op")
	assert.True(t, hub.IsOnline("u1"))
	assert.Equal(t, []string{"u1"}, hub.OnlineUsers())

	assert.False(t, hub.Unregister(tab1))
	assert.True(t, hub.IsOnline("u1"))
	assert.True(t, hub.Unregister(tab2), "last tab takes the user offline")
	assert.False(t, hub.Unregister(tab2), "unregistering twice is a no-op")
	assert.False(t, hub.IsOnline("u1"))

	hub.Flush()
	assert.Equal(t, []string{"+u1", "-u1"}, plog.get())
}

func TestHub_presenceSettlesOnCurrentState(t *testing.T) {
	hub := newHub(nil)
	plog := new(presenceLog)
	// a slow listener (eg. looking up chat partners) must not let a stale edge win
	hub.OnPresenceChange(func(userID string, online bool) {
		if !online {
			time.Sleep(50 * time.Millisecond)
		}
	})
	hub.OnPresenceChange(plog.listen)

	tabA, tabB := tu.NewConn("u1"), tu.NewConn("u1")
	hub.Register(tabA)
	hub.Flush()

	// tab A closes while tab B opens; the offline announcement is still in flight
	hub.Unregister(tabA)
	hub.Register(tabB)
	hub.Flush()

	require.True(t, hub.IsOnline("u1"))
	changes := plog.get()
	require.NotEmpty(t, changes)
	assert.Equal(t, "+u1", changes[len(changes)-1], "partners end up seeing the user online: %v", changes)
}

func TestHub_presenceStorm(t *testing.T) {
	hub := newHub(nil)
	plog := new(presenceLog)
	hub.OnPresenceChange(func(string, bool) { time.Sleep(time.Millisecond) })
	hub.OnPresenceChange(plog.listen)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				conn := tu.NewConn("u1")
				hub.Register(conn)
				if i%2 == 0 || j < 9 {
					hub.Unregister(conn)
				}
			}
		}(i)
	}
	wg.Wait()
	hub.Flush()

	changes := plog.get()
	require.NotEmpty(t, changes)
	for i := 1; i < len(changes); i++ {
		assert.NotEqual(t, changes[i-1], changes[i], "announcements alternate: %v", changes)
	}
	assert.True(t, hub.IsOnline("u1"))
	assert.Equal(t, "+u1", changes[len(changes)-1])
}

func TestHub_PushToUser(t *testing.T) {
	hub := newHub(nil)
	tab1, tab2, other := tu.NewConn("u1"), tu.NewConn("u1"), tu.NewConn("u2")
	hub.Register(tab1)
	hub.Register(tab2)
	hub.Register(other)

	ev := realtime.NewEvent(realtime.EventChatMessage, "hello")
	assert.Equal(t, 2, hub.PushToUser("u1", ev))
	assert.Len(t, tab1.Events(), 1, "each tab gets the event exactly once")
	assert.Len(t, tab2.Events(), 1)
	assert.Empty(t, other.Events())

	assert.Zero(t, hub.PushToUser("nobody", ev), "offline user")
}

func TestHub_PushToUser_failedConnDoesNotBlockOthers(t *testing.T) {
	hub := newHub(nil)
	bad, good := tu.NewConn("u1"), tu.NewConn("u1")
	bad.FailWith(errors.New("slow consumer"))
	hub.Register(bad)
	hub.Register(good)

	assert.Equal(t, 1, hub.PushToUser("u1", realtime.NewEvent(realtime.EventPong, nil)))
	assert.Len(t, good.Events(), 1)
	assert.Empty(t, bad.Events())
}

func TestHub_PushToUsers(t *testing.T) {
	hub := newHub(nil)
	c1, c2 := tu.NewConn("u1"), tu.NewConn("u2")
	hub.Register(c1)
	hub.Register(c2)

	assert.Equal(t, 2, hub.PushToUsers([]string{"u1", "u2", "u3"}, realtime.NewEvent(realtime.EventPong, nil)))
}

func TestHub_concurrentPushAndDisconnect(t *testing.T) {
	hub := newHub(nil)
	conns := make([]*tu.Conn, 50)
	for i := range conns {
		conns[i] = tu.NewConn("u1")
		hub.Register(conns[i])
	}

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(2)
		go func(c *tu.Conn) {
			defer wg.Done()
			_ = c.Close()
			hub.Unregister(c)
		}(conns[i])
		go func() {
			defer wg.Done()
			hub.PushToUser("u1", realtime.NewEvent(realtime.EventPong, nil))
		}()
	}
	wg.Wait()

	assert.False(t, hub.IsOnline("u1"))
	assert.Empty(t, hub.OnlineUsers())
}

func TestHub_CloseAll(t *testing.T) {
	hub := newHub(nil)
	plog := new(presenceLog)
	hub.OnPresenceChange(plog.listen)
	c1, c2 := tu.NewConn("u1"), tu.NewConn("u2")
	hub.Register(c1)
	hub.Register(c2)
	hub.Flush()

	hub.CloseAll()
	assert.True(t, c1.Closed())
	assert.True(t, c2.Closed())
	assert.Empty(t, hub.OnlineUsers())
	assert.ElementsMatch(t, []string{"+u1", "+u2"}, plog.get(), "nobody is left to tell on shutdown")
}

func TestHub_metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := newHub(reg)
	c1, c2 := tu.NewConn("u1"), tu.NewConn("u1")
	c2.FailWith(errors.New("boom"))
	hub.Register(c1)
	hub.Register(c2)
	hub.PushToUser("u1", realtime.NewEvent(realtime.EventPong, nil))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "darasa_realtime_connections")
	assert.Contains(t, names, "darasa_realtime_online_users")
	assert.Contains(t, names, "darasa_realtime_pushes_total")

	cnt, err := testutil.GatherAndCount(reg, "darasa_realtime_pushes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, cnt, "delivered & failed series")
	hub.Unregister(c1)
	hub.Unregister(c2)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP darasa_realtime_online_users Number of users holding at least one open connection.
# TYPE darasa_realtime_online_users gauge
darasa_realtime_online_users 0
`), "darasa_realtime_online_users"))
}

func TestHub_slowListenerDoesNotBlockConnects(t *testing.T) {
	hub := newHub(nil)
	release := make(chan struct{})
	hub.OnPresenceChange(func(string, bool) { <-release })

	start := time.Now()
	for i := 0; i < 5; i++ {
		hub.Register(tu.NewConn(fmt.Sprintf("u%d", i)))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Len(t, hub.OnlineUsers(), 5)

	close(release)
	hub.Flush()
}
