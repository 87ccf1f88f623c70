package wpa

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// replyFunc answers one request. ok=false means the daemon stays silent.
type replyFunc func(req string) (reply string, ok bool)

// fakeDaemon is an in-process stand-in for wpa_supplicant's control socket.
type fakeDaemon struct {
	t    *testing.T
	dir  string
	path string
	conn *net.UnixConn

	reply replyFunc

	// delay is the pause before each reply, in nanoseconds.
	delay atomic.Int64

	requests chan string
	mu       sync.Mutex
	peer     *net.UnixAddr
	received []string

	// overlaps counts requests that arrived before the previous one was answered.
	overlaps atomic.Int32

	wg sync.WaitGroup
}

// socketDir returns a short temporary directory; unix socket paths are
// limited to about 108 bytes and t.TempDir() paths can be long.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wpa")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newFakeDaemon(t *testing.T, reply replyFunc) *fakeDaemon {
	t.Helper()
	return newFakeDaemonIn(t, socketDir(t), reply)
}

// newFakeDaemonIn binds a daemon at dir/wlan0, e.g. to stand in for a
// restarted wpa_supplicant after the previous one was closed.
func newFakeDaemonIn(t *testing.T, dir string, reply replyFunc) *fakeDaemon {
	t.Helper()

	path := filepath.Join(dir, "wlan0")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)

	d := &fakeDaemon{
		t:        t,
		dir:      dir,
		path:     path,
		conn:     conn,
		reply:    reply,
		requests: make(chan string, 256),
	}

	d.wg.Add(2)
	go d.readLoop()
	go d.respondLoop()

	t.Cleanup(d.Close)
	return d
}

func (d *fakeDaemon) readLoop() {
	defer d.wg.Done()
	defer close(d.requests)

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := d.conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		req := string(buf[:n])

		d.mu.Lock()
		d.peer = addr
		d.received = append(d.received, req)
		d.mu.Unlock()

		d.requests <- req
	}
}

func (d *fakeDaemon) respondLoop() {
	defer d.wg.Done()

	for req := range d.requests {
		if delay := time.Duration(d.delay.Load()); delay > 0 {
			time.Sleep(delay)
		}

		reply, ok := d.reply(req)
		if !ok {
			continue
		}

		// Anything already waiting was sent before this reply existed.
		if len(d.requests) > 0 {
			d.overlaps.Add(1)
		}

		d.mu.Lock()
		peer := d.peer
		d.mu.Unlock()
		if peer == nil {
			continue
		}
		if _, err := d.conn.WriteToUnix([]byte(reply), peer); err != nil && !errors.Is(err, net.ErrClosed) {
			d.t.Logf("fake daemon write: %v", err)
		}
	}
}

// SetDelay makes every later reply wait for delay.
func (d *fakeDaemon) SetDelay(delay time.Duration) {
	d.delay.Store(int64(delay))
}

// Push sends an unsolicited line to the last client that spoke.
func (d *fakeDaemon) Push(line string) {
	d.t.Helper()
	d.mu.Lock()
	peer := d.peer
	d.mu.Unlock()
	require.NotNil(d.t, peer, "no client has sent a request yet")

	_, err := d.conn.WriteToUnix([]byte(line), peer)
	require.NoError(d.t, err)
}

// Received returns a copy of every request seen so far.
func (d *fakeDaemon) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Close stops the daemon and removes its socket.
func (d *fakeDaemon) Close() {
	d.conn.Close()
	d.wg.Wait()
	os.Remove(d.path)
}

// defaultReplies answers like a healthy daemon associated to "home".
func defaultReplies(req string) (string, bool) {
	switch req {
	case "PING":
		return "PONG\n", true
	case "STATUS":
		return "bssid=aa:bb:cc:dd:ee:ff\nssid=home\nwpa_state=COMPLETED\n", true
	case "SIGNAL_POLL":
		return "RSSI=-55\nLINKSPEED=72\nNOISE=9999\nFREQUENCY=2437\n", true
	case "LIST_NETWORKS":
		return "network id / ssid / bssid / flags\n0\thome\tany\t[CURRENT]\n", true
	case "ADD_NETWORK":
		return "0\n", true
	default:
		return "OK\n", true
	}
}
