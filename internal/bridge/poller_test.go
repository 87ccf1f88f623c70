package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wpaif/internal/wpa"
)

type sampleRecorder struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *sampleRecorder) ObserveSample(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *sampleRecorder) all() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

func startPoller(t *testing.T, cmdr *fakeCommander, interval time.Duration) (*Poller, *fakePublisher, *sampleRecorder) {
	t.Helper()

	pub := &fakePublisher{}
	p, err := NewPoller(PollerOptions{
		Client:    cmdr,
		Publisher: pub,
		Topic:     resultTopic,
		QoS:       2,
		Interval:  interval,
		Device:    "/var/run/wpa_supplicant/wlan0",
	})
	require.NoError(t, err)

	rec := &sampleRecorder{}
	p.AddObserver(rec)

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return p, pub, rec
}

func TestNewPoller_Validation(t *testing.T) {
	_, err := NewPoller(PollerOptions{Publisher: &fakePublisher{}, Topic: resultTopic})
	assert.Error(t, err)
	_, err = NewPoller(PollerOptions{Client: newFakeCommander(nil), Topic: resultTopic})
	assert.Error(t, err)
	_, err = NewPoller(PollerOptions{Client: newFakeCommander(nil), Publisher: &fakePublisher{}})
	assert.Error(t, err)

	p, err := NewPoller(PollerOptions{Client: newFakeCommander(nil), Publisher: &fakePublisher{}, Topic: resultTopic})
	require.NoError(t, err)
	assert.Equal(t, defaultStatusInterval, p.interval)
}

func TestPoller_AssociatedFollowsWithSignalPoll(t *testing.T) {
	cmdr := newFakeCommander(nil)
	p, pub, rec := startPoller(t, cmdr, time.Hour)

	msgs := pub.waitFor(t, resultTopic, 2)
	assert.JSONEq(t, `{"command":"STATUS","result":{"wpa_state":"COMPLETED","ssid":"home"}}`, string(msgs[0].payload))
	assert.JSONEq(t, `{"command":"SIGNAL_POLL","result":{"RSSI":"-55","LINKSPEED":"72"}}`, string(msgs[1].payload))
	assert.Equal(t, []string{"STATUS", "SIGNAL_POLL"}, cmdr.Verbs())

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	samples := rec.all()
	assert.Equal(t, wpa.VerbStatus, samples[0].Verb)
	assert.Equal(t, wpa.VerbSignalPoll, samples[1].Verb)
	assert.Equal(t, "/var/run/wpa_supplicant/wlan0", samples[1].Device)
	assert.Equal(t, "-55", samples[1].Values["RSSI"])

	snap := p.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, "home", snap.Status["ssid"])
	assert.Equal(t, "72", snap.Signal["LINKSPEED"])
	assert.False(t, snap.SignalAt.IsZero())
}

func TestPoller_NotAssociatedSkipsSignalPoll(t *testing.T) {
	cmdr := newFakeCommander(func(v wpa.Verb, _ []string) (wpa.Result, bool) {
		if v == wpa.VerbStatus {
			return wpa.Fields(map[string]string{FieldWPAState: "SCANNING"}), true
		}
		return wpa.Fields(map[string]string{"RSSI": "-1"}), true
	})
	p, pub, _ := startPoller(t, cmdr, 10*time.Millisecond)

	pub.waitFor(t, resultTopic, 3)
	assert.Zero(t, cmdr.Count(wpa.VerbSignalPoll))
	assert.False(t, p.Snapshot().Connected)
	assert.Nil(t, p.Snapshot().Signal)
}

func TestPoller_FailedRepliesAreNotPublished(t *testing.T) {
	cmdr := newFakeCommander(func(wpa.Verb, []string) (wpa.Result, bool) { return wpa.Fail(), true })
	p, pub, rec := startPoller(t, cmdr, 5*time.Millisecond)

	require.Eventually(t, func() bool { return cmdr.Count(wpa.VerbStatus) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, pub.On(resultTopic))
	assert.Empty(t, rec.all())
	assert.Nil(t, p.Snapshot().Status)
}

func TestPoller_TicksUnconditionally(t *testing.T) {
	cmdr := newFakeCommander(func(wpa.Verb, []string) (wpa.Result, bool) { return wpa.Result{}, false })
	startPoller(t, cmdr, 5*time.Millisecond)

	require.Eventually(t, func() bool { return cmdr.Count(wpa.VerbStatus) >= 4 }, time.Second, 5*time.Millisecond,
		"status is queried every tick even without replies")
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	p, _, _ := startPoller(t, newFakeCommander(nil), time.Hour)
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)
	p.Stop()
	p.Stop()
}
