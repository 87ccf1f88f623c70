package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wpaif/internal/wpa"
)

// call is one command seen by fakeCommander.
type call struct {
	verb wpa.Verb
	args []string
	at   time.Time
}

// answerFunc returns the daemon's result for a command. ok=false means no reply.
type answerFunc func(verb wpa.Verb, args []string) (result wpa.Result, ok bool)

// fakeCommander answers commands synchronously through their reply channel.
type fakeCommander struct {
	mu     sync.Mutex
	calls  []call
	answer answerFunc

	// noise is delivered ahead of the real reply for the given verb.
	noise map[wpa.Verb]wpa.Reply
}

func newFakeCommander(answer answerFunc) *fakeCommander {
	if answer == nil {
		answer = healthyDaemon(nil)
	}
	return &fakeCommander{answer: answer, noise: map[wpa.Verb]wpa.Reply{}}
}

// healthyDaemon answers like wpa_supplicant holding the given network ids.
func healthyDaemon(ids []string) answerFunc {
	return func(verb wpa.Verb, _ []string) (wpa.Result, bool) {
		switch verb {
		case wpa.VerbListNetworks:
			rows := make([]wpa.Row, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, wpa.Row{{Label: wpa.LabelNetworkID, Value: id}, {Label: "ssid", Value: "net" + id}})
			}
			return wpa.Rows(rows), true
		case wpa.VerbAddNetwork:
			return wpa.Text("0"), true
		case wpa.VerbScanResults:
			return wpa.Rows([]wpa.Row{{{Label: "bssid", Value: "aa:bb:cc:dd:ee:ff"}, {Label: "ssid", Value: "home"}}}), true
		case wpa.VerbStatus:
			return wpa.Fields(map[string]string{FieldWPAState: StateCompleted, "ssid": "home"}), true
		case wpa.VerbSignalPoll:
			return wpa.Fields(map[string]string{"RSSI": "-55", "LINKSPEED": "72"}), true
		default:
			return wpa.Text(wpa.TokenOK), true
		}
	}
}

func (f *fakeCommander) do(verb wpa.Verb, args []string, opts []wpa.SendOption) error {
	cmd := wpa.NewCommand(verb, args, opts...)

	f.mu.Lock()
	f.calls = append(f.calls, call{verb: verb, args: args, at: time.Now()})
	noise, hasNoise := f.noise[verb]
	f.mu.Unlock()

	if cmd.ReplyTo == nil {
		return nil
	}
	if hasNoise {
		cmd.ReplyTo <- noise
	}
	if result, ok := f.answer(verb, args); ok {
		cmd.ReplyTo <- wpa.Reply{Verb: verb, Args: args, Result: result}
	}
	return nil
}

func (f *fakeCommander) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// Verbs returns each call rendered as "VERB arg arg".
func (f *fakeCommander) Verbs() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, wpa.NewCommand(c.verb, c.args).Payload())
	}
	return out
}

func (f *fakeCommander) Count(verb wpa.Verb) int {
	n := 0
	for _, c := range f.Calls() {
		if c.verb == verb {
			n++
		}
	}
	return n
}

func (f *fakeCommander) Status(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbStatus, nil, opts)
}

func (f *fakeCommander) SignalPoll(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbSignalPoll, nil, opts)
}

func (f *fakeCommander) Scan(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbScan, nil, opts)
}

func (f *fakeCommander) ScanResults(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbScanResults, nil, opts)
}

func (f *fakeCommander) ListNetworks(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbListNetworks, nil, opts)
}

func (f *fakeCommander) AddNetwork(opts ...wpa.SendOption) error {
	return f.do(wpa.VerbAddNetwork, nil, opts)
}

func (f *fakeCommander) RemoveNetwork(id string, opts ...wpa.SendOption) error {
	return f.do(wpa.VerbRemoveNetwork, []string{id}, opts)
}

func (f *fakeCommander) SelectNetwork(id string, opts ...wpa.SendOption) error {
	return f.do(wpa.VerbSelectNetwork, []string{id}, opts)
}

func (f *fakeCommander) EnableNetwork(id string, opts ...wpa.SendOption) error {
	return f.do(wpa.VerbEnableNetwork, []string{id}, opts)
}

func (f *fakeCommander) DisableNetwork(id string, opts ...wpa.SendOption) error {
	return f.do(wpa.VerbDisableNetwork, []string{id}, opts)
}

func (f *fakeCommander) SetNetwork(id, param, value string, opts ...wpa.SendOption) error {
	return f.do(wpa.VerbSetNetwork, []string{id, param, value}, opts)
}

// published is one message seen by fakePublisher.
type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu           sync.Mutex
	messages     []published
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, append([]byte(nil), payload...), qos, retained})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disconnected
}

func (p *fakePublisher) On(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// waitFor blocks until at least n messages were published on topic.
func (p *fakePublisher) waitFor(t *testing.T, topic string, n int) []published {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.On(topic)) >= n },
		2*time.Second, 5*time.Millisecond, "waiting for %d messages on %s", n, topic)
	return p.On(topic)
}

// decoded unmarshals a published payload into a generic map.
func decoded(t *testing.T, m published) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(m.payload, &out))
	return out
}
