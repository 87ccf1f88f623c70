package wpa

import (
	"strconv"
	"strings"
)

// Verb is a wpa_supplicant control-interface command name.
type Verb string

// Supported verbs.
const (
	VerbStatus         Verb = "STATUS"
	VerbSignalPoll     Verb = "SIGNAL_POLL"
	VerbScan           Verb = "SCAN"
	VerbScanResults    Verb = "SCAN_RESULTS"
	VerbListNetworks   Verb = "LIST_NETWORKS"
	VerbAddNetwork     Verb = "ADD_NETWORK"
	VerbRemoveNetwork  Verb = "REMOVE_NETWORK"
	VerbSelectNetwork  Verb = "SELECT_NETWORK"
	VerbEnableNetwork  Verb = "ENABLE_NETWORK"
	VerbDisableNetwork Verb = "DISABLE_NETWORK"
	VerbSetNetwork     Verb = "SET_NETWORK"
	VerbAttach         Verb = "ATTACH"
	VerbDetach         Verb = "DETACH"
	VerbPing           Verb = "PING"
)

// Well-known reply tokens and row labels.
const (
	TokenOK   = "OK"
	TokenFail = "FAIL"
	TokenPong = "PONG"

	// LabelNetworkID is the LIST_NETWORKS column holding the profile id.
	LabelNetworkID = "network id"

	// ParamSSID and ParamPSK are SET_NETWORK parameter names.
	ParamSSID = "ssid"
	ParamPSK  = "psk"
)

// Command is one queued control-interface request.
type Command struct {
	Verb Verb
	Args []string

	// ReplyTo overrides the client's default reply sink for this command.
	ReplyTo chan<- Reply
}

// SendOption customises a command before it is queued.
type SendOption func(*Command)

// WithReplyTo routes the command's reply to ch instead of the default sink.
func WithReplyTo(ch chan<- Reply) SendOption {
	return func(c *Command) {
		c.ReplyTo = ch
	}
}

// NewCommand builds a command with the given options applied.
func NewCommand(verb Verb, args []string, opts ...SendOption) Command {
	cmd := Command{Verb: verb, Args: args}
	for _, opt := range opts {
		opt(&cmd)
	}
	return cmd
}

// Payload returns the datagram sent to the daemon: the verb followed by
// space-separated arguments.
func (c Command) Payload() string {
	if len(c.Args) == 0 {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + strings.Join(c.Args, " ")
}

// Reply is the parsed answer to a Command.
type Reply struct {
	Verb   Verb     `json:"command"`
	Args   []string `json:"args,omitempty"`
	Result Result   `json:"result"`
}

// Failed reports whether the daemon answered with the failure token, or the
// command could not be transmitted.
func (r Reply) Failed() bool {
	return r.Result.Failed()
}

// Notification is an unsolicited event line ("<3>CTRL-EVENT-...").
type Notification struct {
	Raw   string `json:"raw"`
	Level int    `json:"level"`
	Event string `json:"event"`
}

// ParseNotification splits an event line into its priority level and event name.
// Lines without a well-formed "<n>" prefix keep Level -1.
func ParseNotification(raw string) Notification {
	raw = strings.TrimRight(raw, " \t\r\n\x00")
	n := Notification{Raw: raw, Level: -1}

	rest := raw
	if strings.HasPrefix(raw, "<") {
		if end := strings.IndexByte(raw, '>'); end > 0 {
			if level, err := strconv.Atoi(raw[1:end]); err == nil {
				n.Level = level
			}
			rest = raw[end+1:]
		}
	}

	if i := strings.IndexByte(rest, ' '); i >= 0 {
		n.Event = rest[:i]
	} else {
		n.Event = rest
	}
	return n
}

// quote wraps a SET_NETWORK value in double quotes.
func quote(value string) string {
	return `"` + value + `"`
}
