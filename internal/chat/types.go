// Package chat defines the chat event records stored in the message log and
// the message view the indexer consumes.
package chat

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// Action names the kind of chat event that was logged.
type Action string

const (
	ActionAction    Action = "action"
	ActionJoin      Action = "join"
	ActionKick      Action = "kick"
	ActionMode      Action = "mode"
	ActionNick      Action = "nick"
	ActionPart      Action = "part"
	ActionPubMsg    Action = "pubmsg"
	ActionPubNotice Action = "pubnotice"
	ActionQuit      Action = "quit"
	ActionTopic     Action = "topic"
)

var knownActions = map[Action]struct{}{
	ActionAction: {}, ActionJoin: {}, ActionKick: {}, ActionMode: {}, ActionNick: {},
	ActionPart: {}, ActionPubMsg: {}, ActionPubNotice: {}, ActionQuit: {}, ActionTopic: {},
}

// Valid reports whether a is one of the logged event kinds.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Event is the payload stored per message id in channel:{channel}:messages.
// Message is nil for events that carry no user text (joins, parts, ...).
type Event struct {
	Host    string            `json:"host"`
	Source  string            `json:"source"`
	Time    float64           `json:"time"`
	Action  Action            `json:"action"`
	Message *string           `json:"message,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// Text returns the event's message text and whether it has one.
func (e Event) Text() (string, bool) {
	if e.Message == nil {
		return "", false
	}
	return *e.Message, true
}

// CreatedAt converts the fractional unix timestamp to a time.Time.
func (e Event) CreatedAt() time.Time {
	sec := int64(e.Time)
	nsec := int64((e.Time - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Message is one logged event with text, addressed by channel and id.
type Message struct {
	Channel   string
	ID        string
	Body      string
	CreatedAt time.Time
}

// IsChannel reports whether name looks like a chat channel rather than a nick.
func IsChannel(name string) bool {
	return strings.HasPrefix(name, "#")
}

// CompareIDs orders message ids numerically, falling back to string order
// when either id is not an integer.
func CompareIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return cmp.Compare(x, y)
}
