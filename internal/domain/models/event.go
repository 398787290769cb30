package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChannelType names a logical event stream on the bus.
type ChannelType string

const (
	ChannelSignal   ChannelType = "signals"
	ChannelDecision ChannelType = "decisions"
	ChannelOutcome  ChannelType = "outcomes"
	ChannelLog      ChannelType = "logs"
)

// EventTimeFormat is the wire timestamp layout (ISO-8601 UTC).
const EventTimeFormat = "2006-01-02T15:04:05.000000Z"

// Event is the immutable envelope appended to a channel's durable log.
// One event per line, JSON-encoded:
//
//	{"id":"evt:<channel>:<hex12>","type":"<channel>","timestamp":"<ISO8601Z>",
//	 "payload":{...},"checksum":"sha256:<16-hex>","source":"<string>"}
//
// The checksum covers {type, timestamp, payload} in canonical (sorted-key)
// JSON, so a replayed line can be verified without trusting the rest of
// the envelope. Events are never mutated after publish.
type Event struct {
	ID        string      `json:"id"`
	Type      ChannelType `json:"type"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
	Checksum  string      `json:"checksum"`
	Source    string      `json:"source"`
}

// NewEvent builds a sealed event for a channel. The payload is normalized
// through JSON so that map ordering, struct tags and nested types all
// reduce to the same canonical form the checksum is computed over.
func NewEvent(channel ChannelType, payload interface{}, source string) (*Event, error) {
	canon, err := CanonicalValue(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	ts := time.Now().UTC().Format(EventTimeFormat)
	sum, err := eventChecksum(channel, ts, canon)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}

	return &Event{
		ID:        fmt.Sprintf("evt:%s:%s", channel, randomHex(12)),
		Type:      channel,
		Timestamp: ts,
		Payload:   canon,
		Checksum:  sum,
		Source:    source,
	}, nil
}

// IsValid recomputes the checksum and compares it to the sealed one.
func (e *Event) IsValid() bool {
	sum, err := eventChecksum(e.Type, e.Timestamp, e.Payload)
	if err != nil {
		return false
	}
	return sum == e.Checksum
}

// Time parses the event timestamp. Zero time on malformed input.
func (e *Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PayloadMap returns the payload as an object, or nil when it is not one.
func (e *Event) PayloadMap() map[string]interface{} {
	m, _ := e.Payload.(map[string]interface{})
	return m
}

// CanonicalValue round-trips v through JSON so that any struct or map
// collapses into plain maps/slices/primitives. encoding/json emits map
// keys sorted, which makes the re-marshaled form canonical.
func CanonicalValue(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChecksumOf hashes v in canonical JSON form and returns the truncated
// digest in "sha256:<16-hex>" form.
func ChecksumOf(v interface{}) (string, error) {
	canon, err := CanonicalValue(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])[:16], nil
}

func eventChecksum(channel ChannelType, ts string, payload interface{}) (string, error) {
	return ChecksumOf(map[string]interface{}{
		"type":      string(channel),
		"timestamp": ts,
		"payload":   payload,
	})
}

func randomHex(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
