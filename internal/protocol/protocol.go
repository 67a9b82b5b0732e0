// Package protocol defines the JSON messages exchanged between the
// collaboration server and its clients. Every frame is an Envelope whose
// Type selects the shape of Data.
package protocol

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	TypeDiagramState    Type = "diagram_state"
	TypeDiagramUpdate   Type = "diagram_update"
	TypeElementLock     Type = "element_lock"
	TypeElementUnlock   Type = "element_unlock"
	TypeElementLocked   Type = "element_locked"
	TypeElementUnlocked Type = "element_unlocked"
	TypeUserList        Type = "user_list"
	TypeUserJoined      Type = "user_joined"
	TypeUserLeft        Type = "user_left"
	TypeLocksUpdate     Type = "locks_update"
	TypePing            Type = "ping"
	TypePong            Type = "pong"
)

// Envelope is the wire frame. User carries the sender's display name on
// server-relayed diagram updates and is empty everywhere else.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	User string          `json:"user,omitempty"`
}

// LockInfo identifies the holder of one element lock.
type LockInfo struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// DiagramState is sent once to a client that just joined.
type DiagramState struct {
	XML        string              `json:"xml"`
	Locks      map[string]LockInfo `json:"locks"`
	MyUserName string              `json:"my_user_name"`
}

// DiagramUpdate carries a full snapshot. Outbound from a client only XML is
// set; when relayed by the server the current lock table rides along.
type DiagramUpdate struct {
	XML   string              `json:"xml"`
	Locks map[string]LockInfo `json:"locks,omitempty"`
}

type ElementLock struct {
	ElementID string `json:"element_id"`
}

type ElementLocked struct {
	ElementID string `json:"element_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
}

type ElementUnlocked struct {
	ElementID string `json:"element_id"`
}

type UserList struct {
	Users []string `json:"users"`
}

// UserEvent announces a single user joining or leaving.
type UserEvent struct {
	UserName string `json:"user_name"`
}

type LocksUpdate struct {
	Locks map[string]LockInfo `json:"locks"`
}

// Encode marshals a payload into a complete wire frame.
func Encode(t Type, data any) ([]byte, error) {
	return EncodeFrom(t, data, "")
}

// EncodeFrom is Encode with the sender's display name stamped onto the
// envelope, as the server does when relaying a diagram update.
func EncodeFrom(t Type, data any, user string) ([]byte, error) {
	env := Envelope{Type: t, User: user}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", t, err)
		}
		env.Data = raw
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", t, err)
	}
	return raw, nil
}

// MustEncode is Encode for payload types that cannot fail to marshal.
func MustEncode(t Type, data any) []byte {
	raw, err := Encode(t, data)
	if err != nil {
		panic(err)
	}
	return raw
}

// Decode probes the frame type; the concrete payload is unmarshalled
// separately via DecodeData once the caller has switched on Type.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}
