package update

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is the change kind delivered to dependents.
//
// Four values are reserved for interoperability; every other value is
// application defined and passed through untouched.
type Message int32

const (
	// WillChange announces an imminent change.
	WillChange Message = iota
	// Changed announces a completed change.
	Changed
	// Destroyed announces that the subject no longer exists. The update-done
	// hook never fires for it.
	Destroyed
	// WillDestroy announces imminent destruction.
	WillDestroy
)

var messageNames = map[Message]string{
	WillChange:  "will_change",
	Changed:     "changed",
	Destroyed:   "destroyed",
	WillDestroy: "will_destroy",
}

// IsReserved reports whether m is one of the four well-known kinds.
func (m Message) IsReserved() bool {
	_, ok := messageNames[m]
	return ok
}

// String returns the well-known name, or the decimal value.
func (m Message) String() string {
	if name, ok := messageNames[m]; ok {
		return name
	}
	return strconv.FormatInt(int64(m), 10)
}

// ParseMessage accepts a well-known name or a decimal int32.
func ParseMessage(s string) (Message, error) {
	s = strings.TrimSpace(s)
	key := strings.ToLower(strings.ReplaceAll(s, "-", "_"))
	for m, name := range messageNames {
		if name == key || strings.ReplaceAll(name, "_", "") == key {
			return m, nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message %q: must be a known kind or an int32", s)
	}
	return Message(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Message) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Message) UnmarshalText(text []byte) error {
	v, err := ParseMessage(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
