package message

import (
	"errors"
	"strings"
)

const keySeparator = ":"

// ConversationKey identifies a 1:1 thread independent of who sent first.
type ConversationKey struct {
	Low  string
	High string
}

func NewConversationKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

func (k ConversationKey) String() string {
	return k.Low + keySeparator + k.High
}

// Has reports whether id is one of the two participants.
func (k ConversationKey) Has(id string) bool {
	return id == k.Low || id == k.High
}

// Other returns the participant that is not id.
func (k ConversationKey) Other(id string) string {
	if id == k.Low {
		return k.High
	}
	return k.Low
}

func ParseConversationKey(s string) (ConversationKey, error) {
	a, b, ok := strings.Cut(s, keySeparator)
	if !ok || a == "" || b == "" {
		return ConversationKey{}, errors.New("malformed conversation key")
	}
	return NewConversationKey(a, b), nil
}
