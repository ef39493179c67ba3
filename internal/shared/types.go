package shared

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns prefix followed by 32 random hex characters.
func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Speaker reports whether the role owns a visualizer and subtitles.
func (r Role) Speaker() bool {
	return r == RoleUser || r == RoleAssistant
}
