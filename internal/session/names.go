package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// maxNameLen bounds display names in runes.
const maxNameLen = 30

// assignName turns a requested display name into one that is unique within
// the session. An empty request gets a generated name; a taken name gets a
// numeric suffix.
func assignName(requested string, taken map[string]bool) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = "User_" + uuid.NewString()[:8]
	}
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
