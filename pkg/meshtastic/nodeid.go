package meshtastic

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is a Meshtastic node number. Its canonical textual form is the
// "!deadbeef" hex notation used across the Meshtastic ecosystem.
type NodeID uint32

// Broadcast is the special destination addressing every node on the mesh.
const Broadcast NodeID = 0xFFFFFFFF

func (id NodeID) String() string {
	return fmt.Sprintf("!%08x", uint32(id))
}

// IsBroadcast reports whether the id is the broadcast address.
func (id NodeID) IsBroadcast() bool {
	return id == Broadcast
}

// ParseNodeID parses the "!hex" notation, with or without the leading
// bang. The strings "^all" and "" map to the broadcast address.
func ParseNodeID(s string) (NodeID, error) {
	switch s {
	case "", "^all":
		return Broadcast, nil
	}
	s = strings.TrimPrefix(s, "!")
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID(n), nil
}
