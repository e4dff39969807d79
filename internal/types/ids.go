// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type AnalysisID string
type InteractionID string

func NewAnalysisID() AnalysisID {
	return AnalysisID(uuid.New().String())
}

func NewInteractionID() InteractionID {
	return InteractionID(uuid.New().String())
}

// NewAddress joins a network prefix and a transport-local id, e.g.
// "telegram:12345". Bare ids (no prefix) belong to the default network.
func NewAddress(parts ...string) string {
	return strings.Join(parts, ":")
}

// SplitAddress returns the network prefix and the transport-local id. An
// address without a recognised prefix yields an empty network.
func SplitAddress(addr string) (network, id string) {
	prefix, rest, ok := strings.Cut(addr, ":")
	if !ok || strings.Contains(prefix, "@") || prefix == "" {
		return "", addr
	}
	return prefix, rest
}
