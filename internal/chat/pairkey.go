package chat

import (
	"strings"

	"github.com/google/uuid"
)

// PairKey returns the canonical room id for two participants. The smaller id
// always comes first, so both sides derive the same key regardless of who
// initiates.
func PairKey(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + "_" + second
}
