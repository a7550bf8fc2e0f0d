package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// Identity derives the suppression key of an alert from the plant and the
// shape of its violations ("parameter:DIRECTION" tokens). Observed values and
// the reading timestamp do not take part, so a drifting value that keeps
// violating the same way maps to the same alert.
func Identity(plantID string, violations []types.Violation) string {
	tokens := make([]string, 0, len(violations))
	for _, v := range violations {
		tokens = append(tokens, v.Parameter+":"+string(v.Direction))
	}
	sort.Strings(tokens)

	sum := sha256.Sum256([]byte(plantID + "|" + strings.Join(tokens, ",")))
	return hex.EncodeToString(sum[:])
}
