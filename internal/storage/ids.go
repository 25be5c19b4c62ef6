package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RecordID derives the deterministic ID for a fresh record from the owning
// user and the content. Retrying the same logical write therefore lands on
// the same ID instead of racing a duplicate key. The format follows
// mem:<user>:<hash-prefix>.
func RecordID(userID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("mem:%s:%s", userID, hex.EncodeToString(sum[:])[:16])
}
