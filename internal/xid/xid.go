package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var counter atomic.Uint64

// New returns a prefixed id of the form prefix-<unix seconds>-<seq>-<random>.
// The sequence component increases monotonically within the process, so ids
// minted by one process sort in assignment order; the random suffix keeps ids
// unique across restarts.
func New(prefix string) string {
	seq := counter.Add(1)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d-%06d", prefix, time.Now().Unix(), seq)
	}
	return fmt.Sprintf("%s-%d-%06d-%s", prefix, time.Now().Unix(), seq, hex.EncodeToString(buf))
}
