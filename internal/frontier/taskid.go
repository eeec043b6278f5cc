package frontier

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"lukechampine.com/blake3"
)

// taskIdGenerator produces TaskIds of the form
// task_{machine}_{domain_with_dots_to_underscores}_{ticks}_{counter}. The
// counter segment is the first 4 bytes of a blake3 digest of the URL, the
// tick and a per-generator monotonic sequence, so ids from one generator
// differ even for the same URL at the same tick. Two generators share no
// sequence, so they can produce the same id for the same URL and tick.
type taskIdGenerator struct {
	machineId string
	counter   atomic.Uint64
}

func newTaskIdGenerator() *taskIdGenerator {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &taskIdGenerator{machineId: sanitizeMachineId(host)}
}

func sanitizeMachineId(host string) string {
	return strings.ReplaceAll(strings.ToLower(host), ".", "_")
}

func (g *taskIdGenerator) Next(u url.URL, domain string) string {
	ticks := time.Now().UnixNano()
	seq := g.counter.Add(1)
	domainKey := strings.ReplaceAll(strings.ToLower(domain), ".", "_")
	digest := blake3.Sum256([]byte(fmt.Sprintf("%s|%d|%d", u.String(), ticks, seq)))
	return fmt.Sprintf("task_%s_%s_%d_%s", g.machineId, domainKey, ticks, hex.EncodeToString(digest[:4]))
}
