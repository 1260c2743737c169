package xid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const (
	PrefixProduct  = "prd"
	PrefixSale     = "sale"
	PrefixVendor   = "ven"
	PrefixPurchase = "pur"
	PrefixCustomer = "cus"
	PrefixPayment  = "pay"
)

var fallbackSeq atomic.Uint64

// New returns "<prefix>-<unix nanos>-<16 hex chars>". The suffix comes from
// crypto/rand; a process-wide counter stands in if the entropy source fails.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint64(buf, fallbackSeq.Add(1))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// HasPrefix reports whether id was minted by New with the given prefix.
func HasPrefix(id string, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
