package timeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ClockSource supplies the Reconstructor with a notion of "now" and a way
// to truncate an epoch timestamp to local midnight (§4.4).
type ClockSource interface {
	// CurrentLocalEpochMs returns the current time as milliseconds since
	// the Unix epoch, adjusted by whatever offset the clock source has
	// computed against its reference.
	CurrentLocalEpochMs() int64

	// TruncateToMidnight returns the epoch_ms of the start of the local
	// day containing epochMs.
	TruncateToMidnight(epochMs int64) int64
}

// SystemClock is a ClockSource backed directly by the local system clock,
// with no external synchronization. It is the fallback used when no NTP
// server is configured, and reports raw host time per §4.8's "a
// never-synchronized clock source returns raw host time."
type SystemClock struct{}

func (SystemClock) CurrentLocalEpochMs() int64 {
	return time.Now().UnixMilli()
}

func (SystemClock) TruncateToMidnight(epochMs int64) int64 {
	t := time.UnixMilli(epochMs).Local()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.UnixMilli()
}

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01), per §6.
const ntpEpochOffset = 2208988800

const (
	// maxOffset is the rejection bound on |theta| (§4.4).
	maxOffset = 24 * time.Hour
	// maxDelay is the rejection bound on delta (§4.4).
	maxDelay = 10 * time.Second
)

var (
	// ErrNTPStratum is returned when a server responds with stratum
	// outside [1,15] (§4.4).
	ErrNTPStratum = errors.New("ntp: stratum outside [1,15]")

	// ErrNTPMode is returned when the reply's mode field does not mark it
	// as a server response (mode 4).
	ErrNTPMode = errors.New("ntp: response is not a server reply")

	// ErrNTPShortPacket is returned when a reply is smaller than the
	// mandatory 48-byte packet.
	ErrNTPShortPacket = errors.New("ntp: packet shorter than 48 bytes")

	// ErrNTPOffsetRejected is returned when theta or delta fall outside
	// the acceptance window (§4.4 "Rejection rules").
	ErrNTPOffsetRejected = errors.New("ntp: offset/delay outside acceptance window")

	// ErrNTPNoServers is returned when every configured server failed.
	ErrNTPNoServers = errors.New("ntp: all servers failed")
)

// toNTPSeconds converts a time.Time into the NTP 64-bit fixed-point
// seconds-since-1900 format used on the wire.
func toNTPSeconds(t time.Time) uint64 {
	sec := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return sec<<32 | frac
}

// fromNTPSeconds converts the wire format back into a Go duration-since-
// Unix-epoch pair (seconds, milliseconds), following §4.4's conversion
// rule literally: "seconds since 1900 ... by subtracting 2208988800 and
// the fractional part to milliseconds by (frac * 1000) >> 32".
func fromNTPSeconds(v uint64) (unixSec int64, ms int64) {
	sec := int64(v >> 32)
	frac := v & 0xFFFFFFFF
	unixSec = sec - ntpEpochOffset
	ms = int64(frac*1000) >> 32
	return unixSec, ms
}

func ntpToTime(v uint64) time.Time {
	sec, ms := fromNTPSeconds(v)
	return time.Unix(sec, ms*int64(time.Millisecond))
}

// NTPClock is a ClockSource that synchronizes against a list of NTP
// servers over UDP, following RFC 5905's client/server exchange (§4.4,
// §6). Between syncs, CurrentLocalEpochMs reports the system clock
// corrected by the last accepted offset.
type NTPClock struct {
	servers []string
	timeout time.Duration
	log     *slog.Logger

	mu           sync.Mutex
	offsetMs     int64
	synchronized bool
	lastSyncedAt time.Time
}

// NTPOption configures an NTPClock.
type NTPOption func(*NTPClock)

// WithTimeout overrides the per-server UDP round-trip timeout (default
// 5s, per §5 "a bounded UDP receive timeout (default 5 s per server)").
func WithTimeout(d time.Duration) NTPOption {
	return func(c *NTPClock) { c.timeout = d }
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(log *slog.Logger) NTPOption {
	return func(c *NTPClock) {
		if log == nil {
			log = discardLogger
		}
		c.log = log
	}
}

// NewNTPClock creates an NTPClock that tries each of servers ("host:port")
// in order until one yields an accepted reply. It starts unsynchronized:
// CurrentLocalEpochMs falls back to the bare system clock until the first
// successful Synchronize.
func NewNTPClock(servers []string, opts ...NTPOption) *NTPClock {
	c := &NTPClock{
		servers: servers,
		timeout: 5 * time.Second,
		log:     discardLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSynchronized reports whether at least one Synchronize has succeeded.
func (c *NTPClock) IsSynchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synchronized
}

// OffsetMs returns the last accepted clock offset in milliseconds.
func (c *NTPClock) OffsetMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetMs
}

// Synchronize tries each configured server in order and, on the first
// accepted reply, updates the cached offset. Synchronization is
// idempotent and thread-safe; a failed synchronize leaves the offset at
// its prior value, zero on first use (§4.4).
func (c *NTPClock) Synchronize(ctx context.Context) error {
	var lastErr error
	for _, server := range c.servers {
		offset, err := c.queryOnce(ctx, server)
		if err != nil {
			c.log.Warn("ntp sync failed", "server", server, "error", err)
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.offsetMs = offset.Milliseconds()
		c.synchronized = true
		c.lastSyncedAt = time.Now()
		c.mu.Unlock()

		c.log.Debug("ntp sync ok", "server", server, "offset_ms", offset.Milliseconds())
		return nil
	}
	if lastErr == nil {
		lastErr = ErrNTPNoServers
	}
	return fmt.Errorf("%w: %v", ErrNTPNoServers, lastErr)
}

// queryOnce performs one RFC 5905 request/response exchange against a
// single server and returns the accepted offset theta.
func (c *NTPClock) queryOnce(ctx context.Context, server string) (time.Duration, error) {
	conn, err := net.Dial("udp", server)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	req := make([]byte, 48)
	req[0] = 0x1B // LI=0, VN=3, Mode=3 (client), per §6.
	t1 := time.Now()
	binary.BigEndian.PutUint64(req[40:48], toNTPSeconds(t1))

	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	resp := make([]byte, 48)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	t4 := time.Now()
	if n < 48 {
		return 0, ErrNTPShortPacket
	}

	mode := resp[0] & 0x07
	if mode != 4 {
		return 0, ErrNTPMode
	}
	stratum := resp[1]
	if stratum < 1 || stratum > 15 {
		return 0, ErrNTPStratum
	}

	t2 := ntpToTime(binary.BigEndian.Uint64(resp[32:40])) // server receive time
	t3 := ntpToTime(binary.BigEndian.Uint64(resp[40:48])) // server transmit time

	theta := ((t2.Sub(t1)) + (t3.Sub(t4))) / 2
	delta := (t4.Sub(t1)) - (t3.Sub(t2))

	if theta > maxOffset || theta < -maxOffset {
		return 0, ErrNTPOffsetRejected
	}
	if delta < 0 || delta > maxDelay {
		return 0, ErrNTPOffsetRejected
	}

	return theta, nil
}

func (c *NTPClock) CurrentLocalEpochMs() int64 {
	c.mu.Lock()
	offset := c.offsetMs
	c.mu.Unlock()
	return time.Now().UnixMilli() + offset
}

func (c *NTPClock) TruncateToMidnight(epochMs int64) int64 {
	t := time.UnixMilli(epochMs).Local()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.UnixMilli()
}

var _ ClockSource = SystemClock{}
var _ ClockSource = (*NTPClock)(nil)
