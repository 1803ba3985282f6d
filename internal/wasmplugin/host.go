package wasmplugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/time/rate"
)

const (
	// MaxLogSize is the maximum size of a single log message (256 bytes).
	MaxLogSize = 256

	// LogRateLimit is the maximum number of log calls per second (10/sec).
	LogRateLimit = 10
)

// hostFunctions provides the Host Functions every sandboxed plugin module
// is linked against: a rate-limited log sink and a monotonic wall clock
// reader. The plugin ABI (§6) names no host-side regex or string-matching
// surface, so this carries forward only the two concerns that are not
// plugin-specific combat-log semantics.
type hostFunctions struct {
	logger      *slog.Logger
	rateLimiter *rate.Limiter
}

// newHostFunctions creates a new host functions provider.
func newHostFunctions(logger *slog.Logger) *hostFunctions {
	return &hostFunctions{
		logger:      logger,
		rateLimiter: rate.NewLimiter(LogRateLimit, LogRateLimit),
	}
}

// log implements the log Host Function.
// Signature: (level, ptr, len)
// Levels: 0=debug, 1=info, 2=warn, 3=error
func (h *hostFunctions) log(ctx context.Context, m api.Module, level, ptr, msgLen uint32) {
	if !h.rateLimiter.Allow() {
		// Silently drop log message if rate limit exceeded
		return
	}

	truncated := false
	if msgLen > MaxLogSize {
		truncated = true
		msgLen = MaxLogSize
	}

	msgBytes, ok := m.Memory().Read(ptr, msgLen)
	if !ok {
		return
	}

	msg := strings.ToValidUTF8(string(msgBytes), "�")
	if truncated {
		msg += " [truncated]"
	}

	if h.logger == nil {
		return
	}

	switch level {
	case 0: // debug
		h.logger.Debug("[plugin] " + msg)
	case 1: // info
		h.logger.Info("[plugin] " + msg)
	case 2: // warn
		h.logger.Warn("[plugin] " + msg)
	case 3: // error
		h.logger.Error("[plugin] " + msg)
	default:
		h.logger.Info(fmt.Sprintf("[plugin] (level=%d) %s", level, msg))
	}
}

// nowMs implements the now_ms Host Function.
// Signature: () -> i64
// Returns current Unix time in milliseconds.
func (h *hostFunctions) nowMs() int64 {
	return time.Now().UnixMilli()
}
