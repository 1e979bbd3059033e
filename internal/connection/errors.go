package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

var (
	// ErrGivenUp is returned by Run once MaxRetries attempts have failed.
	ErrGivenUp = errors.New("exceeded max connection attempts")
	// ErrRunning is returned by Run when the session loop is already active.
	ErrRunning = errors.New("session is already running")
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe or connection reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// isConnectFailure reports whether a dial error means GSPro is not
// reachable (refused, unreachable, unresolvable or timed out).
func isConnectFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func handleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] GSPro closed the connection", connID)
	case IsExpectedCloseError(err):
		logger.DebugF("[%s] Connection closed: %v", connID, err)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.WarnF("[%s] Error occured while reading from GSPro, details: %v", connID, err)
	}
}
