package path_nav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrNavigationFailed is returned when the loop gives up on the robot link.
var ErrNavigationFailed = errors.New("navigation failed")

// LinkErrorKind classifies robot link failures.
type LinkErrorKind int

const (
	LinkTimeout LinkErrorKind = iota + 1
	LinkDisconnected
	LinkProtocol
)

func (k LinkErrorKind) String() string {
	switch k {
	case LinkTimeout:
		return "timeout"
	case LinkDisconnected:
		return "disconnected"
	case LinkProtocol:
		return "protocol error"
	default:
		return fmt.Sprintf("LinkErrorKind(%d)", int(k))
	}
}

// LinkError is a failed pose query or drive submission.
type LinkError struct {
	Kind LinkErrorKind
	Op   string
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Recoverable reports whether the loop may retry the cycle.
func (e *LinkError) Recoverable() bool {
	return e.Kind == LinkTimeout || e.Kind == LinkDisconnected
}

// ClassifyLinkError wraps err as a *LinkError for op, inferring the kind.
func ClassifyLinkError(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LinkError
	if errors.As(err, &le) {
		return err
	}
	return &LinkError{Kind: linkErrorKind(err), Op: op, Err: err}
}

func linkErrorKind(err error) LinkErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return LinkTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return LinkTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return LinkDisconnected
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return LinkDisconnected
	}
	return LinkProtocol
}

// LoadErrorKind classifies path loading failures.
type LoadErrorKind int

const (
	LoadNotFound LoadErrorKind = iota + 1
	LoadMalformed
)

func (k LoadErrorKind) String() string {
	switch k {
	case LoadNotFound:
		return "not found"
	case LoadMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("LoadErrorKind(%d)", int(k))
	}
}

// LoadError is a path that could not be loaded.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load path %q: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError rejects a configuration before the loop starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// StallError reports a target that was not reached within the stall bound.
type StallError struct {
	Cycles      int
	TargetIndex int
	Target      Waypoint
}

func (e *StallError) Error() string {
	return fmt.Sprintf("stall detected: no waypoint advance for %d cycles (target #%d %s)",
		e.Cycles, e.TargetIndex, e.Target)
}
