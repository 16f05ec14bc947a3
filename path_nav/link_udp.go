package path_nav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// UDPLink receives pose datagrams from a localization feed and sends drive
// commands to the robot as CSV datagrams.
type UDPLink struct {
	conn  *net.UDPConn
	out   *net.UDPConn
	store *poseStore
	done  chan struct{}

	mu       sync.Mutex
	consumed uint64
}

// poseStore keeps the newest pose sample and signals updates.
type poseStore struct {
	mu      sync.RWMutex
	last    Pose
	seq     uint64
	updated chan struct{}
}

func newPoseStore() *poseStore {
	return &poseStore{updated: make(chan struct{}, 1)}
}

// Update stores the latest pose and advances the sequence counter.
func (s *poseStore) Update(p Pose) {
	s.mu.Lock()
	s.last = p
	s.seq++
	s.mu.Unlock()
	select {
	case s.updated <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recent pose and its sequence number.
func (s *poseStore) Snapshot() (Pose, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.seq
}

// NewUDPLink listens for pose datagrams on cfg.ListenAddr and dials
// cfg.CommandAddr for commands.
func NewUDPLink(cfg UDPLinkConfig) (*UDPLink, error) {
	if cfg.ListenAddr == "" {
		return nil, &ConfigError{Field: "link.udp.listen_addr", Reason: "must be set"}
	}
	if cfg.CommandAddr == "" {
		return nil, &ConfigError{Field: "link.udp.command_addr", Reason: "must be set"}
	}
	laddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", cfg.CommandAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	out, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &UDPLink{conn: conn, out: out, store: newPoseStore(), done: make(chan struct{})}
	bufSize := cfg.ReadBuffer
	if bufSize <= 0 {
		bufSize = 2048
	}
	go l.listen(bufSize)
	return l, nil
}

// LocalAddr is the address the pose feed should send to.
func (l *UDPLink) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// listen stores every well-formed pose datagram until the socket closes.
func (l *UDPLink) listen(bufSize int) {
	defer close(l.done)
	buf := make([]byte, bufSize)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		pose, err := parsePoseDatagram(buf[:n])
		if err != nil {
			continue
		}
		l.store.Update(pose)
	}
}

// GetPose waits for a sample newer than the last one returned.
func (l *UDPLink) GetPose(ctx context.Context) (Pose, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		pose, seq := l.store.Snapshot()
		if seq != l.consumed {
			l.consumed = seq
			return pose, nil
		}
		select {
		case <-ctx.Done():
			return Pose{}, &LinkError{Kind: LinkTimeout, Op: "get_pose", Err: ctx.Err()}
		case <-l.done:
			return Pose{}, &LinkError{Kind: LinkDisconnected, Op: "get_pose", Err: net.ErrClosed}
		case <-l.store.updated:
		}
	}
}

// SendDrive writes "linear,angular" as a CSV payload.
func (l *UDPLink) SendDrive(ctx context.Context, cmd DriveCommand) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := l.out.SetWriteDeadline(deadline); err != nil {
			return ClassifyLinkError("send_drive", err)
		}
	}
	payload := fmt.Sprintf("%.4f,%.4f", cmd.LinearSpeed, cmd.AngularSpeed)
	if _, err := l.out.Write([]byte(payload)); err != nil {
		return ClassifyLinkError("send_drive", err)
	}
	return nil
}

// Close releases both sockets and waits for the listener to exit.
func (l *UDPLink) Close() error {
	err := errors.Join(l.conn.Close(), l.out.Close())
	<-l.done
	return err
}

// parsePoseDatagram parses "x,y,heading" or "t,x,y,heading" payloads.
func parsePoseDatagram(b []byte) (Pose, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return Pose{}, errors.New("empty payload")
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Pose{}, fmt.Errorf("expected 3 or 4 fields, got %d", len(parts))
	}
	idx := len(parts) - 3

	vals := make([]float64, 3)
	for i := range vals {
		v, err := parseF64(parts[idx+i])
		if err != nil {
			return Pose{}, err
		}
		if !finite(v) {
			return Pose{}, fmt.Errorf("field %d is not finite", idx+i)
		}
		vals[i] = v
	}
	return Pose{X: vals[0], Y: vals[1], Heading: NormalizeAngle(vals[2])}, nil
}

// parseF64 parses a float from a CSV field.
func parseF64(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
