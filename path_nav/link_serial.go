package path_nav

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// serialRequest is one newline-delimited JSON request line.
type serialRequest struct {
	ID      uint64  `json:"id"`
	Op      string  `json:"op"`
	Linear  float64 `json:"linear,omitempty"`
	Angular float64 `json:"angular,omitempty"`
}

// serialResponse answers the request with the same id.
type serialResponse struct {
	ID      uint64   `json:"id"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Heading *float64 `json:"heading"`
	OK      bool     `json:"ok"`
	Error   string   `json:"error"`
}

// SerialLink speaks a line-delimited JSON protocol over a serial port.
// Responses whose id does not match the outstanding request are discarded,
// so a reply that arrives after its request timed out is never used.
type SerialLink struct {
	port      io.ReadWriteCloser
	responses chan serialResponse
	closing   chan struct{}
	readDone  chan struct{}
	readErr   error

	mu     sync.Mutex
	nextID uint64
	once   sync.Once
}

// OpenSerialLink opens the configured serial device.
func OpenSerialLink(cfg SerialLinkConfig) (*SerialLink, error) {
	if cfg.Device == "" {
		return nil, &ConfigError{Field: "link.serial.device", Reason: "must be set"}
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	// With a read timeout the port reports io.EOF when no byte arrived.
	return newSerialLink(port, cfg.ReadTimeout > 0), nil
}

// NewSerialLink runs the protocol over an already open port.
func NewSerialLink(port io.ReadWriteCloser) *SerialLink {
	return newSerialLink(port, false)
}

func newSerialLink(port io.ReadWriteCloser, eofIsIdle bool) *SerialLink {
	l := &SerialLink{
		port:      port,
		responses: make(chan serialResponse, 8),
		closing:   make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	go l.readLoop(&idleReader{r: port, closing: l.closing, eofIsIdle: eofIsIdle})
	return l
}

// idleReader retries empty reads until data arrives or the link closes.
type idleReader struct {
	r         io.Reader
	closing   <-chan struct{}
	eofIsIdle bool
}

func (ir *idleReader) Read(b []byte) (int, error) {
	for {
		n, err := ir.r.Read(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && !(ir.eofIsIdle && errors.Is(err, io.EOF)) {
			return 0, err
		}
		select {
		case <-ir.closing:
			return 0, io.EOF
		default:
		}
	}
}

func (l *SerialLink) readLoop(r io.Reader) {
	defer close(l.readDone)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var resp serialResponse
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			continue
		}
		select {
		case l.responses <- resp:
		case <-l.closing:
			return
		}
	}
	l.readErr = sc.Err()
	if l.readErr == nil {
		l.readErr = io.EOF
	}
}

// GetPose requests the current pose.
func (l *SerialLink) GetPose(ctx context.Context) (Pose, error) {
	resp, err := l.roundTrip(ctx, serialRequest{Op: "pose"})
	if err != nil {
		return Pose{}, ClassifyLinkError("get_pose", err)
	}
	if resp.X == nil || resp.Y == nil || resp.Heading == nil {
		return Pose{}, &LinkError{Kind: LinkProtocol, Op: "get_pose", Err: errors.New("response without pose")}
	}
	return Pose{X: *resp.X, Y: *resp.Y, Heading: NormalizeAngle(*resp.Heading)}, nil
}

// SendDrive submits a drive command and waits for the acknowledgement.
func (l *SerialLink) SendDrive(ctx context.Context, cmd DriveCommand) error {
	resp, err := l.roundTrip(ctx, serialRequest{Op: "drive", Linear: cmd.LinearSpeed, Angular: cmd.AngularSpeed})
	if err != nil {
		return ClassifyLinkError("send_drive", err)
	}
	if !resp.OK {
		return &LinkError{Kind: LinkProtocol, Op: "send_drive", Err: errors.New("command not acknowledged")}
	}
	return nil
}

func (l *SerialLink) roundTrip(ctx context.Context, req serialRequest) (serialResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	req.ID = l.nextID
	line, err := json.Marshal(req)
	if err != nil {
		return serialResponse{}, &LinkError{Kind: LinkProtocol, Op: req.Op, Err: err}
	}
	if _, err := l.port.Write(append(line, '\n')); err != nil {
		return serialResponse{}, err
	}

	for {
		select {
		case resp := <-l.responses:
			if resp.ID != req.ID {
				continue
			}
			if resp.Error != "" {
				return serialResponse{}, &LinkError{Kind: LinkProtocol, Op: req.Op, Err: errors.New(resp.Error)}
			}
			return resp, nil
		case <-l.readDone:
			return serialResponse{}, &LinkError{Kind: LinkDisconnected, Op: req.Op, Err: l.readErr}
		case <-ctx.Done():
			return serialResponse{}, &LinkError{Kind: LinkTimeout, Op: req.Op, Err: ctx.Err()}
		}
	}
}

// Close closes the port and waits for the reader to exit.
func (l *SerialLink) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closing)
		err = l.port.Close()
		<-l.readDone
	})
	return err
}
