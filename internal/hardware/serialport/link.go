// Package serialport owns the single serial connection to the fingerprint
// reader and exposes line-oriented I/O to the protocol driver.
//
// Every operation that touches the port runs under one operation lock.
// Exchange holds that lock for the whole callback, so a multi-step protocol
// exchange is atomic with respect to other callers, Connect and Disconnect.
package serialport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 2 * time.Second
	DefaultSettleDelay = 2 * time.Second
	DefaultPortsTTL    = 10 * time.Second
)

var (
	ErrNotConnected  = errors.New("serial link not connected")
	ErrConnectFailed = errors.New("serial connect failed")
)

// Conn is the subset of serial.Port the link needs. serial.Port satisfies it.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens a named port at a baud rate.
type Opener func(port string, baud int) (Conn, error)

// Enumerator lists the ports present on the host.
type Enumerator func() ([]PortInfo, error)

// Status is a point-in-time snapshot of the link.
type Status struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	BaudRate  int    `json:"baudrate"`
}

// ConnectResult describes a successful Connect.
type ConnectResult struct {
	AlreadyConnected bool
	Message          string
}

// Options configures a Link. Zero values pick defaults, except SettleDelay
// which is only defaulted when negative so tests can pass 0.
type Options struct {
	Logger      zerolog.Logger
	Opener      Opener
	Enumerator  Enumerator
	SettleDelay time.Duration
	PortsTTL    time.Duration
}

type Link struct {
	// opMu serializes everything that touches conn.
	opMu sync.Mutex
	conn Conn
	buf  []byte

	// stateMu guards the published snapshot only, so Status never waits
	// behind a long exchange.
	stateMu sync.RWMutex
	state   Status

	open      Opener
	enumerate Enumerator
	settle    time.Duration
	ports     *cache.Cache
	log       zerolog.Logger
}

func NewLink(opt Options) *Link {
	if opt.Opener == nil {
		opt.Opener = openSerial
	}
	if opt.Enumerator == nil {
		opt.Enumerator = enumerateSerial
	}
	if opt.SettleDelay < 0 {
		opt.SettleDelay = DefaultSettleDelay
	}
	if opt.PortsTTL <= 0 {
		opt.PortsTTL = DefaultPortsTTL
	}

	return &Link{
		open:      opt.Opener,
		enumerate: opt.Enumerator,
		settle:    opt.SettleDelay,
		ports:     cache.New(opt.PortsTTL, 2*opt.PortsTTL),
		log:       opt.Logger.With().Str("component", "serial").Logger(),
		state:     Status{BaudRate: DefaultBaudRate},
	}
}

func openSerial(port string, baud int) (Conn, error) {
	return serial.Open(port, &serial.Mode{BaudRate: baud})
}

// Connect opens port at baud. An already open link is reported as success
// without reopening. readTimeout becomes the port's default read timeout.
func (l *Link) Connect(port string, baud int, readTimeout time.Duration) (ConnectResult, error) {
	port = strings.TrimSpace(port)
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.conn != nil {
		cur := l.Status().Port
		return ConnectResult{
			AlreadyConnected: true,
			Message:          fmt.Sprintf("Already connected to %s", cur),
		}, nil
	}

	if port == "" {
		return ConnectResult{Message: "Connection failed: port is required"},
			fmt.Errorf("%w: port is required", ErrConnectFailed)
	}

	conn, err := l.open(port, baud)
	if err != nil {
		l.log.Warn().Err(err).Str("port", port).Int("baud", baud).Msg("open failed")
		return ConnectResult{Message: fmt.Sprintf("Connection failed: %v", err)},
			fmt.Errorf("%w: %s: %v", ErrConnectFailed, port, err)
	}
	if err := conn.SetReadTimeout(readTimeout); err != nil {
		_ = conn.Close()
		return ConnectResult{Message: fmt.Sprintf("Connection failed: %v", err)},
			fmt.Errorf("%w: set read timeout: %v", ErrConnectFailed, err)
	}

	// Most boards reset when the port opens; give the firmware time to boot.
	if l.settle > 0 {
		time.Sleep(l.settle)
	}

	l.conn = conn
	l.buf = l.buf[:0]
	l.setState(Status{Connected: true, Port: port, BaudRate: baud})

	l.log.Info().Str("port", port).Int("baud", baud).Msg("connected")
	return ConnectResult{Message: fmt.Sprintf("Connected to %s at %d", port, baud)}, nil
}

// Disconnect closes the port if open. Calling it on a closed link is a no-op.
func (l *Link) Disconnect() (string, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.conn == nil {
		return "Not connected", nil
	}

	prev := l.Status()
	err := l.conn.Close()
	l.conn = nil
	l.buf = l.buf[:0]
	l.setState(Status{BaudRate: prev.BaudRate})

	if err != nil {
		l.log.Warn().Err(err).Str("port", prev.Port).Msg("close failed")
		return fmt.Sprintf("Disconnected from %s", prev.Port), fmt.Errorf("close %s: %w", prev.Port, err)
	}
	l.log.Info().Str("port", prev.Port).Msg("disconnected")
	return fmt.Sprintf("Disconnected from %s", prev.Port), nil
}

func (l *Link) Status() Status {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// Connected reports whether a connection is currently open.
func (l *Link) Connected() bool {
	return l.Status().Connected
}

func (l *Link) setState(s Status) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()

	if s.Connected {
		serialConnected.Set(1)
	} else {
		serialConnected.Set(0)
	}
}

// Exchange runs fn while holding the operation lock. It returns
// ErrNotConnected without calling fn if the link is closed.
func (l *Link) Exchange(fn func(io *LineIO) error) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.conn == nil {
		return ErrNotConnected
	}
	return fn(&LineIO{link: l})
}

// Close is Disconnect for process shutdown.
func (l *Link) Close() error {
	_, err := l.Disconnect()
	return err
}
