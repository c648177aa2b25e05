// Package fakeport is a scripted stand-in for a fingerprint reader on a
// serial port. Tests install Device.Opener on a serialport.Link.
package fakeport

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
)

// Responder returns the lines the device emits after receiving cmd.
type Responder func(cmd string) []string

var ErrClosed = errors.New("fakeport: closed")

type Device struct {
	mu       sync.Mutex
	respond  Responder
	rx       []byte
	wbuf     []byte
	commands []string
	timeout  time.Duration
	closed   bool
	opens    int
	reads    int
	openErr  error
}

func New(r Responder) *Device {
	if r == nil {
		r = func(string) []string { return nil }
	}
	return &Device{respond: r, timeout: time.Second}
}

// FailOpen makes subsequent opens return err.
func (d *Device) FailOpen(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}

func (d *Device) Opener() serialport.Opener {
	return func(string, int) (serialport.Conn, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.openErr != nil {
			return nil, d.openErr
		}
		d.opens++
		d.closed = false
		return d, nil
	}
}

// Emit queues lines as if the device had sent them unprompted.
func (d *Device) Emit(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ln := range lines {
		d.rx = append(d.rx, ln+"\n"...)
	}
}

// EmitRaw queues raw bytes.
func (d *Device) EmitRaw(b []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, b...)
	d.mu.Unlock()
}

// Commands returns the lines written by the host so far.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

// Count returns how many times the host sent cmd.
func (d *Device) Count(cmd string) int {
	n := 0
	for _, c := range d.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Reads returns how many Read calls returned, data or not.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	deadline := time.Now().Add(d.timeout)
	d.mu.Unlock()

	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, ErrClosed
		}
		if len(d.rx) > 0 {
			n := copy(p, d.rx)
			d.rx = d.rx[n:]
			d.reads++
			d.mu.Unlock()
			return n, nil
		}
		if !time.Now().Before(deadline) {
			d.reads++
			d.mu.Unlock()
			return 0, nil
		}
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	d.wbuf = append(d.wbuf, p...)
	var cmds []string
	for {
		i := bytes.IndexByte(d.wbuf, '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(d.wbuf[:i]))
		d.wbuf = d.wbuf[i+1:]
		d.commands = append(d.commands, cmd)
		cmds = append(cmds, cmd)
	}
	respond := d.respond
	d.mu.Unlock()

	for _, c := range cmds {
		d.Emit(respond(c)...)
	}
	return len(p), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	d.timeout = t
	d.mu.Unlock()
	return nil
}

func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	d.rx = d.rx[:0]
	d.mu.Unlock()
	return nil
}
