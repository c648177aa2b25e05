// Package fingerprint implements the reader's line protocol: enrollment of
// a finger into a numbered slot and verification of a presented finger.
//
// Every operation runs inside one serialport exchange, so retries and polls
// are never interleaved with another caller's commands. There is no
// cancellation from the host side: each call returns within a bound derived
// from its retry/poll parameters, or earlier on a terminal device line.
package fingerprint

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
)

const (
	DefaultAckTimeout      = 1 * time.Second
	DefaultPollReadTimeout = 2 * time.Second
	DefaultEnrollTimeout   = 20 * time.Second
	DefaultEnrollRetries   = 3
	DefaultVerifyTimeout   = 3 * time.Second
	DefaultVerifyPolls     = 10

	msgNotConnected = "not connected"
)

var (
	ErrNotConnected       = serialport.ErrNotConnected
	ErrSlotOutOfRange     = errors.New("enrollment slot out of range")
	ErrDeviceAborted      = errors.New("enrollment aborted on device")
	ErrEnrollFailed       = errors.New("enrollment failed")
	ErrProtocolTimeout    = errors.New("no terminal response from device")
	ErrIdentifierMismatch = errors.New("matched identifier differs from expected")
	ErrDeviceIO           = errors.New("device i/o error")
)

// Link is the exchange primitive of serialport.Link.
type Link interface {
	Exchange(fn func(io *serialport.LineIO) error) error
}

// Result is the outcome of Enroll or Verify. MatchedID is only set by
// Verify, and stays set on an identifier mismatch.
type Result struct {
	OK        bool
	Message   string
	MatchedID *int
	Attempts  int
	Polls     int
}

type Options struct {
	Logger zerolog.Logger

	// AckTimeout bounds the single read after each mode/slot command.
	AckTimeout time.Duration
	// PollReadTimeout bounds each read inside an enrollment attempt.
	PollReadTimeout time.Duration
}

type Driver struct {
	link Link
	opt  Options
	log  zerolog.Logger
}

func NewDriver(link Link, opt Options) *Driver {
	if opt.AckTimeout <= 0 {
		opt.AckTimeout = DefaultAckTimeout
	}
	if opt.PollReadTimeout <= 0 {
		opt.PollReadTimeout = DefaultPollReadTimeout
	}
	return &Driver{
		link: link,
		opt:  opt,
		log:  opt.Logger.With().Str("component", "fingerprint").Logger(),
	}
}

// Enroll stores a finger in slot. Up to maxRetries full E / I:<slot>
// exchanges are made, each polling for at most perTryTimeout. A device
// abort ends the call immediately.
func (d *Driver) Enroll(slot, maxRetries int, perTryTimeout time.Duration) (Result, error) {
	start := time.Now()

	if slot < MinSlot || slot > MaxSlot {
		d.observe("enroll", "invalid", start)
		return Result{Message: fmt.Sprintf("Enrollment ID %d outside [%d,%d]", slot, MinSlot, MaxSlot)},
			fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	if maxRetries < 1 {
		maxRetries = DefaultEnrollRetries
	}
	if perTryTimeout <= 0 {
		perTryTimeout = DefaultEnrollTimeout
	}

	var (
		res   Result
		opErr error
	)
	err := d.link.Exchange(func(io *serialport.LineIO) error {
		res, opErr = d.enroll(io, slot, maxRetries, perTryTimeout)
		return nil
	})
	if err != nil {
		res, opErr = d.exchangeFailed(err)
	}

	d.observe("enroll", outcome(opErr), start)
	d.log.Info().
		Int("slot", slot).
		Bool("ok", res.OK).
		Int("attempts", res.Attempts).
		Str("message", res.Message).
		Dur("took", time.Since(start)).
		Msg("enroll")
	return res, opErr
}

func (d *Driver) enroll(io *serialport.LineIO, slot, maxRetries int, perTry time.Duration) (Result, error) {
	if err := io.Reset(); err != nil {
		d.log.Warn().Err(err).Msg("reset before enroll")
	}

	last := ""
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := d.command(io, cmdEnroll); err != nil {
			last = "Error: " + err.Error()
			continue
		}
		if err := d.command(io, fmt.Sprintf(cmdSlotFmt, slot)); err != nil {
			last = "Error: " + err.Error()
			continue
		}

		status, line, err := d.awaitEnroll(io, perTry)
		switch {
		case err != nil:
			last = "Error: " + err.Error()
		case status == statusSuccess:
			return Result{
				OK:       true,
				Message:  fmt.Sprintf("Enroll success on attempt %d", attempt),
				Attempts: attempt,
			}, nil
		case status == statusAborted:
			return Result{Message: "Enroll cancelled", Attempts: attempt}, ErrDeviceAborted
		case status == statusFailure:
			last = line
		default:
			last = "timeout"
		}
		d.log.Debug().Int("attempt", attempt).Str("last", last).Msg("enroll attempt failed")
	}

	return Result{
		Message:  fmt.Sprintf("Enroll failed after %d attempts (%s)", maxRetries, last),
		Attempts: maxRetries,
	}, ErrEnrollFailed
}

// awaitEnroll polls until a terminal enrollment line or until perTry
// elapses. A read error ends the attempt.
func (d *Driver) awaitEnroll(io *serialport.LineIO, perTry time.Duration) (lineStatus, string, error) {
	deadline := time.Now().Add(perTry)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return statusNone, "", nil
		}
		line, err := io.ReadLine(min(d.opt.PollReadTimeout, remaining))
		if err != nil {
			return statusNone, "", err
		}
		if line == "" {
			continue
		}
		kind, status := classify(line)
		if kind != lineEnroll {
			continue
		}
		switch status {
		case statusSuccess, statusAborted, statusFailure:
			return status, line, nil
		}
	}
}

// Verify asks the reader to identify a finger. With expectedID nil any
// match succeeds; otherwise the matched slot must equal *expectedID.
// At most maxPolls reads of perTryTimeout are made after the mode switch.
func (d *Driver) Verify(expectedID *int, perTryTimeout time.Duration, maxPolls int) (Result, error) {
	start := time.Now()

	if perTryTimeout <= 0 {
		perTryTimeout = DefaultVerifyTimeout
	}
	if maxPolls < 1 {
		maxPolls = DefaultVerifyPolls
	}

	var (
		res   Result
		opErr error
	)
	err := d.link.Exchange(func(io *serialport.LineIO) error {
		res, opErr = d.verify(io, expectedID, perTryTimeout, maxPolls)
		return nil
	})
	if err != nil {
		res, opErr = d.exchangeFailed(err)
	}

	d.observe("verify", outcome(opErr), start)
	ev := d.log.Info().
		Bool("ok", res.OK).
		Int("polls", res.Polls).
		Str("message", res.Message).
		Dur("took", time.Since(start))
	if expectedID != nil {
		ev = ev.Int("expected", *expectedID)
	}
	if res.MatchedID != nil {
		ev = ev.Int("matched", *res.MatchedID)
	}
	ev.Msg("verify")
	return res, opErr
}

func (d *Driver) verify(io *serialport.LineIO, expectedID *int, perTry time.Duration, maxPolls int) (Result, error) {
	if err := io.Reset(); err != nil {
		d.log.Warn().Err(err).Msg("reset before verify")
	}
	if err := d.command(io, cmdVerify); err != nil {
		return Result{Message: "Error: " + err.Error()}, fmt.Errorf("%w: %v", ErrDeviceIO, err)
	}

	last := ""
	for polls := 1; polls <= maxPolls; polls++ {
		line, err := io.ReadLine(perTry)
		if err != nil {
			last = "Error: " + err.Error()
			continue
		}
		if line == "" {
			continue
		}
		kind, status := classify(line)
		if kind != lineVerify {
			continue
		}

		switch status {
		case statusSuccess:
			id := matchedID(line)
			if expectedID == nil || (id != nil && *id == *expectedID) {
				return Result{OK: true, Message: "Verification success", MatchedID: id, Polls: polls}, nil
			}
			return Result{
				Message:   fmt.Sprintf("Verification matched ID %s, expected %d", formatID(id), *expectedID),
				MatchedID: id,
				Polls:     polls,
			}, ErrIdentifierMismatch
		case statusFailure:
			// The reader rescans on its own; keep listening.
			last = line
		}
	}

	return Result{
		Message: fmt.Sprintf("Verification timeout (%s)", last),
		Polls:   maxPolls,
	}, ErrProtocolTimeout
}

// Capture enrolls the finger of a newly created entity. kind is only
// carried into the log.
func (d *Driver) Capture(kind string, id, maxRetries int, perTryTimeout time.Duration) (Result, error) {
	d.log.Info().Str("entity_type", kind).Int("entity_id", id).Msg("capture requested")
	return d.Enroll(id, maxRetries, perTryTimeout)
}

// Cancel sends the cancel command, aborting an enrollment running on the
// reader's own keypad or from another host session.
func (d *Driver) Cancel() error {
	err := d.link.Exchange(func(io *serialport.LineIO) error {
		return io.WriteLine(cmdCancel)
	})
	if errors.Is(err, serialport.ErrNotConnected) {
		return ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceIO, err)
	}
	return nil
}

// command writes cmd and reads one acknowledgement line, whose content is
// not interpreted.
func (d *Driver) command(io *serialport.LineIO, cmd string) error {
	if err := io.WriteLine(cmd); err != nil {
		return err
	}
	if _, err := io.ReadLine(d.opt.AckTimeout); err != nil {
		return err
	}
	return nil
}

func (d *Driver) exchangeFailed(err error) (Result, error) {
	if errors.Is(err, serialport.ErrNotConnected) {
		return Result{Message: msgNotConnected}, ErrNotConnected
	}
	return Result{Message: "Error: " + err.Error()}, fmt.Errorf("%w: %v", ErrDeviceIO, err)
}

func formatID(id *int) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrSlotOutOfRange):
		return "invalid"
	case errors.Is(err, ErrDeviceAborted):
		return "aborted"
	case errors.Is(err, ErrIdentifierMismatch):
		return "mismatch"
	case errors.Is(err, ErrProtocolTimeout):
		return "timeout"
	case errors.Is(err, ErrEnrollFailed):
		return "failed"
	default:
		return "io_error"
	}
}
