package serialport

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
	"go.bug.st/serial/enumerator"
)

const portsCacheKey = "ports"

// sysClassTTY is where Linux links each tty to its parent device.
const sysClassTTY = "/sys/class/tty"

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Device       string `json:"port"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Location     string `json:"location,omitempty"`
	IsUSB        bool   `json:"is_usb"`
}

// ListPorts returns the available ports, served from a short-lived cache.
// It never fails; enumeration errors yield an empty list.
func (l *Link) ListPorts() []PortInfo {
	if v, ok := l.ports.Get(portsCacheKey); ok {
		return clonePorts(v.([]PortInfo))
	}
	return l.RefreshPorts()
}

// RefreshPorts re-enumerates the host and replaces the cached list.
func (l *Link) RefreshPorts() []PortInfo {
	ports, err := l.enumerate()
	if err != nil {
		l.log.Warn().Err(err).Msg("port enumeration failed")
		ports = nil
	}
	if ports == nil {
		ports = []PortInfo{}
	}
	l.ports.Set(portsCacheKey, ports, cache.DefaultExpiration)
	return clonePorts(ports)
}

func clonePorts(in []PortInfo) []PortInfo {
	out := make([]PortInfo, len(in))
	copy(out, in)
	return out
}

// enumerator has no manufacturer or location; on Linux those come from
// sysfs and stay empty elsewhere.
func enumerateSerial() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		p := PortInfo{
			Device:       d.Name,
			Name:         filepath.Base(d.Name),
			Description:  d.Product,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB {
			p.Manufacturer, p.Location = usbDetails(sysClassTTY, d.Name)
		}
		out = append(out, p)
	}
	return out, nil
}

// usbDetails walks up from the tty's device link to the USB device node
// (the first ancestor with an idVendor file). Location is that node's
// bus path, e.g. "1-1.2".
func usbDetails(ttyRoot, dev string) (manufacturer, location string) {
	dir, err := filepath.EvalSymlinks(filepath.Join(ttyRoot, filepath.Base(dev), "device"))
	if err != nil {
		return "", ""
	}
	for i := 0; i < 3; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			b, _ := os.ReadFile(filepath.Join(dir, "manufacturer"))
			return strings.TrimSpace(string(b)), filepath.Base(dir)
		}
		dir = filepath.Dir(dir)
	}
	return "", ""
}
