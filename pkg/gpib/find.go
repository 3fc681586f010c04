package gpib

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// USBSerialDevice describes a tty that sits on a USB device, with enough
// identifying information to tell a GPIB adapter from everything else.
type USBSerialDevice struct {
	Dev          string // device name, e.g. ttyUSB0
	Path         string // resolved /sys path
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	Serial       string
}

// FindAdapter returns the device path of the single attached Prologix-style
// adapter. It errors if none or more than one candidate is found, so a daemon
// never silently picks the wrong port.
func FindAdapter() (string, error) {
	devs, err := ListUSBSerialDevices()
	if err != nil {
		return "", err
	}

	var candidates []USBSerialDevice
	for _, d := range devs {
		if isLikelyAdapter(d) {
			candidates = append(candidates, d)
		}
	}

	switch len(candidates) {
	case 0:
		return "", pkgerrors.New("no GPIB adapter found on USB")
	case 1:
		return "/dev/" + candidates[0].Dev, nil
	default:
		return "", pkgerrors.Errorf("multiple GPIB adapter candidates found: %v", candidates)
	}
}

// Prologix GPIB-USB adapters enumerate as FTDI serial devices.
func isLikelyAdapter(d USBSerialDevice) bool {
	if strings.Contains(d.Product, "GPIB") {
		return true
	}
	return d.VendorID == "0403" // FTDI
}

// ListUSBSerialDevices walks /sys/class/tty and returns every tty that is
// backed by a USB device, with its USB identification strings.
func ListUSBSerialDevices() ([]USBSerialDevice, error) {
	const sysClassTTY = "/sys/class/tty/"

	entries, err := os.ReadDir(sysClassTTY)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read /sys/class/tty")
	}

	var devs []USBSerialDevice
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(sysClassTTY, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			logrus.WithError(err).Debugf("skipping %s", path)
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}

		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			logrus.WithError(err).Debugf("no device dir under %s", abs)
			continue
		}

		d := USBSerialDevice{Dev: e.Name(), Path: abs}
		// The USB descriptor files live one level above the interface dir.
		readUSBInfo(filepath.Dir(dev), &d)
		devs = append(devs, d)
	}
	return devs, nil
}

func readUSBInfo(dir string, d *USBSerialDevice) {
	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logrus.WithError(err).Debugf("failed to read usb attribute %s", name)
		}
		return strings.TrimSpace(string(b))
	}
	d.ProductID = read("idProduct")
	d.VendorID = read("idVendor")
	d.Manufacturer = read("manufacturer")
	d.Product = read("product")
	d.Serial = read("serial")
}
