package gpib

import (
	"github.com/sirupsen/logrus"
)

// ScanResult is one instrument found during a bus scan.
type ScanResult struct {
	Addr int    `json:"addr"`
	IDN  string `json:"idn"`
}

// Scan sweeps the GPIB bus and returns every address that answers *IDN?.
// Addresses that time out are skipped silently; anything else on the bus is
// left untouched.
func (c *Controller) Scan() []ScanResult {
	var found []ScanResult
	for addr := minPrimaryAddr + 1; addr <= maxPrimaryAddr; addr++ {
		idn, err := c.Query(addr, "*IDN?")
		if err != nil || idn == "" {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"addr": addr,
			"idn":  idn,
		}).Debug("instrument found")
		found = append(found, ScanResult{Addr: addr, IDN: idn})
	}
	return found
}
