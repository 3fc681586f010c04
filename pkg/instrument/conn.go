// Package instrument contains thin SCPI drivers for the lab instruments PICA
// controls. Drivers hold a Conn and translate method calls into the command
// strings each vendor's manual defines; they have no policy of their own.
package instrument

import (
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Conn is the connection a driver needs: write a command, or write a query
// and read its response. *gpib.Instrument implements it, as does MockConn.
// The Query method also satisfies gotmc/query's Queryer, so drivers can use
// its typed helpers directly on a Conn.
type Conn interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// parseFloatField splits a comma-separated SCPI response and parses field i.
// Several Keithleys answer READ?-style queries with "reading,timestamp,status"
// tuples.
func parseFloatField(response string, i int) (float64, error) {
	fields := strings.Split(strings.TrimSpace(response), ",")
	if i >= len(fields) {
		return 0, pkgerrors.Errorf("response %q has only %d fields, wanted field %d", response, len(fields), i)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse field %d of %q", i, response)
	}
	return v, nil
}
