package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/instrument-dsl/pica/pkg/config"
	"github.com/instrument-dsl/pica/pkg/job"
)

// ScanResult is one instrument found by a bus scan.
type ScanResult struct {
	Addr int    `json:"addr"`
	IDN  string `json:"idn"`
}

// JobStatus mirrors the daemon's view of the active job.
type JobStatus struct {
	Kind       string  `json:"kind"`
	Sample     string  `json:"sample"`
	Phase      string  `json:"phase"`
	Paused     bool    `json:"paused"`
	StartedAt  string  `json:"startedAt"`
	Setpoint   float64 `json:"setpoint,omitempty"`
	PointsDone int     `json:"pointsDone"`
	DataFile   string  `json:"dataFile,omitempty"`
	Message    string  `json:"message,omitempty"`
	LastError  string  `json:"lastError,omitempty"`
	CanPause   bool    `json:"canPause"`
	CanStop    bool    `json:"canStop"`
}

// StatusResponse is the daemon-wide status.
type StatusResponse struct {
	Version           string     `json:"version"`
	Adapter           string     `json:"adapter"`
	PollInterval      string     `json:"pollInterval"`
	TemperatureKelvin *float64   `json:"temperatureKelvin,omitempty"`
	HeaterPercent     *float64   `json:"heaterPercent,omitempty"`
	Job               *JobStatus `json:"job,omitempty"`
}

func (c *Client) GetStatus() (*StatusResponse, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get daemon status")
	}

	var st StatusResponse
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daemon status: %w", err)
	}

	return &st, nil
}

func (c *Client) GetJob() (*JobStatus, error) {
	ret, err := c.Get("/job")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get job status")
	}

	var st JobStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}

	return &st, nil
}

func (c *Client) StartJob(p job.Params) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return c.Put("/job", string(payload))
}

func (c *Client) StopJob() (string, error)   { return c.Delete("/job") }
func (c *Client) PauseJob() (string, error)  { return c.Put("/job/pause", "") }
func (c *Client) ResumeJob() (string, error) { return c.Put("/job/resume", "") }

func (c *Client) GetTemperature() (float64, error) {
	ret, err := c.Get("/temperature")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get temperature")
	}
	k, err := strconv.ParseFloat(ret, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse temperature response")
	}
	return k, nil
}

// Reading is the most recent logged data point of the running job.
type Reading struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
	At      string   `json:"at"`
}

func (c *Client) GetReading() (*Reading, error) {
	ret, err := c.Get("/reading")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get reading")
	}

	var r Reading
	if err := json.Unmarshal([]byte(ret), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal reading")
	}

	return &r, nil
}

func (c *Client) Scan() ([]ScanResult, error) {
	ret, err := c.Get("/scan")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to scan bus")
	}

	var results []ScanResult
	if err := json.Unmarshal([]byte(ret), &results); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal scan results")
	}

	return results, nil
}

func (c *Client) IDN(address int) (string, error) {
	ret, err := c.Get("/idn?address=" + strconv.Itoa(address))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to identify instrument at address %d", address)
	}
	return ret, nil
}

// RawRequest is a raw bus passthrough.
type RawRequest struct {
	Address int    `json:"address"`
	Command string `json:"command"`
	Query   bool   `json:"query"`
}

// Raw sends a raw SCPI command to an instrument. If query is true the
// instrument response is returned.
func (c *Client) Raw(address int, command string, query bool) (string, error) {
	payload, err := json.Marshal(RawRequest{Address: address, Command: command, Query: query})
	if err != nil {
		return "", err
	}
	return c.Send("POST", "/raw", string(payload))
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) SetPollInterval(seconds int) (string, error) {
	return c.Put("/config/poll-interval", strconv.Itoa(seconds))
}

func (c *Client) SetMaxSafeTemp(kelvin float64) (string, error) {
	return c.Put("/config/max-safe-temp", strconv.FormatFloat(kelvin, 'f', -1, 64))
}

func (c *Client) SetCron(expr string) (string, error) {
	return c.Put("/config/cron", expr)
}

// ScheduleRequest sets the cron expression and, optionally, the job
// parameters the schedule reruns.
type ScheduleRequest struct {
	Cron   string      `json:"cron"`
	Params *job.Params `json:"params,omitempty"`
}

// ScheduleResponse describes the active schedule.
type ScheduleResponse struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
	Params   *job.Params `json:"params,omitempty"`
}

func (c *Client) GetSchedule() (*ScheduleResponse, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}

	var resp ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}

	return &resp, nil
}

func (c *Client) SetSchedule(req ScheduleRequest) (*ScheduleResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ret, err := c.Put("/schedule", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}

	var resp ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}

	return &resp, nil
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	return c.Send("POST", "/schedule/postpone", strconv.Itoa(int(d/time.Second)))
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Send("POST", "/schedule/skip", "")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	if len(ret) >= 2 && ret[0] == '"' && ret[len(ret)-1] == '"' {
		ret = ret[1 : len(ret)-1]
	}
	return ret, nil
}
