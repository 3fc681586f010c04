package daemon

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/instrument-dsl/pica/pkg/config"
	"github.com/instrument-dsl/pica/pkg/job"
	"github.com/instrument-dsl/pica/pkg/version"
)

type statusResponse struct {
	Version           string     `json:"version"`
	Adapter           string     `json:"adapter"`
	PollInterval      string     `json:"pollInterval"`
	TemperatureKelvin *float64   `json:"temperatureKelvin,omitempty"`
	HeaterPercent     *float64   `json:"heaterPercent,omitempty"`
	Job               *jobStatus `json:"job,omitempty"`
}

func getStatus(c *gin.Context) {
	resp := statusResponse{
		Version:      version.Version,
		Adapter:      conf.Adapter(),
		PollInterval: conf.PollInterval().String(),
	}

	js := getJobStatus()
	if js.Kind != "" || js.Phase != "Idle" {
		resp.Job = js
	}

	jobMu.Lock()
	if haveTemperature {
		t, h := lastTemperature, lastHeaterPct
		resp.TemperatureKelvin = &t
		resp.HeaterPercent = &h
	}
	jobMu.Unlock()

	c.IndentedJSON(http.StatusOK, resp)
}

func getConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, config.NewRawFileConfigFromConfig(conf))
}

func setPollInterval(c *gin.Context) {
	var secs int
	if err := c.BindJSON(&secs); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if secs < 1 || secs > 3600 {
		err := fmt.Errorf("poll interval must be between 1 and 3600 seconds, got %d", secs)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetPollInterval(time.Duration(secs) * time.Second)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	setLoopInterval(conf.PollInterval())
	// records taken under the old interval would misreport missed polls
	loopRecorder.ClearRecords()

	logrus.Infof("set poll interval to %ds", secs)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("poll interval set to %ds", secs))
}

func setMaxSafeTemp(c *gin.Context) {
	var kelvin float64
	if err := c.BindJSON(&kelvin); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if kelvin < 4 || kelvin > 800 {
		err := fmt.Errorf("max safe temperature must be between 4 and 800 K, got %g", kelvin)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetMaxSafeTemp(kelvin)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set max safe temperature to %g K", kelvin)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("max safe temperature set to %g K", kelvin))
}

func setCronExpr(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	nextRuns, err := schedule(string(b))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, nextRuns)
}

func getJob(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getJobStatus())
}

func putJob(c *gin.Context) {
	var p job.Params
	if err := c.BindJSON(&p); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := startJob(p); err != nil {
		status := http.StatusInternalServerError
		if err == ErrJobInProgress {
			status = http.StatusConflict
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	// Kick off the first pass immediately instead of waiting a full poll
	// interval. Runs detached since sweeps can dwell per point.
	go pollPassForced()

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("started %s for sample %q", p.Kind, p.SampleName))
}

func deleteJob(c *gin.Context) {
	if err := stopJob(); err != nil {
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "job stopped, instruments off")
}

func putJobPause(c *gin.Context) {
	if err := pauseJob(); err != nil {
		status := http.StatusNotFound
		if err == ErrJobPaused {
			status = http.StatusConflict
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "job paused")
}

func putJobResume(c *gin.Context) {
	if err := resumeJob(); err != nil {
		status := http.StatusNotFound
		if err != ErrNoJobRunning {
			status = http.StatusInternalServerError
		}
		c.IndentedJSON(status, err.Error())
		_ = c.AbortWithError(status, err)
		return
	}

	go pollPassForced()

	c.IndentedJSON(http.StatusOK, "job resumed")
}

type readingResponse struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
	At      string   `json:"at"`
}

// getReading serves the most recent logged data point of the running (or just
// finished) job.
func getReading(c *gin.Context) {
	jobMu.Lock()
	defer jobMu.Unlock()

	if current == nil || lastRow == nil {
		c.IndentedJSON(http.StatusNotFound, "no readings logged yet")
		return
	}
	c.IndentedJSON(http.StatusOK, readingResponse{
		Columns: current.params.Kind.Columns(),
		Values:  lastRow,
		At:      lastRowAt.Format(time.RFC3339),
	})
}

func getTemperature(c *gin.Context) {
	t, err := readTemperature()
	if err != nil {
		logrus.Errorf("temperature read failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.String(http.StatusOK, "%.4f", t)
}

func getIDN(c *gin.Context) {
	addr, err := strconv.Atoi(c.Query("address"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, "address query parameter must be an integer")
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	idn, err := bus.Query(addr, "*IDN?")
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.String(http.StatusOK, "%s", idn)
}

func getScan(c *gin.Context) {
	if jobActive() {
		c.IndentedJSON(http.StatusConflict, "cannot scan the bus while a job is running")
		return
	}
	c.IndentedJSON(http.StatusOK, bus.Scan())
}

type rawRequest struct {
	Address int    `json:"address"`
	Command string `json:"command"`
	Query   bool   `json:"query"`
}

func postRaw(c *gin.Context) {
	var req rawRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.Query {
		resp, err := bus.Query(req.Address, req.Command)
		if err != nil {
			c.IndentedJSON(http.StatusInternalServerError, err.Error())
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.String(http.StatusOK, "%s", resp)
		return
	}

	if err := bus.Command(req.Address, "%s", req.Command); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "ok")
}

func jobActive() bool {
	jobMu.Lock()
	defer jobMu.Unlock()
	return jobState.Phase.Active()
}

// getEvents streams hub events to the client as server-sent events.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
