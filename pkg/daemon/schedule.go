package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/instrument-dsl/pica/pkg/events"
	"github.com/instrument-dsl/pica/pkg/job"
)

// Scheduled jobs rerun a stored set of job parameters on a cron expression,
// e.g. a nightly lock-in log or a repeated temperature cycle.
var (
	scheduleMu       = &sync.Mutex{}
	scheduledParams  *job.Params
	scheduledJobPath = ""
)

func initScheduler(path string) {
	scheduledJobPath = path

	jobScheduler = NewScheduler(
		runScheduledJob,
		scheduledJobPreCheck,
		func(data any) {
			runAt, _ := data.(time.Time)
			sseHub.Publish(events.JobAction, events.JobActionEvent{
				Action:  "schedule-upcoming",
				Message: fmt.Sprintf("Scheduled job starts at %s", runAt.Format("Jan _2 15:04")),
				Ts:      time.Now().Unix(),
			})
		},
		func(data any) {
			err, _ := data.(error)
			logrus.WithError(err).Error("scheduled job")
		},
	)

	b, err := os.ReadFile(path)
	if err == nil {
		var p job.Params
		if err := json.Unmarshal(b, &p); err != nil {
			logrus.WithError(err).Warn("failed to unmarshal scheduled job params")
		} else {
			scheduledParams = &p
		}
	} else if !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to read scheduled job params")
	}

	if expr := conf.Cron(); expr != "" && scheduledParams != nil {
		if err := jobScheduler.Schedule(expr); err != nil {
			logrus.WithError(err).Error("stored cron expression no longer parses, scheduling disabled")
			return
		}
		jobScheduler.Start()
		next, _ := jobScheduler.Status()
		logrus.WithFields(logrus.Fields{
			"cron": expr,
			"kind": scheduledParams.Kind,
			"next": next.Format(time.DateTime),
		}).Info("job schedule restored")
	}
}

func runScheduledJob() error {
	scheduleMu.Lock()
	p := scheduledParams
	scheduleMu.Unlock()
	if p == nil {
		return fmt.Errorf("no job parameters stored for the schedule")
	}
	if err := startJob(*p); err != nil {
		return err
	}
	go pollPassForced()
	return nil
}

// scheduledJobPreCheck holds a scheduled start back while the instruments
// are still busy. The scheduler retries for a while before giving up.
func scheduledJobPreCheck() error {
	if jobActive() {
		return fmt.Errorf("a job is still running")
	}
	return nil
}

func persistScheduledParams() {
	if scheduledJobPath == "" {
		return
	}
	if scheduledParams == nil {
		if err := os.Remove(scheduledJobPath); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Error("remove scheduled job params")
		}
		return
	}
	b, err := json.MarshalIndent(scheduledParams, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal scheduled job params")
		return
	}
	if err := os.WriteFile(scheduledJobPath, b, 0644); err != nil {
		logrus.WithError(err).Error("write scheduled job params")
	}
}

// schedule sets the cron expression for scheduled jobs and returns the next
// run times. An empty expression disables the schedule.
func schedule(cronExpr string) ([]time.Time, error) {
	if cronExpr == "" {
		prevCron := conf.Cron()
		if prevCron == "" {
			// Already disabled
			return nil, nil
		}

		conf.SetCron("")
		if err := conf.Save(); err != nil {
			logrus.WithError(err).Error("failed to save config")
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
		jobScheduler.Stop()
		sseHub.Publish(events.JobAction, events.JobActionEvent{
			Action:  "schedule-disable",
			Message: "Job schedule disabled",
			Ts:      time.Now().Unix(),
		})
		return nil, nil
	}

	scheduleMu.Lock()
	haveParams := scheduledParams != nil
	scheduleMu.Unlock()
	if !haveParams {
		return nil, fmt.Errorf("no job parameters stored; set the schedule with parameters first")
	}

	// Validate cron expression
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	conf.SetCron(cronExpr)
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	if err := jobScheduler.Schedule(cronExpr); err != nil {
		logrus.WithError(err).Error("failed to schedule job")
		return nil, err
	}
	jobScheduler.Start()

	// generate three next run times for response
	nextRuns := []time.Time{}
	now := time.Now()
	for i := 0; i < 3; i++ {
		next := sched.Next(now)
		nextRuns = append(nextRuns, next)
		now = next
	}

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "schedule",
		Message: fmt.Sprintf("Job scheduled at %s", nextRuns[0].Format("Jan _2 15:04")),
		Ts:      time.Now().Unix(),
	})

	return nextRuns, nil
}

func postpone(duration time.Duration) error {
	if err := jobScheduler.Postpone(duration); err != nil {
		logrus.WithError(err).Error("failed to postpone scheduled job")
		return err
	}

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "schedule-postpone",
		Message: fmt.Sprintf("Scheduled job postponed for %s", duration.String()),
		Ts:      time.Now().Unix(),
	})
	return nil
}

func skipNextSchedule() error {
	if err := jobScheduler.Skip(); err != nil {
		logrus.WithError(err).Error("failed to skip next scheduled job")
		return err
	}

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "schedule-skip",
		Message: "Next scheduled job skipped",
		Ts:      time.Now().Unix(),
	})
	return nil
}

// ===== HTTP handlers =====

type scheduleRequest struct {
	Cron   string      `json:"cron"`
	Params *job.Params `json:"params,omitempty"`
}

type scheduleResponse struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
	Params   *job.Params `json:"params,omitempty"`
}

func getSchedule(c *gin.Context) {
	scheduleMu.Lock()
	p := scheduledParams
	scheduleMu.Unlock()

	resp := scheduleResponse{Cron: conf.Cron(), Params: p}
	if next, running := jobScheduler.Status(); running && !next.IsZero() {
		resp.NextRuns = []time.Time{next}
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func putSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.Params != nil {
		if err := req.Params.Validate(); err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		scheduleMu.Lock()
		scheduledParams = req.Params
		persistScheduledParams()
		scheduleMu.Unlock()
	}

	nextRuns, err := schedule(req.Cron)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, scheduleResponse{Cron: req.Cron, NextRuns: nextRuns, Params: req.Params})
}

func postSchedulePostpone(c *gin.Context) {
	var secs int
	if err := c.BindJSON(&secs); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := postpone(time.Duration(secs) * time.Second); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "postponed")
}

func postScheduleSkip(c *gin.Context) {
	if err := skipNextSchedule(); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "skipped")
}
