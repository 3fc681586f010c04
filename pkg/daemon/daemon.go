package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/instrument-dsl/pica/pkg/config"
	"github.com/instrument-dsl/pica/pkg/events"
	"github.com/instrument-dsl/pica/pkg/gpib"
)

var (
	bus    *gpib.Controller
	conf   config.Config
	sseHub *events.EventHub

	jobScheduler *Scheduler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.GET("/status", getStatus)
	router.GET("/config", getConfig)
	router.PUT("/config/poll-interval", setPollInterval)
	router.PUT("/config/max-safe-temp", setMaxSafeTemp)
	router.PUT("/config/cron", setCronExpr)

	router.GET("/job", getJob)
	router.PUT("/job", putJob)
	router.DELETE("/job", deleteJob)
	router.PUT("/job/pause", putJobPause)
	router.PUT("/job/resume", putJobResume)

	router.GET("/temperature", getTemperature)
	router.GET("/reading", getReading)
	router.GET("/idn", getIDN)
	router.GET("/scan", getScan)
	router.POST("/raw", postRaw)

	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", putSchedule)
	router.POST("/schedule/postpone", postSchedulePostpone)
	router.POST("/schedule/skip", postScheduleSkip)

	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	fileConf := config.NewFileConfig(configPath)
	if err := fileConf.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.Fatalf("failed to parse config during startup: %v", err)
		}
		logrus.Infof("no config file at %s, writing defaults", configPath)
		if err := fileConf.Save(); err != nil {
			logrus.Fatalf("failed to write initial config: %v", err)
		}
	}
	conf = fileConf
	logrus.WithFields(fileConf.LogrusFields()).Infof("config loaded")

	setLoopInterval(conf.PollInterval())

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			setLoopInterval(conf.PollInterval())
			loopRecorder.ClearRecords()
			logrus.Infof("config reloaded")
		}
	}()

	sseHub = events.NewEventHub()

	endpoint := conf.Adapter()
	if endpoint == "" {
		found, err := gpib.FindAdapter()
		if err != nil {
			logrus.Fatalf("no GPIB adapter configured and discovery failed: %v", err)
		}
		logrus.Infof("discovered GPIB adapter at %s", found)
		endpoint = found
	}

	var err error
	bus, err = gpib.Open(endpoint)
	if err != nil {
		logrus.Fatalf("failed to open GPIB adapter %s: %v", endpoint, err)
	}
	if ver, err := bus.Version(); err == nil {
		logrus.WithField("version", ver).Info("GPIB controller ready")
	}

	initJobState(configPath + ".state.json")
	initScheduler(configPath + ".schedule.json")

	srv := &http.Server{
		Handler: router,
	}

	// A leftover socket from an unclean exit blocks the listener.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	go func() {
		logrus.Debugln("acquisition loop starts")

		runLoop()

		logrus.Errorf("acquisition loop exited unexpectedly")
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	jobScheduler.Stop()

	// The hardware must never be left heating or sourcing without the daemon.
	var errs error
	errs = multierr.Append(errs, shutdownActiveJob())

	logrus.Info("closing GPIB adapter")
	errs = multierr.Append(errs, bus.Close())
	if errs != nil {
		logrus.Errorf("shutdown finished with errors: %v", errs)
	}

	logrus.Info("exiting")
	return nil
}
