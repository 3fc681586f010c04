package daemon

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/instrument-dsl/pica/pkg/datalog"
	"github.com/instrument-dsl/pica/pkg/events"
	"github.com/instrument-dsl/pica/pkg/instrument"
	"github.com/instrument-dsl/pica/pkg/job"
	"github.com/instrument-dsl/pica/pkg/tempcontrol"
)

// Lakeshore accessors (function vars) for test seam; default to the bus-backed
// instrument at the configured address.
var (
	readTemperature  = func() (float64, error) { return lakeshore().Temperature() }
	readHeaterOutput = func() (float64, error) { return lakeshore().HeaterOutput() }
	configureRamp    = func(setpoint, rate float64, rng instrument.HeaterRange) error {
		return lakeshore().ConfigureRamp(setpoint, rate, rng)
	}
	heaterOff = func() error { return lakeshore().StopRamp() }
)

func lakeshore() *instrument.Lakeshore350 {
	return instrument.NewLakeshore350(bus.Instrument(conf.LakeshoreAddress()))
}

var (
	jobMu        = &sync.Mutex{}
	jobState     = &tempcontrol.State{Phase: tempcontrol.PhaseIdle}
	jobStatePath = "" // set during daemon startup; empty disables persistence

	current *activeJob

	// last readings for status endpoints, valid while a temp job runs
	lastTemperature float64
	lastHeaterPct   float64
	haveTemperature bool

	// most recent logged data row, served by /reading
	lastRow   []string
	lastRowAt time.Time
)

// activeJob carries everything the advance loop needs to push the running
// measurement forward one point at a time.
type activeJob struct {
	params job.Params
	writer *datalog.Writer

	sweep    []float64
	sweepIdx int

	pointsDone int
	window     []float64 // stabilizing window of recent temperatures

	// prepare configures the instruments right before the first measurement
	// pass. For temperature-controlled jobs this runs only once the
	// temperature is stable, matching the instrument arming order.
	prepare  func() error
	prepared bool

	// measure takes one reading. The returned row excludes the leading
	// timestamp and elapsed-seconds columns. done means the job completed
	// normally on this pass.
	measure func(tempK float64) (row []string, done bool, err error)

	// shutdown best-effort turns source outputs off.
	shutdown func() error
}

var ErrJobInProgress = &jobError{"a job is already running"}
var ErrNoJobRunning = &jobError{"no job running"}
var ErrJobPaused = &jobError{"job is paused"}

type jobError struct{ msg string }

func (e *jobError) Error() string { return e.msg }

// persistedJob is the on-disk snapshot of a running job. A daemon restart
// loads it back paused so heating never silently resumes.
type persistedJob struct {
	State      *tempcontrol.State `json:"state"`
	Params     job.Params         `json:"params"`
	DataFile   string             `json:"dataFile"`
	PointsDone int                `json:"pointsDone"`
	SweepIndex int                `json:"sweepIndex"`
}

func initJobState(path string) {
	jobStatePath = path
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		logrus.WithError(err).Warn("failed to read job state")
		return
	}
	var pj persistedJob
	if err := json.Unmarshal(b, &pj); err != nil {
		logrus.WithError(err).Warn("failed to unmarshal job state")
		return
	}
	if pj.State == nil || !pj.State.Phase.Active() {
		return
	}

	// Mid-flight job from a previous daemon run. Do not resume on our own;
	// the instruments were turned off at shutdown.
	pj.State.Paused = true
	jobState = pj.State

	aj, err := buildJob(pj.Params)
	if err != nil {
		logrus.WithError(err).Warn("failed to rebuild persisted job, dropping it")
		jobState = &tempcontrol.State{Phase: tempcontrol.PhaseIdle}
		return
	}
	aj.pointsDone = pj.PointsDone
	aj.sweepIdx = pj.SweepIndex
	current = aj

	logrus.WithFields(logrus.Fields{
		"kind":  pj.Params.Kind,
		"phase": pj.State.Phase,
	}).Info("restored a mid-flight job in paused state, use resume to continue")
}

func persistJobState() {
	if jobStatePath == "" {
		return
	}
	pj := persistedJob{State: jobState}
	if current != nil {
		pj.Params = current.params
		pj.PointsDone = current.pointsDone
		pj.SweepIndex = current.sweepIdx
		if current.writer != nil {
			pj.DataFile = current.writer.Path()
		}
	}
	b, err := json.MarshalIndent(pj, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal job state")
		return
	}
	if err := os.WriteFile(jobStatePath, b, 0644); err != nil {
		logrus.WithError(err).Error("write job state")
	}
}

// startJob validates params, opens the data file, configures the instruments
// and hands the job to the advance loop.
func startJob(p job.Params) error {
	jobMu.Lock()
	defer jobMu.Unlock()

	if jobState.Phase.Active() {
		return ErrJobInProgress
	}
	if err := p.Validate(); err != nil {
		return err
	}

	aj, err := buildJob(p)
	if err != nil {
		return err
	}

	w, err := openDataFile(p)
	if err != nil {
		return err
	}
	aj.writer = w

	st := &tempcontrol.State{
		Phase:      tempcontrol.PhaseMeasuring,
		StartedAt:  time.Now(),
		Tolerances: conf.Tolerances(),
	}

	if p.Kind.NeedsTempControl() {
		rng, err := instrument.ParseHeaterRange(p.HeaterRange)
		if err != nil {
			_ = w.Close()
			return err
		}
		rate := p.RampRate
		if rate <= 0 {
			rate = 2 // K/min, a conservative default for stabilize-first jobs
		}
		if err := configureRamp(p.Setpoint, rate, rng); err != nil {
			_ = w.Close()
			return err
		}
		st.Setpoint = p.Setpoint
		st.RampRate = rate
		st.HeaterRange = rng.String()
		if p.Kind == job.KindDeltaRT {
			// Measure only once the temperature has settled.
			st.Phase = tempcontrol.PhaseRamping
		}
	}

	current = aj
	jobState = st
	haveTemperature = false
	lastRow = nil
	persistJobState()

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "start",
		Kind:    string(p.Kind),
		Message: fmt.Sprintf("Started %s for sample %q, logging to %s", p.Kind, p.SampleName, w.Path()),
		Ts:      time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"kind":     p.Kind,
		"sample":   p.SampleName,
		"dataFile": w.Path(),
		"phase":    st.Phase,
	}).Info("job started")

	return nil
}

func openDataFile(p job.Params) (*datalog.Writer, error) {
	now := time.Now()
	path := filepath.Join(conf.DataDir(), datalog.FileName(p.SampleName, string(p.Kind), now))

	comments := []string{
		fmt.Sprintf("Sample: %s", p.SampleName),
		fmt.Sprintf("Job: %s", p.Kind),
		fmt.Sprintf("Started: %s", now.Format(time.RFC3339)),
	}
	if p.Kind.NeedsTempControl() {
		comments = append(comments, fmt.Sprintf("Setpoint: %.3f K, ramp %.3f K/min, heater %s", p.Setpoint, p.RampRate, p.HeaterRange))
	}
	switch p.Kind {
	case job.KindIVSweep, job.KindDeltaRT:
		comments = append(comments, fmt.Sprintf("Source current: max %.6e A, step %.6e A, compliance %.3f V", p.MaxCurrent, p.CurrentStep, p.Compliance))
	case job.KindHighResIV, job.KindCVSweep:
		comments = append(comments, fmt.Sprintf("Voltage sweep: %.4f V to %.4f V in %d steps", p.StartVoltage, p.StopVoltage, p.VoltageSteps))
	}

	return datalog.Create(path, comments, p.Kind.Columns())
}

// buildJob binds the instruments for the kind and returns the closures the
// advance loop drives. It does not talk to the hardware yet.
//
//nolint:gocyclo
func buildJob(p job.Params) (*activeJob, error) {
	aj := &activeJob{params: p}
	settle := func() {
		if p.SettleSeconds > 0 {
			time.Sleep(time.Duration(p.SettleSeconds * float64(time.Second)))
		}
	}

	switch p.Kind {
	case job.KindIVSweep:
		aj.sweep = job.BipolarSweep(p.MaxCurrent, p.CurrentStep)

		// setCurrent/readVoltage abstract over the two source/meter pairings.
		var setCurrent func(float64) error
		var readVoltage func() (float64, error)

		if p.UseNanovolt {
			cs := instrument.NewKeithley6221(bus.Instrument(conf.CurrentSourceAddress()))
			nv := instrument.NewKeithley2182(bus.Instrument(conf.NanovoltAddress()))
			aj.prepare = func() error {
				if err := cs.ConfigureDC(p.Compliance); err != nil {
					return err
				}
				if err := nv.Configure(); err != nil {
					return err
				}
				return cs.EnableOutput()
			}
			setCurrent = cs.SetCurrent
			readVoltage = nv.ReadVoltage
			aj.shutdown = func() error {
				return multierr.Append(cs.SetCurrent(0), cs.DisableOutput())
			}
		} else {
			sm := instrument.NewKeithley2400(bus.Instrument(conf.SourceMeterAddress()))
			aj.prepare = func() error {
				if err := sm.ConfigureCurrentSource(p.MaxCurrent, p.Compliance); err != nil {
					return err
				}
				return sm.EnableOutput()
			}
			setCurrent = sm.SetCurrent
			readVoltage = func() (float64, error) {
				v, _, err := sm.Read()
				return v, err
			}
			aj.shutdown = sm.Shutdown
		}

		aj.measure = func(_ float64) ([]string, bool, error) {
			if aj.sweepIdx >= len(aj.sweep) {
				return nil, true, nil
			}
			i := aj.sweep[aj.sweepIdx]
			if err := setCurrent(i); err != nil {
				return nil, false, err
			}
			settle()
			v, err := readVoltage()
			if err != nil {
				return nil, false, err
			}
			aj.sweepIdx++
			row := []string{
				fmt.Sprintf("%.6e", i),
				fmt.Sprintf("%.6e", v),
				fmt.Sprintf("%.6e", resistance(v, i)),
			}
			return row, aj.sweepIdx >= len(aj.sweep), nil
		}

	case job.KindHighResIV:
		em := instrument.NewKeithley6517B(bus.Instrument(conf.ElectrometerAddress()))
		aj.sweep = job.LinearSweep(p.StartVoltage, p.StopVoltage, p.VoltageSteps)
		aj.prepare = func() error {
			if err := em.Reset(); err != nil {
				return err
			}
			if err := em.ConfigureCurrent(); err != nil {
				return err
			}
			if err := em.ZeroCorrect(); err != nil {
				return err
			}
			return em.EnableSource()
		}
		aj.measure = func(_ float64) ([]string, bool, error) {
			if aj.sweepIdx >= len(aj.sweep) {
				return nil, true, nil
			}
			v := aj.sweep[aj.sweepIdx]
			if err := em.SetSourceVoltage(v); err != nil {
				return nil, false, err
			}
			settle()
			i, err := em.Current()
			if err != nil {
				return nil, false, err
			}
			aj.sweepIdx++
			row := []string{
				fmt.Sprintf("%.4f", v),
				fmt.Sprintf("%.6e", i),
				fmt.Sprintf("%.6e", resistance(v, i)),
			}
			return row, aj.sweepIdx >= len(aj.sweep), nil
		}
		aj.shutdown = em.Shutdown

	case job.KindDeltaRT:
		cs := instrument.NewKeithley6221(bus.Instrument(conf.CurrentSourceAddress()))
		aj.prepare = func() error {
			return cs.ArmDelta(p.MaxCurrent, p.Compliance)
		}
		aj.measure = func(tempK float64) ([]string, bool, error) {
			v, err := cs.DeltaReading()
			if err != nil {
				return nil, false, err
			}
			row := []string{
				fmt.Sprintf("%.4f", tempK),
				fmt.Sprintf("%.6e", v),
				fmt.Sprintf("%.6e", resistance(v, p.MaxCurrent)),
			}
			return row, false, nil
		}
		aj.shutdown = cs.AbortDelta

	case job.KindPyro:
		em := instrument.NewKeithley6517B(bus.Instrument(conf.ElectrometerAddress()))
		aj.prepare = func() error {
			if err := em.Reset(); err != nil {
				return err
			}
			if err := em.ConfigureCurrent(); err != nil {
				return err
			}
			return em.ZeroCorrect()
		}
		aj.measure = func(tempK float64) ([]string, bool, error) {
			i, err := em.Current()
			if err != nil {
				return nil, false, err
			}
			row := []string{
				fmt.Sprintf("%.4f", tempK),
				fmt.Sprintf("%.6e", i),
			}
			// Done once the ramp has carried us to the setpoint.
			done := math.Abs(tempK-p.Setpoint) < conf.Tolerances().Ramp
			return row, done, nil
		}
		aj.shutdown = em.Shutdown

	case job.KindTempRamp:
		aj.prepare = func() error { return nil }
		aj.measure = func(tempK float64) ([]string, bool, error) {
			h, err := readHeaterOutput()
			if err != nil {
				return nil, false, err
			}
			row := []string{
				fmt.Sprintf("%.4f", tempK),
				fmt.Sprintf("%.2f", h),
			}
			done := math.Abs(tempK-p.Setpoint) < conf.Tolerances().Ramp
			return row, done, nil
		}
		aj.shutdown = func() error { return nil }

	case job.KindCVSweep:
		lcr := instrument.NewKeysightE4980A(bus.Instrument(conf.LCRMeterAddress()))
		aj.sweep = job.LinearSweep(p.StartVoltage, p.StopVoltage, p.VoltageSteps)
		aj.prepare = func() error {
			if err := lcr.ConfigureCV(p.Frequency, p.ACLevel); err != nil {
				return err
			}
			return lcr.BiasOn()
		}
		aj.measure = func(_ float64) ([]string, bool, error) {
			if aj.sweepIdx >= len(aj.sweep) {
				return nil, true, nil
			}
			v := aj.sweep[aj.sweepIdx]
			if err := lcr.SetBias(v); err != nil {
				return nil, false, err
			}
			settle()
			cp, d, err := lcr.Fetch()
			if err != nil {
				return nil, false, err
			}
			aj.sweepIdx++
			row := []string{
				fmt.Sprintf("%.4f", v),
				fmt.Sprintf("%.6e", cp),
				fmt.Sprintf("%.6e", d),
			}
			return row, aj.sweepIdx >= len(aj.sweep), nil
		}
		aj.shutdown = func() error {
			return multierr.Append(lcr.SetBias(0), lcr.BiasOff())
		}

	case job.KindLockinLog:
		li := instrument.NewSR830(bus.Instrument(conf.LockinAddress()))
		aj.prepare = func() error { return nil }
		aj.measure = func(_ float64) ([]string, bool, error) {
			var a, b float64
			var err error
			if p.SnapRTheta {
				a, b, err = li.SnapRTheta()
			} else {
				a, b, err = li.SnapXY()
			}
			if err != nil {
				return nil, false, err
			}
			row := []string{
				fmt.Sprintf("%.6e", a),
				fmt.Sprintf("%.6e", b),
			}
			return row, false, nil
		}
		aj.shutdown = func() error { return nil }

	default:
		return nil, fmt.Errorf("unknown job kind %q", p.Kind)
	}

	return aj, nil
}

func resistance(v, i float64) float64 {
	if i == 0 {
		return math.NaN()
	}
	return v / i
}

// advanceJobWithinLoop pushes the active job forward by one pass. It is
// called by the poll loop with the loop lock held. Returns true if a job is
// active (not idle, errored or paused).
//
//nolint:gocyclo
func advanceJobWithinLoop(missedPolls bool) bool {
	jobMu.Lock()
	defer jobMu.Unlock()

	st := jobState
	if current == nil || !st.Phase.Active() || st.Paused {
		return false
	}
	prevPhase := st.Phase

	needsTemp := current.params.Kind.NeedsTempControl()
	var tempK float64
	if needsTemp {
		t, err := readTemperature()
		if err != nil {
			failJob(fmt.Errorf("temperature read failed: %w", err))
			publishPhaseChange(prevPhase)
			return false
		}
		tempK = t
		lastTemperature = t
		haveTemperature = true
		if h, err := readHeaterOutput(); err == nil {
			lastHeaterPct = h
		}
		sseHub.Publish(events.TempSample, events.TempSampleEvent{
			Kelvin:        tempK,
			HeaterPercent: lastHeaterPct,
			Ts:            time.Now().Unix(),
		})

		if tempK > st.Tolerances.MaxSafeTemp {
			failJob(fmt.Errorf("temperature %.2f K exceeds max safe %.2f K", tempK, st.Tolerances.MaxSafeTemp))
			publishPhaseChange(prevPhase)
			return false
		}
	}

	switch st.Phase {
	case tempcontrol.PhaseRamping:
		if math.Abs(tempK-st.Setpoint) < st.Tolerances.Ramp {
			logrus.WithFields(logrus.Fields{
				"temperature": tempK,
				"setpoint":    st.Setpoint,
			}).Info("ramp complete, waiting for temperature to stabilize")
			st.Phase = tempcontrol.PhaseStabilizing
			current.window = nil
		}

	case tempcontrol.PhaseStabilizing:
		// Stale readings after missed polls would make the window lie.
		if missedPolls && len(current.window) > 0 {
			logrus.Info("missed poll passes, restarting stability window")
			current.window = nil
		}
		current.window = append(current.window, tempK)
		if len(current.window) > st.Tolerances.StabilityChecks {
			current.window = current.window[1:]
		}
		if len(current.window) == st.Tolerances.StabilityChecks {
			spread := windowSpread(current.window)
			if spread < st.Tolerances.Stability {
				logrus.WithFields(logrus.Fields{
					"spread":    spread,
					"tolerance": st.Tolerances.Stability,
				}).Info("temperature stable, starting measurement")
				st.Phase = tempcontrol.PhaseMeasuring
			}
		}

	case tempcontrol.PhaseMeasuring:
		if !current.prepared {
			if err := current.prepare(); err != nil {
				failJob(fmt.Errorf("instrument setup failed: %w", err))
				break
			}
			current.prepared = true
		}

		row, done, err := current.measure(tempK)
		if err != nil {
			failJob(fmt.Errorf("measurement failed: %w", err))
			break
		}
		if len(row) > 0 {
			elapsed := time.Since(st.StartedAt).Seconds()
			values := append([]string{
				time.Now().Format("2006-01-02 15:04:05.000"),
				fmt.Sprintf("%.3f", elapsed),
			}, row...)
			if err := current.writer.WriteRow(values...); err != nil {
				failJob(fmt.Errorf("data write failed: %w", err))
				break
			}
			current.pointsDone++
			lastRow = values
			lastRowAt = time.Now()
			// Points arrive at poll-loop pace; flushing each one keeps the
			// file current for anyone tailing it.
			if err := current.writer.Flush(); err != nil {
				logrus.WithError(err).Warn("data file flush failed")
			}
		}
		if done {
			finishJob()
		}
	}

	persistJobState()
	publishPhaseChange(prevPhase)

	return jobState.Phase.Active() && !jobState.Paused
}

func windowSpread(w []float64) float64 {
	lo, hi := w[0], w[0]
	for _, v := range w[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// failJob moves the job to the error phase and turns the hardware off.
// Callers must hold jobMu.
func failJob(err error) {
	logrus.WithError(err).Error("job failed, shutting instruments down")
	jobState.LastError = err.Error()
	jobState.Phase = tempcontrol.PhaseError
	safeOff()
	closeWriter()
	persistJobState()
}

// finishJob completes the job normally. Callers must hold jobMu.
func finishJob() {
	jobState.Phase = tempcontrol.PhaseDone
	safeOff()
	closeWriter()
	persistJobState()

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "finish",
		Kind:    string(current.params.Kind),
		Message: fmt.Sprintf("%s finished with %d points in %s", current.params.Kind, current.pointsDone, formatDuration(time.Since(jobState.StartedAt))),
		Ts:      time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"kind":   current.params.Kind,
		"points": current.pointsDone,
	}).Info("job finished")
}

// safeOff best-effort turns everything that can heat or source off. It never
// returns early; every path is attempted.
func safeOff() {
	if current == nil {
		return
	}
	if current.params.Kind.NeedsTempControl() {
		if err := heaterOff(); err != nil {
			logrus.WithError(err).Error("failed to turn heater off")
		}
	}
	if current.shutdown != nil {
		if err := current.shutdown(); err != nil {
			logrus.WithError(err).Error("failed to turn source output off")
		}
	}
}

func closeWriter() {
	if current == nil || current.writer == nil {
		return
	}
	if err := current.writer.Close(); err != nil {
		logrus.WithError(err).Error("failed to close data file")
	}
}

func publishPhaseChange(prev tempcontrol.Phase) {
	st := jobState
	if st.Phase == prev {
		return
	}
	msg := ""
	switch st.Phase {
	case tempcontrol.PhaseStabilizing:
		msg = fmt.Sprintf("Within %.2f K of setpoint, stabilizing", st.Tolerances.Ramp)
	case tempcontrol.PhaseMeasuring:
		msg = "Measurement started"
	case tempcontrol.PhaseDone:
		msg = fmt.Sprintf("Completed in %s", formatDuration(time.Since(st.StartedAt)))
	case tempcontrol.PhaseError:
		msg = st.LastError
	}
	sseHub.Publish(events.JobPhase, events.JobPhaseEvent{
		From:    string(prev),
		To:      string(st.Phase),
		Message: msg,
		Ts:      time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"from": prev,
		"to":   st.Phase,
	}).Debug("job phase change")
}

func pauseJob() error {
	jobMu.Lock()
	defer jobMu.Unlock()
	if !jobState.Phase.Active() {
		return ErrNoJobRunning
	}
	if jobState.Paused {
		return ErrJobPaused
	}
	jobState.Paused = true
	jobState.PauseStartedAt = time.Now()
	// The heater keeps holding the setpoint while paused; only logging and
	// phase advancement stop.
	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "pause",
		Kind:    string(current.params.Kind),
		Message: fmt.Sprintf("Paused at phase %s", jobState.Phase),
		Ts:      time.Now().Unix(),
	})
	persistJobState()
	return nil
}

func resumeJob() error {
	jobMu.Lock()
	defer jobMu.Unlock()
	if !jobState.Phase.Active() {
		return ErrNoJobRunning
	}
	if !jobState.Paused {
		return nil
	}

	// A job restored from a previous daemon run has no open data file and
	// unconfigured instruments.
	if current.writer == nil {
		w, err := openDataFile(current.params)
		if err != nil {
			return err
		}
		current.writer = w
		current.prepared = false
		if current.params.Kind.NeedsTempControl() {
			rng, err := instrument.ParseHeaterRange(jobState.HeaterRange)
			if err != nil {
				rng = instrument.HeaterMedium
			}
			if err := configureRamp(jobState.Setpoint, jobState.RampRate, rng); err != nil {
				return err
			}
		}
	}

	// Stability judgments from before the pause are meaningless.
	if jobState.Phase == tempcontrol.PhaseStabilizing {
		current.window = nil
	}

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "resume",
		Kind:    string(current.params.Kind),
		Message: fmt.Sprintf("Resumed (paused since %s)", jobState.PauseStartedAt.Format("Jan _2 15:04")),
		Ts:      time.Now().Unix(),
	})

	jobState.Paused = false
	jobState.PauseStartedAt = time.Time{}
	persistJobState()
	return nil
}

func stopJob() error {
	jobMu.Lock()
	defer jobMu.Unlock()
	if !jobState.Phase.Active() {
		return ErrNoJobRunning
	}

	safeOff()
	closeWriter()

	sseHub.Publish(events.JobAction, events.JobActionEvent{
		Action:  "stop",
		Kind:    string(current.params.Kind),
		Message: fmt.Sprintf("Stopped at phase %s after %d points", jobState.Phase, current.pointsDone),
		Ts:      time.Now().Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"kind":   current.params.Kind,
		"points": current.pointsDone,
	}).Info("job stopped")

	jobState = &tempcontrol.State{Phase: tempcontrol.PhaseIdle}
	current = nil
	haveTemperature = false
	lastRow = nil
	persistJobState()
	return nil
}

// shutdownActiveJob is called on daemon exit. The job state is persisted
// as-is (a restart brings it back paused); the hardware is turned off.
func shutdownActiveJob() error {
	jobMu.Lock()
	defer jobMu.Unlock()
	if current == nil || !jobState.Phase.Active() {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"kind":  current.params.Kind,
		"phase": jobState.Phase,
	}).Info("daemon exiting with an active job, turning instruments off")

	var errs error
	if current.params.Kind.NeedsTempControl() {
		errs = multierr.Append(errs, heaterOff())
	}
	if current.shutdown != nil {
		errs = multierr.Append(errs, current.shutdown())
	}
	if current.writer != nil {
		errs = multierr.Append(errs, current.writer.Close())
		current.writer = nil
	}
	persistJobState()
	return errs
}

// jobStatus is the JSON shape served by /job and embedded in /status.
type jobStatus struct {
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

func getJobStatus() *jobStatus {
	jobMu.Lock()
	defer jobMu.Unlock()

	st := jobState
	js := &jobStatus{
		Phase:     string(st.Phase),
		Paused:    st.Paused,
		LastError: st.LastError,
		CanPause:  st.Phase.Active() && !st.Paused,
		CanStop:   st.Phase.Active(),
	}
	if !st.StartedAt.IsZero() {
		js.StartedAt = st.StartedAt.Format(time.RFC3339)
	}
	js.Setpoint = st.Setpoint
	if current != nil {
		js.Kind = string(current.params.Kind)
		js.Sample = current.params.SampleName
		js.PointsDone = current.pointsDone
		if current.writer != nil {
			js.DataFile = current.writer.Path()
		}
		if st.Phase == tempcontrol.PhaseStabilizing {
			js.Message = fmt.Sprintf("Stability window %d/%d readings", len(current.window), st.Tolerances.StabilityChecks)
		}
	}
	return js
}
