package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// upcomingLead is how long before the scheduled time subscribers are
	// notified that a run is about to start.
	upcomingLead     = time.Minute * 5
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
)

type NotifyFunc func(data any)

// RunFunc starts one scheduled measurement run.
type RunFunc func() error

// Scheduler fires a measurement run on a cron schedule. A PreCheck gates
// each run; if it keeps failing the run is dropped and the schedule
// advances to the next occurrence.
type Scheduler struct {
	OnUpcoming NotifyFunc // called upcomingLead before a run
	OnError    NotifyFunc // called on precheck or run errors
	Run        RunFunc
	PreCheck   RunFunc

	parser cron.Parser

	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan schedCtrl
	stopCh    chan struct{}
}

type schedCtrlKind int

const (
	schedCtrlReplace  schedCtrlKind = iota // cron expression changed, recompute timer
	schedCtrlPostpone                      // delay only the upcoming run
	schedCtrlSkip                          // drop the upcoming run
)

type schedCtrl struct {
	kind schedCtrlKind
	data any
}

func NewScheduler(run, preCheck RunFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if run == nil {
		panic("run function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Run:        run,
		PreCheck:   preCheck,
		parser:     cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh:  make(chan schedCtrl, 4),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
	s.running = false
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	select {
	case <-s.stopCh:
		// a previous Stop closed the channel; arm a fresh one so the
		// schedule can be re-enabled without restarting the daemon
		s.stopCh = make(chan struct{})
	default:
	}
	s.running = true
	go s.loop(s.stopCh)
}

// Schedule sets or replaces the cron expression. If the scheduler is
// already running the loop is told to recompute its timer.
func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	running := s.running
	if !running {
		s.schedule = sh
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	if running {
		s.trySendControl(schedCtrlReplace, sh)
	}
	return nil
}

// Postpone delays the upcoming run by d. The run after it is unaffected,
// so d must not push the run past the following occurrence.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	following := s.schedule.Next(orig).Truncate(time.Second)
	running := s.running
	s.mu.Unlock()

	if !running {
		return fmt.Errorf("no active schedule to postpone")
	}

	delayed := orig.Add(d).Truncate(time.Second)
	if delayed.Compare(following) >= 0 {
		return fmt.Errorf("postpone duration too long")
	}

	s.trySendControl(schedCtrlPostpone, delayed)
	return nil
}

// Skip drops the upcoming run and advances to the one after it.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(schedCtrlSkip, nil)
	}
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		// a restarted scheduler owns a newer channel; leave its state alone
		if s.stopCh == stopCh {
			s.running = false
		}
		s.mu.Unlock()
		logrus.Debug("measurement scheduler stopped")
	}()

	logrus.Debug("measurement scheduler started")

	for {
		announced := false

		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			// nothing scheduled, park until a control message arrives
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun) - upcomingLead
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		for {
			select {
			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break
				}

				if !announced {
					logrus.Debugf("upcoming scheduled run at %s", nextRun.Format(time.DateTime))
					announced = true
					runWait := time.Until(nextRun)
					if runWait < 0 {
						runWait = 0
					}
					timer.Reset(runWait)
					s.notifyUpcoming(nextRun)
					continue
				}

				logrus.Debugf("starting scheduled run at %s", nextRun.Format(time.DateTime))

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.notifyError(fmt.Errorf("precheck failed: %v", err))
						}

						attempts++
						if attempts <= preCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}

						// give up on this occurrence
						timer.Stop()
						s.advanceNextRun()
						break
					}
				}

				timer.Stop()

				go func() {
					if err := s.Run(); err != nil {
						s.notifyError(fmt.Errorf("scheduled run failed: %v", err))
					}
				}()
				s.advanceNextRun()
			case <-stopCh:
				timer.Stop()
				return
			case msg := <-s.controlCh:
				logrus.WithFields(logrus.Fields{
					"kind": msg.kind,
					"data": msg.data,
				}).Debug("scheduler control message")

				switch msg.kind {
				case schedCtrlReplace:
					timer.Stop()
					sh := msg.data.(cron.Schedule)
					s.mu.Lock()
					s.schedule = sh
					s.nextRun = sh.Next(time.Now())
					s.mu.Unlock()
				case schedCtrlPostpone:
					delayed := msg.data.(time.Time)
					timer.Reset(time.Until(delayed))
					continue
				case schedCtrlSkip:
					timer.Stop()
				}
			}

			break
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) notifyUpcoming(runAt time.Time) {
	if s.OnUpcoming == nil {
		return
	}
	go s.OnUpcoming(runAt)
}

func (s *Scheduler) notifyError(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind schedCtrlKind, data any) {
	select {
	case s.controlCh <- schedCtrl{kind: kind, data: data}:
	default:
	}
}
