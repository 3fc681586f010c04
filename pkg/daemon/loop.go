package daemon

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	pollLock     = &sync.Mutex{}
	loopRecorder = NewPollRecorder(60)

	// loopIntervalNanos and pollWindowNanos are read by the acquisition
	// loop while the poll-interval handler and the SIGHUP reload write
	// them, hence atomics.
	loopIntervalNanos atomic.Int64
	pollWindowNanos   atomic.Int64
)

func init() {
	setLoopInterval(2 * time.Second)
}

func loopIntervalNow() time.Duration {
	return time.Duration(loopIntervalNanos.Load())
}

// pollWindow is how far back we look when judging whether poll passes
// were missed.
func pollWindow() time.Duration {
	return time.Duration(pollWindowNanos.Load())
}

// setLoopInterval updates the acquisition interval together with the
// missed-poll window derived from it.
func setLoopInterval(d time.Duration) {
	loopIntervalNanos.Store(int64(d))
	pollWindowNanos.Store(int64(15 * d))
}

// PollRecorder records the last N poll pass times so gaps in the acquisition
// loop can be detected.
type PollRecorder struct {
	MaxRecordCount int
	LastPollTimes  []time.Time
	mu             *sync.Mutex
}

// NewPollRecorder returns a new PollRecorder.
func NewPollRecorder(maxRecordCount int) *PollRecorder {
	return &PollRecorder{
		MaxRecordCount: maxRecordCount,
		LastPollTimes:  make([]time.Time, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecordNow adds a new record with the current time.
func (r *PollRecorder) AddRecordNow() {
	r.AddRecord(time.Now())
}

// AddRecord adds a new record.
func (r *PollRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading so time.Since stays accurate across
	// system suspend.
	t = t.Round(0)

	if len(r.LastPollTimes) >= r.MaxRecordCount {
		r.LastPollTimes = r.LastPollTimes[1:]
	}
	r.LastPollTimes = append(r.LastPollTimes, t)
}

// ClearRecords clears all records.
func (r *PollRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LastPollTimes = make([]time.Time, 0)
}

// GetRecordsIn returns the number of continuous records in the last duration.
// Continuous records are at most the loop interval plus 1s apart.
func (r *PollRecorder) GetRecordsIn(last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The last record must be recent, otherwise nothing is continuous.
	if len(r.LastPollTimes) > 0 && time.Since(r.LastPollTimes[len(r.LastPollTimes)-1]) >= loopIntervalNow()+time.Second {
		return 0
	}

	count := 0
	for i := len(r.LastPollTimes) - 1; i >= 0; i-- {
		record := r.LastPollTimes[i]
		if time.Since(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.LastPollTimes) {
			theRecordAfter = r.LastPollTimes[i+1]
		}

		if theRecordAfter.Sub(record) >= loopIntervalNow()+time.Second {
			break
		}
		count++
	}

	return count
}

// GetLastRecords returns the records within the last duration, newest first.
func (r *PollRecorder) GetLastRecords(last time.Duration) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastPollTimes) == 0 {
		return nil
	}

	var records []time.Time
	for i := len(r.LastPollTimes) - 1; i >= 0; i-- {
		record := r.LastPollTimes[i]
		if time.Since(record) > last {
			break
		}
		records = append(records, record)
	}

	return records
}

// GetLastRecord returns the last record.
func (r *PollRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastPollTimes) == 0 {
		return time.Time{}
	}

	return r.LastPollTimes[len(r.LastPollTimes)-1]
}

func formatRelativeTimes(times []time.Time) []string {
	var timesString []string
	for _, t := range times {
		timesString = append(timesString, time.Since(t).String())
	}
	return timesString
}

// runLoop runs forever and advances the active measurement, which is called
// by the daemon.
func runLoop() {
	for {
		pollPass()
		time.Sleep(loopIntervalNow())
	}
}

func checkMissedPolls() bool {
	window := pollWindow()
	pollCount := loopRecorder.GetRecordsIn(window)
	expectedPollCount := int(window / loopIntervalNow())
	minPollCount := expectedPollCount - 1
	relativeTimes := loopRecorder.GetLastRecords(window)

	if pollCount < minPollCount {
		logrus.WithFields(logrus.Fields{
			"pollCount":         pollCount,
			"expectedPollCount": expectedPollCount,
			"minPollCount":      minPollCount,
			"recentRecords":     formatRelativeTimes(relativeTimes),
		}).Info("Possibly missed poll passes")
		return true
	}
	return false
}

// pollPass runs one acquisition pass. It has the logic to prevent parallel
// runs; an HTTP-forced pass waits for the timer pass to finish.
func pollPass() bool {
	missed := checkMissedPolls()
	loopRecorder.AddRecordNow()
	return pollPassInner(missed)
}

// pollPassForced runs one acquisition pass without missed-poll bookkeeping.
// It is mainly called by the HTTP APIs right after a job starts.
func pollPassForced() bool {
	return pollPassInner(false)
}

func pollPassInner(missedPolls bool) bool {
	pollLock.Lock()
	defer pollLock.Unlock()

	return advanceJobWithinLoop(missedPolls)
}
