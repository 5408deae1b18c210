package process

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/qvm-dev/qvm/internal/paths"
)

// Status is what the pid record of a VM directory says about the engine.
type Status struct {
	// Record is set when a record was found and parsed.
	Record *Record
	// Running reports a live process behind the record.
	Running bool
	// StaleRemoved reports that a dead or unreadable record was deleted.
	StaleRemoved bool
}

// Checker derives liveness from the pid record and cleans up stale records.
type Checker struct {
	prober Prober
	log    logrus.FieldLogger
}

// NewChecker returns a Checker. A nil prober uses SignalProber.
func NewChecker(prober Prober, log logrus.FieldLogger) *Checker {
	if prober == nil {
		prober = SignalProber{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Checker{prober: prober, log: log}
}

// Inspect reads the pid record in dir. A record naming a dead process, or
// one that cannot be parsed, is removed and reported as not running.
func (c *Checker) Inspect(dir string) (Status, error) {
	path := paths.PIDPath(dir)
	rec, err := ReadRecord(path)
	switch {
	case errors.Is(err, ErrNoRecord):
		return Status{}, nil
	case errors.Is(err, ErrBadRecord):
		c.log.WithError(err).Warn("Removing unreadable pid record")
		if err := RemoveRecord(path); err != nil {
			return Status{}, err
		}
		return Status{StaleRemoved: true}, nil
	case err != nil:
		return Status{}, err
	}

	if c.prober.IsAlive(rec.PID) {
		return Status{Record: &rec, Running: true}, nil
	}

	c.log.WithField("pid", rec.PID).Debugf("Removing stale pid record %s", path)
	if err := RemoveRecord(path); err != nil {
		return Status{Record: &rec}, err
	}
	return Status{Record: &rec, StaleRemoved: true}, nil
}

// IsRunning reports whether the engine of the VM in dir is alive.
func (c *Checker) IsRunning(dir string) (bool, error) {
	st, err := c.Inspect(dir)
	return st.Running, err
}

// IsAlive exposes the underlying probe.
func (c *Checker) IsAlive(pid int) bool {
	return c.prober.IsAlive(pid)
}
