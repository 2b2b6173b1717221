package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter implements badger.Logger on top of a logrus entry.
// Badger info lines map to debug and badger debug lines to trace.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...any)   { l.Entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...any) { l.Entry.Warnf(f, v...) }
func (l *BadgerLogrusAdapter) Infof(f string, v ...any)    { l.Entry.Debugf(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...any)   { l.Entry.Tracef(f, v...) }

// Component returns a child entry tagged with a component field
func Component(parent *logrus.Entry, name string) *logrus.Entry {
	return parent.WithField("component", name)
}
