// Package log provides the ambient logging wrapper shared by every core
// component. It mirrors the xk6-browser Logger: a thin layer over logrus
// that tags each line with the emitting call site and can be muted to a
// single category via a regular expression filter.
package log

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with an optional per-category filter.
type Logger struct {
	log      *logrus.Logger
	debug    bool
	category *regexp.Regexp
}

// New creates a Logger. If categoryFilter is non-nil, only call sites whose
// name matches it are emitted at debug level; nil disables the filter.
func New(out *logrus.Logger, debug bool, categoryFilter *regexp.Regexp) *Logger {
	if out == nil {
		out = logrus.New()
	}
	return &Logger{log: out, debug: debug, category: categoryFilter}
}

func (l *Logger) allowed(site string) bool {
	if l.category == nil {
		return true
	}
	return l.category.MatchString(site)
}

// Debugf logs at debug level, tagged with the emitting call site.
func (l *Logger) Debugf(site, format string, args ...interface{}) {
	if !l.debug || !l.allowed(site) {
		return
	}
	l.log.WithField("source", site).Debug(fmt.Sprintf(format, args...))
}

// Infof logs at info level, tagged with the emitting call site.
func (l *Logger) Infof(site, format string, args ...interface{}) {
	l.log.WithField("source", site).Info(fmt.Sprintf(format, args...))
}

// Warnf logs at warn level, tagged with the emitting call site.
func (l *Logger) Warnf(site, format string, args ...interface{}) {
	l.log.WithField("source", site).Warn(fmt.Sprintf(format, args...))
}

// Errorf logs at error level, tagged with the emitting call site.
func (l *Logger) Errorf(site, format string, args ...interface{}) {
	l.log.WithField("source", site).Error(fmt.Sprintf(format, args...))
}

// IsDebug reports whether debug-level logging is active.
func (l *Logger) IsDebug() bool {
	return l.debug
}
