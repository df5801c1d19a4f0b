// Package logging wraps logrus with the typed log calls spec.md §6
// requires of the Logger collaborator (logSend/logRecv/logDrop/logRetry),
// in the spirit of original_source/utils/logger.py's verbose-gated API.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger is the opaque sink the rest of the module logs through.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger writing structured fields at the given level.
func New(verbose bool) *Logger {
	l := logrus.New()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// Log emits a generic tagged message.
func (lg *Logger) Log(tag, message string) {
	lg.entry.WithField("tag", tag).Info(message)
}

// LogSend records an outbound frame.
func (lg *Logger) LogSend(msgType, addr string) {
	lg.entry.WithFields(logrus.Fields{"tag": "SEND", "type": msgType, "to": addr}).Debug("sent frame")
}

// LogRecv records an inbound frame.
func (lg *Logger) LogRecv(msgType, addr string) {
	lg.entry.WithFields(logrus.Fields{"tag": "RECV", "type": msgType, "from": addr}).Debug("received frame")
}

// LogDrop records a dropped frame and the reason it was dropped.
func (lg *Logger) LogDrop(msgType, addr, reason string) {
	lg.entry.WithFields(logrus.Fields{"tag": "DROP", "type": msgType, "from": addr}).Warn(reason)
}

// LogReject records a frame rejected for an invalid token.
func (lg *Logger) LogReject(msgType, addr, reason string) {
	lg.entry.WithFields(logrus.Fields{"tag": "REJECT", "type": msgType, "from": addr}).Warn(reason)
}

// LogRetry records a DM retransmission attempt.
func (lg *Logger) LogRetry(messageID string, attempt int) {
	lg.entry.WithFields(logrus.Fields{"tag": "RETRY", "message_id": messageID, "attempt": attempt}).Info("retransmitting")
}

// LogError records a non-fatal failure (e.g. a socket send error).
func (lg *Logger) LogError(tag string, err error) {
	lg.entry.WithField("tag", tag).Error(err)
}
