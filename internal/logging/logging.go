// Package logging wraps a zap logger with the audit-log conventions the
// rest of this module expects: leveled console logging plus an
// append-only, human-readable audit trail of domain assignment/release
// events (spec "Persisted state").
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditLogger is the logging facade used throughout the control plane.
// It mirrors the Notice/Warning/AuditErr shape used by boulder's
// blog.AuditLogger, backed by zap instead of a syslog dialer.
type AuditLogger struct {
	sugar *zap.SugaredLogger
	audit *os.File
}

// New builds an AuditLogger that logs to stderr at Info level and appends
// domain-assignment audit lines to auditLogPath.
func New(auditLogPath string) (*AuditLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(auditLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(auditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &AuditLogger{sugar: logger.Sugar(), audit: f}, nil
}

// NewNop builds an AuditLogger that discards everything; used in tests.
func NewNop() *AuditLogger {
	return &AuditLogger{sugar: zap.NewNop().Sugar(), audit: nil}
}

func (l *AuditLogger) Notice(msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}

func (l *AuditLogger) Warning(msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

func (l *AuditLogger) AuditErr(err error) {
	l.sugar.Errorw("audit error", "error", err)
}

// Assigned appends an "ASSIGNED <label> to <userId>" line to the audit
// log file, per spec ("Persisted state").
func (l *AuditLogger) Assigned(label, userID string) {
	l.appendAuditLine(fmt.Sprintf("ASSIGNED %s to %s", label, userID))
}

// Released appends a "RELEASED <label> from <userId> (inactive N days)"
// line to the audit log file.
func (l *AuditLogger) Released(label, userID string, inactiveDays int) {
	l.appendAuditLine(fmt.Sprintf("RELEASED %s from %s (inactive %d days)", label, userID, inactiveDays))
	l.sugar.Infow("domain released", "label", label, "userId", userID, "inactiveDays", inactiveDays)
}

func (l *AuditLogger) appendAuditLine(line string) {
	if l.audit == nil {
		return
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(l.audit, "%s %s\n", stamp, line); err != nil {
		l.sugar.Warnf("failed to write audit log line: %s", err)
	}
}

// Sync flushes buffered log entries.
func (l *AuditLogger) Sync() {
	_ = l.sugar.Sync()
	if l.audit != nil {
		_ = l.audit.Sync()
	}
}

// Close releases the audit log file handle.
func (l *AuditLogger) Close() error {
	if l.audit == nil {
		return nil
	}
	return l.audit.Close()
}
