package services

import (
	"context"
	"log"
)

// AuditLogger is the sink for security-relevant events. The real audit
// subsystem lives outside this core; request wiring may swap in its
// client. The core only emits.
type AuditLogger interface {
	LogSecurityEvent(ctx context.Context, event string, userID uint, clientIP string, details map[string]interface{})
	LogUserAction(ctx context.Context, action string, userID uint, clientIP string, details map[string]interface{})
}

// LogAuditLogger writes audit events to the process log. Default sink
// when no external audit client is configured.
type LogAuditLogger struct{}

// NewLogAuditLogger creates the log-backed audit sink
func NewLogAuditLogger() *LogAuditLogger {
	return &LogAuditLogger{}
}

// LogSecurityEvent records a security event (token reuse, lockout, ...)
func (l *LogAuditLogger) LogSecurityEvent(ctx context.Context, event string, userID uint, clientIP string, details map[string]interface{}) {
	log.Printf("[SECURITY] event=%s user=%d ip=%s details=%v", event, userID, clientIP, details)
}

// LogUserAction records a user-initiated action (login, logout, reset)
func (l *LogAuditLogger) LogUserAction(ctx context.Context, action string, userID uint, clientIP string, details map[string]interface{}) {
	log.Printf("[AUDIT] action=%s user=%d ip=%s details=%v", action, userID, clientIP, details)
}
