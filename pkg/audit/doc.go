// Package audit provides audit logging for security-relevant operations.
//
// Events are written as RFC5424 syslog lines and, when an audit database is
// configured, persisted to the audit_messages table.
//
// # Event Types
//
//   - RegisterEvent: account registration (success/failure)
//   - LoginEvent: password authentication (success/failure)
//   - AnalysisEvent: per-file outcome of an upload
//
// # Usage
//
//	logger := audit.NewLogger(os.Stdout)
//	logger.Log(audit.LoginEvent{Username: "alice", ClientIP: ip, Success: true})
package audit
