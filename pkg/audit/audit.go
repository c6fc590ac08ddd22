package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

// SDID constants for structured data IDs (RFC5424). 32473 is the
// documentation Private Enterprise Number reserved by RFC5612.
const (
	PEN          = 32473
	SDIDAuth     = "auth@32473"
	SDIDSubject  = "subject@32473"
	SDIDAction   = "action@32473"
	SDIDClient   = "client@32473"
	SDIDAnalysis = "analysis@32473"
)

// DefaultAppName is the APP-NAME field of every audit line.
const DefaultAppName = "rekognition"

// DefaultSaveTimeout bounds each insert into the audit store.
const DefaultSaveTimeout = 5 * time.Second

// Syslog facility constants
const (
	FacilityAuth     = 4  // LOG_AUTH - security/authorization messages
	FacilityAuthPriv = 10 // LOG_AUTHPRIV - security/authorization messages (private)
)

// Severity levels matching syslog (RFC5424)
type Severity int

const (
	SeverityEmergency Severity = iota // 0
	SeverityAlert                     // 1
	SeverityCritical                  // 2
	SeverityError                     // 3
	SeverityWarning                   // 4
	SeverityNotice                    // 5
	SeverityInfo                      // 6
	SeverityDebug                     // 7
)

// Event represents an audit event
type Event interface {
	MessageID() string
	Message() string
	Severity() Severity
	Facility() int
	StructuredData() map[string]map[string]string
}

// Logger writes audit events in RFC5424 syslog format and optionally
// persists them to a Store. A nil *Logger discards every event.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	store    *Store
	hostname string
	appName  string
	pid      int
	now      func() time.Time

	saveTimeout time.Duration
}

// NewLogger creates an audit logger writing to w.
func NewLogger(w io.Writer) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		writer:   w,
		hostname: hostname,
		appName:  DefaultAppName,
		pid:      os.Getpid(),
		now:      time.Now,

		saveTimeout: DefaultSaveTimeout,
	}
}

// SetWriter sets the output writer for the logger
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetStore makes the logger persist every event to s.
func (l *Logger) SetStore(s *Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = s
}

// Log writes an audit event.
// Format: <PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}

	// PRI = facility * 8 + severity
	pri := event.Facility()*8 + int(event.Severity())
	now := l.now().UTC()
	timestamp := now.Format("2006-01-02T15:04:05.000Z")

	sd := formatStructuredData(event.StructuredData())
	if sd == "" {
		sd = "-"
	}

	hostname := l.hostname
	if hostname == "" {
		hostname = "-"
	}

	logLine := fmt.Sprintf("<%d>1 %s %s %s %d %s %s %s\n",
		pri,
		timestamp,
		hostname,
		l.appName,
		l.pid,
		event.MessageID(),
		sd,
		escapeControl(event.Message()),
	)

	l.mu.Lock()
	if l.writer != nil {
		_, _ = l.writer.Write([]byte(logLine))
	}
	store := l.store
	l.mu.Unlock()

	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.saveTimeout)
	defer cancel()
	if err := store.Save(ctx, event, l.message(now)); err != nil {
		logrus.WithError(err).Warn("audit: failed to save event")
	}
}

func (l *Logger) message(ts time.Time) Message {
	return Message{
		Timestamp: ts,
		Hostname:  l.hostname,
		Appname:   l.appName,
		Procid:    fmt.Sprint(l.pid),
	}
}

// formatStructuredData formats the structured data according to RFC5424.
// SD-IDs and parameter names are sorted so output is stable.
// Format: [sdid param1="value1" param2="value2"][sdid2 ...]
func formatStructuredData(sd map[string]map[string]string) string {
	if len(sd) == 0 {
		return ""
	}

	ids := make([]string, 0, len(sd))
	for sdid := range sd {
		ids = append(ids, sdid)
	}
	sort.Strings(ids)

	var parts []string
	for _, sdid := range ids {
		params := sd[sdid]
		keys := make([]string, 0, len(params))
		for key := range params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		paramParts := []string{sdid}
		for _, key := range keys {
			paramParts = append(paramParts, fmt.Sprintf("%s=%s", key, escapeSDValue(params[key])))
		}
		parts = append(parts, "["+strings.Join(paramParts, " ")+"]")
	}
	return strings.Join(parts, "")
}

// escapeSDValue escapes special characters in structured data values per RFC5424
func escapeSDValue(value string) string {
	// Escape backslash, double quote, and closing bracket
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "]", "\\]")
	return "\"" + escapeControl(value) + "\""
}

// escapeControl replaces control characters with \xNN (or \uNNNN) so a
// value can never start a new audit line.
func escapeControl(value string) string {
	if strings.IndexFunc(value, unicode.IsControl) < 0 {
		return value
	}

	var b strings.Builder
	for _, r := range value {
		switch {
		case !unicode.IsControl(r):
			b.WriteRune(r)
		case r <= 0xff:
			fmt.Fprintf(&b, "\\x%02x", r)
		default:
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}
	return b.String()
}
