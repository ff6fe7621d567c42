// Package logx provides component-tagged logging with domain-filtered debug output
// and an in-memory buffer of recent entries for the web API.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// DefaultBufferSize is the number of entries kept for GetRecentEntries.
const DefaultBufferSize = 1000

// ComponentKey is the context key carrying the component (usually an agent id) for Debug.
type ComponentKey struct{}

// Logger writes lines tagged with the name of the component that owns it.
type Logger struct {
	component string
}

// Entry is a structured log record kept in the recent-entries buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

type debugConfig struct {
	enabled bool
	domains map[string]bool // nil enables every domain
}

type ringBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

//nolint:gochecknoglobals // process-wide logging configuration
var (
	debugMu sync.RWMutex
	debug   = debugConfig{}

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	recent = &ringBuffer{maxSize: DefaultBufferSize}
)

func init() { //nolint:gochecknoinits // env driven debug switches
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG=1|true and DEBUG_DOMAINS=scheduler,review.
func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debug.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debug.domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	out := make(map[string]bool, len(list))
	for _, d := range list {
		if d = strings.TrimSpace(d); d != "" {
			out[d] = true
		}
	}
	return out
}

// NewLogger returns a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all loggers. nil restores stderr.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// SetDebug toggles debug output and restricts it to the given domains (none = all).
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debug.enabled = enabled
	debug.domains = parseDomains(domains)
}

// IsDebugEnabled reports whether debug logging is on at all.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debug.enabled
}

// IsDebugEnabledForDomain reports whether debug lines for domain are emitted.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debug.enabled {
		return false
	}
	if debug.domains == nil {
		return true
	}
	return debug.domains[domain]
}

func (b *ringBuffer) add(e *Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, *e)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

func (b *ringBuffer) filter(component string, since time.Time) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, len(b.entries))
	for i := range b.entries {
		e := &b.entries[i]
		if component != "" && !strings.EqualFold(e.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(timestampFormat, e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, *e)
	}
	return out
}

// GetRecentEntries returns buffered entries, optionally filtered by component and time.
func GetRecentEntries(component string, since time.Time) []Entry {
	return recent.filter(component, since)
}

func write(component string, level Level, domain, message string) {
	timestamp := time.Now().UTC().Format(timestampFormat)
	line := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, component, level, message)
	if domain != "" {
		line = fmt.Sprintf("[%s] [%s] %s: [%s] %s", timestamp, component, level, domain, message)
	}

	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	if w == nil {
		w = os.Stderr
	}
	log.New(w, "", 0).Println(line)

	recent.add(&Entry{
		Timestamp: timestamp,
		Component: component,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
	})
}

func (l *Logger) log(level Level, format string, args ...any) {
	write(l.component, level, "", fmt.Sprintf(format, args...))
}

// Debug logs only when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the tag this logger writes under.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "review/qa".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

// Debug logs a domain-filtered debug line. The component is read from ctx (ComponentKey).
//
//	DEBUG=1                          # all domains
//	DEBUG=1 DEBUG_DOMAINS=scheduler  # only scheduler
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := "unknown"
	if ctx != nil {
		if id, ok := ctx.Value(ComponentKey{}).(string); ok && id != "" {
			component = id
		}
	}
	write(component, LevelDebug, domain, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition for domain.
func DebugState(ctx context.Context, domain, action, state string, extra ...string) {
	suffix := ""
	if len(extra) > 0 {
		suffix = " - " + extra[0]
	}
	Debug(ctx, domain, "State %s: %s%s", action, state, suffix)
}

// WithComponent stores the component tag for Debug in ctx.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey{}, component)
}
