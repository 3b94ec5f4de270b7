// Package logger provides the process-wide structured logger.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var Log *slog.Logger

var (
	history    []string
	historyMu  sync.RWMutex
	maxHistory = 500

	logFile   *os.File
	logFileMu sync.Mutex

	broadcastCh chan<- string
)

// SetBroadcast wires a channel that receives a copy of every formatted log line,
// used to feed the /ops/log websocket tail.
func SetBroadcast(ch chan<- string) {
	broadcastCh = ch
}

// Init (re)initializes the global logger at the given level, writing to stdout
// and to a file under dataDir named for the current date; the file is not
// rotated until Init runs again.
func Init(levelStr, dataDir string) {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "logger: failed to create data dir: %v\n", err)
	} else {
		name := fmt.Sprintf("nzbengine-%s.log", time.Now().Format("2006-01-02"))
		path := filepath.Join(dataDir, name)
		logFileMu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: failed to open log file %s: %v\n", path, err)
			logFile = nil
		} else {
			logFile = f
		}
		logFileMu.Unlock()
	}

	base := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Value = maskSecret(a.Key, a.Value)
			return a
		},
	})
	Log = slog.New(&broadcastHandler{Handler: base})
	slog.SetDefault(Log)
}

// broadcastHandler mirrors every record to the history ring buffer, the log
// file, and the broadcast channel, in addition to the wrapped handler.
type broadcastHandler struct {
	slog.Handler
}

func (h *broadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := formatRecord(r)

	historyMu.Lock()
	if len(history) >= maxHistory {
		history = history[1:]
	}
	history = append(history, msg)
	historyMu.Unlock()

	err := h.Handler.Handle(ctx, r)

	logFileMu.Lock()
	if logFile != nil {
		fmt.Fprintln(logFile, msg)
	}
	logFileMu.Unlock()

	if broadcastCh != nil {
		select {
		case broadcastCh <- msg:
		default:
			// drop rather than block the request path
		}
	}
	return err
}

func formatRecord(r slog.Record) string {
	msg := fmt.Sprintf("time=%s level=%s msg=%q", r.Time.Format(time.RFC3339Nano), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, maskSecret(a.Key, a.Value))
		return true
	})
	return msg
}

// maskSecret hides password/credential attribute values from any log sink.
func maskSecret(key string, v slog.Value) slog.Value {
	lk := strings.ToLower(key)
	if strings.Contains(lk, "pass") || strings.Contains(lk, "token") || strings.Contains(lk, "secret") {
		return slog.StringValue("***")
	}
	return v
}

// History returns a snapshot of the most recent log lines.
func History() []string {
	historyMu.RLock()
	defer historyMu.RUnlock()
	out := make([]string, len(history))
	copy(out, history)
	return out
}

func Close() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

func init() {
	// Usable even before Init() is called explicitly (e.g. in tests).
	Log = slog.New(slog.NewTextHandler(os.Stdout, nil))
}
