// Package logging wraps golog with the teacher's JSON-line, daily-rotating
// file convention, generalized away from the gin/melody context lookups the
// teacher used to attach client IP and device info: callers here pass
// their own fields map instead.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kataras/golog"

	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

type Config struct {
	Level string // debug, info, warn, error, disable
	Path  string // empty disables file output
	Days  int    // retention, in days
}

var (
	logWriter *os.File
	disposed  bool
	cfg       Config
)

// Init wires golog's level and output destination. Safe to call once at
// bootstrap; starts the daily rotation goroutine.
func Init(c Config) {
	cfg = c
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	golog.SetLevel(cfg.Level)
	golog.SetTimeFormat("2006-01-02 15:04:05")

	setDst()
	if cfg.Path == "" || cfg.Level == "disable" {
		return
	}
	go func() {
		waitSecs := 86400 - (clock.Now.Hour()*3600 + clock.Now.Minute()*60 + clock.Now.Second())
		if waitSecs > 0 {
			<-time.After(time.Duration(waitSecs) * time.Second)
		}
		setDst()
		for range time.NewTicker(24 * time.Hour).C {
			setDst()
		}
	}()
}

func setDst() {
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
	if cfg.Path == "" || cfg.Level == "disable" || disposed {
		golog.SetOutput(os.Stdout)
		return
	}
	os.MkdirAll(cfg.Path, 0755)
	now := clock.Now.Add(time.Minute)
	logFile := fmt.Sprintf("%s/%s.log", cfg.Path, now.Format("2006-01-02"))
	var err error
	logWriter, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		golog.Warnf("LOG_INIT failed to open %s: %v", logFile, err)
		golog.SetOutput(os.Stdout)
		return
	}
	golog.SetOutput(io.MultiWriter(os.Stdout, logWriter))

	if cfg.Days > 0 {
		staleDate := time.Unix(now.Unix()-int64(cfg.Days)*86400, 0)
		os.Remove(fmt.Sprintf("%s/%s.log", cfg.Path, staleDate.Format("2006-01-02")))
	}
}

// Fields is a shorthand for the structured-field map passed to the log
// functions below.
type Fields map[string]any

func line(event, status, msg string, fields Fields) string {
	if fields == nil {
		fields = Fields{}
	}
	fields["event"] = event
	if status != "" {
		fields["status"] = status
	}
	if msg != "" {
		fields["msg"] = msg
	}
	out, _ := wireutil.JSON.MarshalToString(fields)
	return out
}

func Info(event, status, msg string, fields Fields)  { golog.Info(line(event, status, msg, fields)) }
func Warn(event, status, msg string, fields Fields)  { golog.Warn(line(event, status, msg, fields)) }
func Error(event, status, msg string, fields Fields) { golog.Error(line(event, status, msg, fields)) }
func Debug(event, status, msg string, fields Fields) { golog.Debug(line(event, status, msg, fields)) }
func Fatal(event, status, msg string, fields Fields) { golog.Fatal(line(event, status, msg, fields)) }

// CloseLog returns logging to stdout and closes the rotating file, for use
// during graceful shutdown.
func CloseLog() {
	disposed = true
	golog.SetOutput(os.Stdout)
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}
