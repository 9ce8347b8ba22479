// Package logging configures the shared logrus instance: a compact custom
// format with caller location and cycle correlation, stdout output, and an
// optional size-rotated log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/netmon-dev/netmon/internal/config"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Formatter renders one log entry as
// [2026-08-30 14:02:11] [info ] [aa31bc02] [monitor.go:87] message key=value
// where the third field is the cycle correlation id, dashes outside a cycle.
type Formatter struct{}

// fieldOrder fixes the display order for common structured fields.
var fieldOrder = []string{"router", "switch", "device", "status", "level", "records", "errors", "error"}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	cycleID := "--------"
	if id, ok := entry.Data["cycle_id"].(string); ok && id != "" {
		cycleID = id
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	var fields string
	for _, k := range fieldOrder {
		if v, ok := entry.Data[k]; ok {
			fields += fmt.Sprintf(" %s=%v", k, v)
		}
	}

	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%-5s] [%s] [%s:%d] %s%s\n",
			timestamp, level, cycleID, filepath.Base(entry.Caller.File), entry.Caller.Line, message, fields)
	} else {
		fmt.Fprintf(buffer, "[%s] [%-5s] [%s] %s%s\n", timestamp, level, cycleID, message, fields)
	}
	return buffer.Bytes(), nil
}

// SetupBaseLogger configures the shared logrus instance and the gin
// writers. Safe to call multiple times; initialization happens once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&Formatter{})

		gin.SetMode(gin.ReleaseMode)
		gin.DefaultWriter = log.StandardLogger().Writer()
		gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)

		log.RegisterExitHandler(closeLogWriter)
	})
}

// Apply applies the file/level settings from configuration. Called at
// startup and again on config hot-reload.
func Apply(cfg config.LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("unknown log level, keeping current")
	} else {
		log.SetLevel(level)
	}

	writerMu.Lock()
	defer writerMu.Unlock()
	if cfg.File == "" {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
		return
	}
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).Error("cannot create log directory, logging to stdout only")
			return
		}
	}
	logWriter = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
}

func closeLogWriter() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
