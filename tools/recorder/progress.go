package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ProgressLogger wraps a writer and logs throughput once per interval,
// so a long recording shows it is still moving data.
type ProgressLogger struct {
	io.Writer
	Written        int64
	StartTime      time.Time
	Logger         *slog.Logger
	ReportInterval time.Duration
	lastReport     time.Time
	lastWritten    int64
}

func NewProgressLogger(w io.Writer, logger *slog.Logger) *ProgressLogger {
	return &ProgressLogger{
		Writer:         w,
		StartTime:      time.Now(),
		Logger:         logger,
		ReportInterval: time.Second,
		lastReport:     time.Now(),
	}
}

func (pl *ProgressLogger) Write(p []byte) (n int, err error) {
	n, err = pl.Writer.Write(p)
	pl.Written += int64(n)

	if time.Since(pl.lastReport) >= pl.ReportInterval {
		pl.reportProgress()
		pl.lastReport = time.Now()
		pl.lastWritten = pl.Written
	}

	return
}

func (pl *ProgressLogger) reportProgress() {
	elapsed := time.Since(pl.lastReport)

	speed := "N/A"
	if elapsed.Seconds() > 0 {
		bytesPerSecond := float64(pl.Written-pl.lastWritten) / elapsed.Seconds()
		speed = byteCountToHumanReadable(int64(bytesPerSecond)) + "/s"
	}

	pl.Logger.Info(
		fmt.Sprintf("Recorded %s. Current rate: %s",
			byteCountToHumanReadable(pl.Written),
			speed,
		),
	)
}

func byteCountToHumanReadable(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
