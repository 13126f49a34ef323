package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on
// disk, so a supervisor can restart the bot with the new build.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	entry := log.WithField("context", "executable_monitor")

	exe, err := os.Executable()
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant resolve executable path")
		return ch
	}
	stat, err := os.Stat(exe)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant stat executable")
		return ch
	}
	started := stat.ModTime()

	go func() {
		ticker := time.NewTicker(checkExecInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(exe)
				if err != nil {
					continue
				}
				if !stat.ModTime().Equal(started) {
					entry.WithField("path", exe).Info("executable changed")
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}
