//go:build !windows
// +build !windows

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JiscSD/rdss-metadata-catalog/policy"

	"github.com/pkg/errors"
)

// interrupt blocks until the process is signalled to stop. SIGUSR1 reloads
// the catalog policies and SIGUSR2 logs them when they come from DynamoDB.
func interrupt(cancel <-chan struct{}, registry *policy.Registry) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(c)
	for {
		select {
		case sig := <-c:
			switch sig {
			case syscall.SIGUSR1:
				if registry != nil {
					registry.Reload()
				}
				continue
			case syscall.SIGUSR2:
				if registry != nil {
					registry.Log()
				}
				continue
			default:
				return fmt.Errorf("received signal %s", sig)
			}
		case <-cancel:
			return errors.New("canceled")
		}
	}
}
