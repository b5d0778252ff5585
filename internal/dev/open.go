package dev

import (
	"os/exec"
)

// openCommand builds the browser launcher. Replaced in tests.
var openCommand = browserCommand

// OpenBrowser opens url in the default browser without waiting for it.
func OpenBrowser(url string) error {
	cmd := openCommand(url)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func(c *exec.Cmd) { _ = c.Wait() }(cmd)
	return nil
}
