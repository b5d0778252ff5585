//go:build !windows

package dev

import (
	"os/exec"
	"runtime"
	"syscall"
)

// browserCommand is the launcher for the platform's default browser.
func browserCommand(url string) *exec.Cmd {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	cmd := exec.Command(name, url)
	// Keep the launcher out of our process group so Ctrl-C in the
	// terminal does not reach it.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}
