//go:build windows

package dev

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// browserCommand is the launcher for the platform's default browser.
func browserCommand(url string) *exec.Cmd {
	cmd := exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
	return cmd
}
