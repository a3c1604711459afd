package browser

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// killProcessTree kills a Chrome process and its helpers. proc.Kill alone
// leaves renderer and GPU children running.
func killProcessTree(proc *os.Process) {
	if proc == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid)).Run()
		return
	}
	// chromedp starts Chrome in its own process group, so the negative PID
	// addresses the whole tree.
	if err := exec.Command("kill", "-9", "--", "-"+strconv.Itoa(proc.Pid)).Run(); err != nil {
		_ = proc.Kill()
	}
}
