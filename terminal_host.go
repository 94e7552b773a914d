// terminal_host.go - Raw-mode console host for the engine monitor

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// TerminalHost runs the monitor over the controlling terminal in raw
// mode: OS echo and line buffering are disabled and the host handles
// editing itself, so the monitor behaves the same everywhere.
type TerminalHost struct {
	monitor *EngineMonitor

	fd           int
	oldTermState *term.State
	stopCh       chan struct{}
	done         chan struct{}
}

func NewTerminalHost(monitor *EngineMonitor) *TerminalHost {
	return &TerminalHost{
		monitor: monitor,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start switches stdin to raw mode and begins the read loop.
func (h *TerminalHost) Start() error {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		close(h.done)
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	h.oldTermState = oldState

	h.monitor.SetOutput(func(line string) {
		// Raw mode needs the explicit carriage return.
		fmt.Fprintf(os.Stdout, "%s\r\n", line)
	})

	go h.readLoop()
	return nil
}

func (h *TerminalHost) readLoop() {
	defer close(h.done)

	var line []byte
	buf := make([]byte, 1)
	prompt := func() { fmt.Fprint(os.Stdout, "> ") }
	prompt()

	for {
		select {
		case <-h.stopCh:
			return
		default:
		}

		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}

		switch buf[0] {
		case '\r', '\n':
			fmt.Fprint(os.Stdout, "\r\n")
			h.monitor.ExecuteLine(string(line))
			line = line[:0]
			prompt()
		case 0x7F, 0x08: // backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(os.Stdout, "\b \b")
			}
		case 0x03: // ctrl-c ends the session
			fmt.Fprint(os.Stdout, "\r\n")
			return
		default:
			if buf[0] >= 0x20 && buf[0] < 0x7F {
				line = append(line, buf[0])
				fmt.Fprintf(os.Stdout, "%c", buf[0])
			}
		}
	}
}

// Stop restores the terminal and joins the read loop.
func (h *TerminalHost) Stop() {
	close(h.stopCh)
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
	<-h.done
}
