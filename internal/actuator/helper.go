package actuator

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Process is a started helper.
type Process interface {
	Kill() error
	// Wait blocks until the process has exited and been reaped.
	Wait() error
	// Exited reports whether the process has already terminated.
	Exited() bool
}

type Launcher interface {
	Start(command []string) (Process, error)
}

type OSLauncher struct{}

func (OSLauncher) Start(command []string) (Process, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &osProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type osProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *osProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *osProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *osProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Helper keeps at most one instance of a long-running helper program.
type Helper struct {
	name     string
	command  []string
	launcher Launcher

	mu   sync.Mutex
	proc Process
}

func NewHelper(name string, command []string, launcher Launcher) *Helper {
	return &Helper{
		name:     name,
		command:  append([]string(nil), command...),
		launcher: launcher,
	}
}

func (h *Helper) Name() string {
	return h.name
}

// Start launches the helper unless an instance is still alive.
func (h *Helper) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc != nil && !h.proc.Exited() {
		return nil
	}
	proc, err := h.launcher.Start(h.command)
	if err != nil {
		h.proc = nil
		return fmt.Errorf("start %s: %w", h.name, err)
	}
	h.proc = proc
	return nil
}

// Stop kills and reaps the running instance, if any.
func (h *Helper) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return nil
	}
	proc := h.proc
	h.proc = nil
	if proc.Exited() {
		_ = proc.Wait()
		return nil
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill %s: %w", h.name, err)
	}
	_ = proc.Wait()
	return nil
}

func (h *Helper) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc != nil && !h.proc.Exited()
}
