package term

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// MaxTermDim bounds terminal dimensions accepted by Resize. Requests at or
// above this (or non-positive) are dropped with a warning.
const MaxTermDim = 1000

// procEnvAllowlist is the only set of variables forwarded from the server
// process into spawned shells. Everything else (editor integration hooks,
// credentials injected by the hosting environment) is stripped.
var procEnvAllowlist = []string{
	"PATH",
	"HOME",
	"USER",
	"LOGNAME",
	"LANG",
	"LC_ALL",
	"TZ",
	"TMPDIR",
	// Atalanta reads this to locate its man page for the -h flag.
	"ATALANTA",
	"ATALANTA_MAN",
}

// ExitStatus describes how a shell process ended.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// Proc is a PTY-backed shell process. Output is pumped asynchronously to the
// onOutput callback in arrival order; process termination is delivered
// exactly once to onExit, regardless of whether the shell exited on its own
// or was killed.
type Proc struct {
	cmd  *exec.Cmd
	ptmx *os.File

	done     chan struct{}
	killOnce sync.Once

	mu   sync.Mutex
	exit ExitStatus
}

// StartProc spawns an interactive login shell in dir with the given initial
// dimensions. shell selects the shell binary; when empty, $SHELL is used
// with /bin/bash then /bin/sh as fallbacks.
func StartProc(dir, shell string, cols, rows uint16, onOutput func([]byte), onExit func(ExitStatus)) (*Proc, error) {
	path, err := shellPath(shell)
	if err != nil {
		return nil, err
	}
	if cols == 0 || cols >= MaxTermDim {
		cols = 80
	}
	if rows == 0 || rows >= MaxTermDim {
		rows = 24
	}

	cmd := exec.Command(path, "-l")
	cmd.Dir = dir
	cmd.Env = sanitizedEnv(path, dir)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &Proc{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}
	go p.pump(onOutput, onExit)
	return p, nil
}

// pump relays PTY output until the process ends, then reaps it and reports
// the exit status.
func (p *Proc) pump(onOutput func([]byte), onExit func(ExitStatus)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			break
		}
	}

	err := p.cmd.Wait()
	p.ptmx.Close()

	st := ExitStatus{}
	if state := p.cmd.ProcessState; state != nil {
		st.Code = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			st.Signal = ws.Signal().String()
		}
	} else if err != nil {
		st.Code = -1
	}

	p.mu.Lock()
	p.exit = st
	p.mu.Unlock()
	close(p.done)

	if onExit != nil {
		onExit(st)
	}
}

// Write sends input bytes to the shell. Writes against an exited process
// return an error; callers log and ignore it.
func (p *Proc) Write(data []byte) error {
	select {
	case <-p.done:
		return fmt.Errorf("process has exited")
	default:
	}
	if _, err := p.ptmx.Write(data); err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	return nil
}

// Resize changes the PTY dimensions. Out-of-range requests are dropped with
// a warning rather than surfaced as protocol errors.
func (p *Proc) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 || cols >= MaxTermDim || rows >= MaxTermDim {
		log.Printf("[term] dropping resize to %dx%d (out of range)", cols, rows)
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		log.Printf("[term] resize failed: %v", err)
	}
}

// Kill terminates the shell: SIGTERM first, SIGKILL if it is still running
// after grace. Idempotent; the exit notification is delivered through the
// normal pump path.
func (p *Proc) Kill(grace time.Duration) {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Signal(syscall.SIGTERM)
		}
		go func() {
			select {
			case <-p.done:
			case <-time.After(grace):
				if p.cmd.Process != nil {
					p.cmd.Process.Signal(syscall.SIGKILL)
				}
			}
		}()
	})
}

// Done is closed once the process has been reaped.
func (p *Proc) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has ended.
func (p *Proc) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Pid returns the shell's process id, or 0 before the process started.
func (p *Proc) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func shellPath(override string) (string, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return "", fmt.Errorf("configured shell %s: %w", override, err)
		}
		return path, nil
	}
	candidates := []string{os.Getenv("SHELL"), "/bin/bash", "/bin/sh"}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no usable shell found")
}

// sanitizedEnv builds the shell environment from scratch: allow-listed host
// variables plus fixed terminal identity. The inner shell must not inherit
// IDE or agent integration variables from the server process.
func sanitizedEnv(shell, dir string) []string {
	env := []string{
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"SHELL=" + shell,
		"PWD=" + dir,
	}
	for _, key := range procEnvAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	// Guarantee a PATH even when the server was started with a stripped one.
	if os.Getenv("PATH") == "" {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}

// shellQuote wraps s in single quotes for safe injection into shell input.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
