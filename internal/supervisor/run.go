package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/mstoeckl/waypipe-go/internal/config"
	"github.com/mstoeckl/waypipe-go/internal/control"
	"github.com/mstoeckl/waypipe-go/internal/ipc"
	"github.com/mstoeckl/waypipe-go/internal/transport"
	"github.com/mstoeckl/waypipe-go/internal/wplog"
)

// DisplaySocketBacklog is the listen backlog for the multi-mode display
// socket.
const DisplaySocketBacklog = 128

// Params bundles run_server's arguments.
type Params struct {
	SocketAddr         string
	WaylandDisplay     string
	ControlPath        string // empty disables migration support
	Config             *config.Main
	Oneshot            bool
	UnlinkAtEnd        bool
	Argv               []string // empty: spawn a login shell
	LoginShellIfBackup bool
}

// Result carries run_server's outcome: the application's exit status, or
// a supervisor-level failure.
type Result struct {
	ExitCode int
}

// RunServer is the supervisor's entry contract. It computes the display
// path, launches the application, creates the control FIFO if
// requested, and dispatches to the oneshot or multi runner.
func RunServer(ctx context.Context, log *wplog.Logger, p Params) (Result, error) {
	var displayPath string
	var err error
	if !p.Oneshot {
		displayPath, err = ResolveDisplayPath(p.WaylandDisplay)
		if err != nil {
			return Result{ExitCode: 1}, err
		}
	}

	var (
		appLink  *os.File // parent-side end handed to the worker in oneshot mode
		appFile  *os.File // child-side end inherited by the application in oneshot mode
		listener transport.Listener
	)
	if p.Oneshot {
		a, b, err := ipc.Socketpair()
		if err != nil {
			return Result{ExitCode: 1}, err
		}
		appLink, appFile = a, b
	} else {
		listener, err = transport.Listen(log.Fork("display"), displayPath, DisplaySocketBacklog)
		if err != nil {
			return Result{ExitCode: 1}, err
		}
	}

	cmd, err := launchApplication(p, appFile, displayPath)
	if err != nil {
		if listener != nil {
			listener.StartShutdown(nil)
		}
		if !p.Oneshot {
			os.Remove(displayPath)
		}
		return Result{ExitCode: 1}, err
	}
	if appFile != nil {
		appFile.Close()
	}

	var fifo *control.FIFO
	if p.ControlPath != "" {
		fifo, err = control.Create(p.ControlPath)
		if err != nil {
			return Result{ExitCode: 1}, err
		}
	}

	reconnectable := fifo != nil

	var runErr error
	if p.Oneshot {
		runErr = runOneshot(ctx, log, p, appLink, reconnectable, fifo)
	} else {
		runErr = runMulti(ctx, log, p, listener, reconnectable, fifo)
	}

	if fifo != nil {
		fifo.Close(true)
	}
	if !p.Oneshot && p.UnlinkAtEnd {
		os.Remove(displayPath)
	}

	state, waitErr := cmd.Process.Wait()
	if runErr != nil {
		return Result{ExitCode: 1}, runErr
	}
	if waitErr != nil {
		return Result{ExitCode: 1}, fmt.Errorf("supervisor: wait application: %w", waitErr)
	}
	return Result{ExitCode: state.ExitCode()}, nil
}

func launchApplication(p Params, appFile *os.File, displayPath string) (*exec.Cmd, error) {
	argv0 := ""
	argv := p.Argv
	if len(argv) == 0 {
		path, a := LoginShellArgv(p.LoginShellIfBackup)
		argv0 = path
		argv = a
	} else {
		argv0 = argv[0]
	}

	cmd := exec.Command(argv0)
	cmd.Args = argv
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if p.Oneshot {
		cmd.Env = append(filterEnv(cmd.Env, "WAYLAND_DISPLAY"), fmt.Sprintf("WAYLAND_SOCKET=%d", 3))
		cmd.ExtraFiles = []*os.File{appFile}
	} else {
		cmd.Env = append(filterEnv(cmd.Env, "WAYLAND_SOCKET"), "WAYLAND_DISPLAY="+displayPath)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: exec %s: %w", argv0, err)
	}
	return cmd, nil
}

func filterEnv(env []string, key string) []string {
	out := env[:0:0]
	prefix := key + "="
	for _, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// linkUnixConn converts the parent-side socketpair file into a *net.UnixConn
// usable by ipc.SendFD/RecvFD and the reconnection helper. f is closed:
// the conn holds its own duplicate, so closing the conn hangs up this
// end of the pair.
func linkUnixConn(f *os.File) (*net.UnixConn, error) {
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("supervisor: wrap link fd: %w", err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("supervisor: link fd is not a unix socket")
	}
	return uc, nil
}
