package simsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Launcher starts the external simulator once and blocks until the process
// returns. A nil error only means the simulator accepted the job.
type Launcher interface {
	Launch(ctx context.Context) error
}

// LaunchError reports a nonzero status from the simulator process
type LaunchError struct {
	Command string
	Output  string
	Err     error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("simulator launch failed (%s): %v", e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExecLauncher runs "<prefix...> <executable> <args...>" in Dir
type ExecLauncher struct {
	Prefix     []string
	Executable string
	Args       []string
	Dir        string
}

// NewExecLauncher builds a launcher for one simulator invocation, e.g.
// batch-simulating a netlist with flag "-b".
func NewExecLauncher(prefix []string, executable, dir string, args ...string) *ExecLauncher {
	return &ExecLauncher{
		Prefix:     append([]string(nil), prefix...),
		Executable: executable,
		Args:       append([]string(nil), args...),
		Dir:        dir,
	}
}

func (l *ExecLauncher) argv() []string {
	argv := make([]string, 0, len(l.Prefix)+1+len(l.Args))
	argv = append(argv, l.Prefix...)
	argv = append(argv, l.Executable)
	return append(argv, l.Args...)
}

// String renders the command line for logs
func (l *ExecLauncher) String() string {
	argv := l.argv()
	for i, a := range argv {
		if strings.ContainsAny(a, " \t") {
			argv[i] = `"` + a + `"`
		}
	}
	return strings.Join(argv, " ")
}

// Launch runs the command and waits for it to exit
func (l *ExecLauncher) Launch(ctx context.Context) error {
	argv := l.argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &LaunchError{Command: l.String(), Output: out.String(), Err: err}
	}
	return nil
}
