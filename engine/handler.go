package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/polydawn/vault/registry"
	"github.com/polydawn/vault/vaulterr"
)

// handlerAction is the unit handler's own action flag, distinct from the
// copier's Export/Import (though they name the same two directions).
type handlerAction string

const (
	handlerExport handlerAction = "export"
	handlerImport handlerAction = "import"
)

// invokeHandler runs a unit's handler script as a child process per spec
// §6's protocol: `<script> --action=<export|import> --dir=<dataDir>
// --bin-dir=<binDir> --home-dir=<homeDir> [unit options...]`. Exit 0 is
// success; any other code is a Handler error carrying the stderr tail.
//
// Grounded on client/rioExecClient.go's subprocess dance: exec.CommandContext,
// stderr captured to a buffer, and a goroutine that signals the child
// (SIGINT, then SIGKILL after a grace period) if ctx is cancelled -- trimmed
// down from rio's JSON-streaming protocol to vault's much simpler
// flags-in/exit-code-out contract (spec §6).
func invokeHandler(ctx context.Context, u registry.Unit, action handlerAction, dataDir, binDir, homeDir string) error {
	args := []string{
		fmt.Sprintf("--action=%s", action),
		fmt.Sprintf("--dir=%s", dataDir),
		fmt.Sprintf("--bin-dir=%s", binDir),
	}
	if homeDir != "" {
		args = append(args, fmt.Sprintf("--home-dir=%s", homeDir))
	}
	for k, v := range u.Options {
		args = append(args, fmt.Sprintf("--%s=%s", k, v))
	}

	cmd := exec.Command(u.Script, args...)
	cmd.Env = os.Environ()
	if homeDir != "" {
		cmd.Env = append(cmd.Env, "HOME="+homeDir)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return vaulterr.Errorf(vaulterr.Handler, "unit %q: failed to start handler %q: %s", u.Name, u.Script, err)
	}

	childDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Signal(os.Interrupt)
			select {
			case <-time.After(2 * time.Second):
				cmd.Process.Kill()
			case <-childDone:
			}
		case <-childDone:
		}
	}()

	err := cmd.Wait()
	close(childDone)
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		code := -1
		if ok {
			code = exitErr.ExitCode()
		}
		return vaulterr.Errorf(vaulterr.Handler,
			"unit %q: handler %q exited %d: %s", u.Name, u.Script, code, stderrBuf.String())
	}
	return nil
}
