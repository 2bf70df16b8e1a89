//go:build unix

package forge

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/internal/domain/entity"
)

func runToEnd(t *testing.T, ctx context.Context, inv Invocation) (string, int) {
	t.Helper()
	proc, err := NewExecLauncher().Launch(ctx, inv)
	require.NoError(t, err)

	out, err := io.ReadAll(proc.Output())
	require.NoError(t, err)
	code, err := proc.Wait()
	require.NoError(t, err)
	return string(out), code
}

func TestExecLauncher_CombinedOutputAndExitCode(t *testing.T) {
	out, code := runToEnd(t, context.Background(), Invocation{
		Dir:  t.TempDir(),
		Argv: []string{"/bin/sh", "-c", "echo out; echo err 1>&2; exit 3"},
	})

	assert.Contains(t, out, "out\n")
	assert.Contains(t, out, "err\n")
	assert.Equal(t, 3, code)
}

func TestExecLauncher_ArgvNotInterpretedByShell(t *testing.T) {
	dir := t.TempDir()
	activate := filepath.Join(dir, "activate.sh")
	require.NoError(t, os.WriteFile(activate, []byte("export FORGE_ENV=ready\n"), 0o644))

	out, code := runToEnd(t, context.Background(), Invocation{
		Dir:            dir,
		Argv:           []string{"/bin/sh", "-c", `printf '%s|%s\n' "$FORGE_ENV" "$1"`, "sh", `a "robot"; echo pwned $HOME`},
		ActivateScript: activate,
		Shell:          "/bin/sh",
	})

	assert.Equal(t, 0, code)
	assert.Equal(t, "ready|a \"robot\"; echo pwned $HOME\n", out)
}

func TestExecLauncher_WorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	out, _ := runToEnd(t, context.Background(), Invocation{
		Dir:  dir,
		Argv: []string{"/bin/sh", "-c", `echo "$(pwd -P) $FORGE_EXTRA"`},
		Env:  []string{"FORGE_EXTRA=1"},
	})

	assert.Equal(t, resolved+" 1\n", out)
}

func TestExecLauncher_CancelKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc, err := NewExecLauncher().Launch(ctx, Invocation{
		Dir:  t.TempDir(),
		Argv: []string{"/bin/sh", "-c", "sleep 30 & wait"},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, proc.Output())
		_, _ = proc.Wait()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process group was not killed")
	}
}

func TestExecLauncher_MissingExecutable(t *testing.T) {
	_, err := NewExecLauncher().Launch(context.Background(), Invocation{
		Dir:  t.TempDir(),
		Argv: []string{filepath.Join(t.TempDir(), "no-such-binary")},
	})
	assert.Error(t, err)

	_, err = NewExecLauncher().Launch(context.Background(), Invocation{})
	assert.Error(t, err)
}

func TestExecLauncher_BackgroundChildDoesNotBlockExit(t *testing.T) {
	launcher := &ExecLauncher{DrainGrace: 100 * time.Millisecond}
	proc, err := launcher.Launch(context.Background(), Invocation{
		Dir:  t.TempDir(),
		Argv: []string{"/bin/sh", "-c", "echo started; sleep 5 & exit 0"},
	})
	require.NoError(t, err)

	type result struct {
		out  string
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, _ := io.ReadAll(proc.Output())
		code, err := proc.Wait()
		done <- result{out: string(out), code: code, err: err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 0, res.code)
		assert.Equal(t, "started\n", res.out)
	case <-time.After(2 * time.Second):
		t.Fatal("wait blocked on output held by a background child")
	}
}

func TestOrchestrator_CompletesWhenScriptLeavesBackgroundChild(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "sample_stage1.py")
	require.NoError(t, os.WriteFile(script, []byte("echo 'DDIM Sampler: running'\nsleep 5 &\nexit 0\n"), 0o644))

	opts := DefaultOptions()
	opts.ProjectRoot = dir
	opts.Interpreter = []string{"/bin/sh"}
	opts.Script = script
	opts.ResultsRoot = filepath.Join(dir, "results", "default")

	o := NewOrchestrator(opts, &ExecLauncher{DrainGrace: 100 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	started, err := o.Submit(context.Background(), entity.DefaultGenerationRequest())
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	snap, err := o.Wait(waitCtx, started.ID)
	require.NoError(t, err, "session should finish when the script exits")

	assert.Equal(t, entity.SessionStatusCompleted, snap.Status)
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 0, *snap.ExitCode)
	assert.Contains(t, snap.Transcript, "DDIM Sampler: running")

	_, err = o.Submit(context.Background(), entity.DefaultGenerationRequest())
	assert.NoError(t, err)
}
