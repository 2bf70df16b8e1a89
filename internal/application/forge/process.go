package forge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultDrainGrace 子进程退出后继续读取残留输出的时长
const DefaultDrainGrace = 500 * time.Millisecond

// activateShim 先 source 环境脚本再 exec argv；argv 以位置参数传入，不被 shell 解析
const activateShim = `script="$1"; shift; . "$script" && exec "$@"`

// Invocation 一次子进程启动描述
type Invocation struct {
	Dir            string
	Argv           []string
	Env            []string
	ActivateScript string
	Shell          string
}

// Process 运行中的子进程
type Process interface {
	// Output 合并后的 stdout/stderr
	Output() io.Reader
	// Wait 等待退出；非零退出码不作为错误返回
	Wait() (exitCode int, err error)
}

// Launcher 子进程启动器
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) (Process, error)
}

// ExecLauncher 基于 os/exec 的启动器；ctx 取消时终止整个进程组
type ExecLauncher struct {
	// DrainGrace 子进程退出后等待输出读尽的时长，超时即关闭读端。
	// 后台孙进程继承的写端不会阻止会话结束。
	DrainGrace time.Duration
}

// NewExecLauncher 创建启动器
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{DrainGrace: DefaultDrainGrace}
}

// Launch 启动子进程，stdout 与 stderr 写入同一管道
func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation) (Process, error) {
	if len(inv.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name, args := inv.Argv[0], inv.Argv[1:]
	if inv.ActivateScript != "" {
		shell := inv.Shell
		if shell == "" {
			shell = "/bin/sh"
		}
		name = shell
		args = append([]string{"-c", activateShim, "forge", inv.ActivateScript}, inv.Argv...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	configureProcessGroup(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// 父进程不持有写端；所有写端关闭后读端得到 EOF
	_ = w.Close()

	p := &execProcess{
		cmd:     cmd,
		out:     r,
		drained: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	grace := l.DrainGrace
	if grace <= 0 {
		grace = DefaultDrainGrace
	}
	go p.watch(grace)
	return p, nil
}

type execProcess struct {
	cmd *exec.Cmd
	out *os.File

	drainOnce sync.Once
	drained   chan struct{}
	exited    chan struct{}
	code      int
	err       error
}

func (p *execProcess) Output() io.Reader {
	return outputReader{p: p}
}

// Wait 在子进程退出且输出读端关闭后返回
func (p *execProcess) Wait() (int, error) {
	<-p.exited
	return p.code, p.err
}

// watch 等待子进程自身退出，读尽或超过 grace 后关闭读端
func (p *execProcess) watch(grace time.Duration) {
	p.code, p.err = exitStatus(p.cmd.Wait())

	timer := time.NewTimer(grace)
	select {
	case <-p.drained:
	case <-timer.C:
	}
	timer.Stop()
	_ = p.out.Close()
	close(p.exited)
}

func (p *execProcess) markDrained() {
	p.drainOnce.Do(func() { close(p.drained) })
}

// outputReader 读端被 watch 关闭时按 EOF 处理
type outputReader struct {
	p *execProcess
}

func (r outputReader) Read(b []byte) (int, error) {
	n, err := r.p.out.Read(b)
	if err != nil {
		r.p.markDrained()
		if errors.Is(err, os.ErrClosed) {
			err = io.EOF
		}
	}
	return n, err
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
