// Package forge 实现生成参数表单、命令构建、子进程监督与输出解析
package forge

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"hephaestus-forge/internal/config"
)

// Options 编排器运行参数
type Options struct {
	// ProjectRoot 子进程工作目录
	ProjectRoot string
	// Interpreter 解释器 argv，如 ["python", "-u"]
	Interpreter []string
	// Script 生成脚本
	Script string
	// ActivateScript 绝对路径；为空时不 source
	ActivateScript string
	// Shell 用于 source 环境脚本
	Shell string
	// ResultsRoot 结果根目录（绝对或相对工作目录）
	ResultsRoot string
	// Env 附加环境变量
	Env []string
	// RunTimeout 0 表示不限制
	RunTimeout time.Duration
	// ReadBufferSize 单次读取字节数
	ReadBufferSize int
	// SubscriberBuffer 事件订阅通道缓冲
	SubscriberBuffer int

	Markers Markers
}

// DefaultOptions 返回本地开发用默认值
func DefaultOptions() Options {
	return Options{
		ProjectRoot:      ".",
		Interpreter:      []string{"python", "-u"},
		Script:           "sample_stage1.py",
		Shell:            "/bin/sh",
		ResultsRoot:      filepath.Join(".", "results", "default"),
		ReadBufferSize:   4096,
		SubscriberBuffer: 256,
		Markers:          DefaultMarkers(),
	}
}

// NewOptions 由配置构建运行参数
func NewOptions(cfg config.GeneratorConfig) (Options, error) {
	opts := DefaultOptions()

	if cfg.ProjectRoot != "" {
		root, err := filepath.Abs(cfg.ProjectRoot)
		if err != nil {
			return Options{}, fmt.Errorf("resolve project root: %w", err)
		}
		opts.ProjectRoot = root
	}

	if strings.TrimSpace(cfg.Interpreter) != "" {
		argv, err := shellquote.Split(cfg.Interpreter)
		if err != nil {
			return Options{}, fmt.Errorf("parse interpreter %q: %w", cfg.Interpreter, err)
		}
		opts.Interpreter = argv
	}
	if cfg.Script != "" {
		opts.Script = cfg.Script
	}
	if cfg.ActivateScript != "" {
		opts.ActivateScript = resolveUnder(opts.ProjectRoot, cfg.ActivateScript)
	}
	if cfg.Shell != "" {
		opts.Shell = cfg.Shell
	}
	if cfg.ResultsDir != "" {
		opts.ResultsRoot = resolveUnder(opts.ProjectRoot, cfg.ResultsDir)
	} else {
		opts.ResultsRoot = filepath.Join(opts.ProjectRoot, "results", "default")
	}
	opts.Env = append(opts.Env, cfg.Env...)
	opts.RunTimeout = cfg.RunTimeout
	if cfg.ReadBufferSize > 0 {
		opts.ReadBufferSize = cfg.ReadBufferSize
	}
	if cfg.SubscriberBuffer > 0 {
		opts.SubscriberBuffer = cfg.SubscriberBuffer
	}

	m := cfg.Markers
	if m.Sampler != "" {
		opts.Markers.Sampler = m.Sampler
	}
	if m.MarchingCubes != "" {
		opts.Markers.MarchingCubes = m.MarchingCubes
	}
	if m.Refinement != "" {
		opts.Markers.Refinement = m.Refinement
	}
	if len(m.MeshOutput) > 0 {
		opts.Markers.MeshOutput = append([]string(nil), m.MeshOutput...)
	}
	if m.PathPrefix != "" {
		opts.Markers.PathPrefix = m.PathPrefix
	}

	return opts, nil
}

func resolveUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
