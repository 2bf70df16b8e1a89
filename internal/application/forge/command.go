package forge

import (
	"strconv"
	"strings"

	"hephaestus-forge/internal/domain/entity"
)

// BuildArgs 将参数映射为生成脚本的 argv（不经过 shell）
//
// 可选参数按固定顺序追加：--seed、--no_video、--no_mcubes、--refine 组。
func BuildArgs(req entity.GenerationRequest, opts Options) []string {
	argv := make([]string, 0, len(opts.Interpreter)+24)
	argv = append(argv, opts.Interpreter...)
	argv = append(argv, opts.Script)
	argv = append(argv, scriptFlags(req)...)
	return argv
}

func scriptFlags(req entity.GenerationRequest) []string {
	flags := []string{
		"--text", req.Prompt,
		"--samples", strconv.Itoa(req.Samples),
		"--sampler", string(req.Sampler),
		"--steps", strconv.Itoa(req.Steps),
		"--cfg_scale", formatScale(req.CFGScale),
		"--mcubes_res", strconv.Itoa(req.MCubesRes),
		"--render_res", strconv.Itoa(req.RenderRes),
	}

	if req.Seed != nil {
		flags = append(flags, "--seed", strconv.FormatInt(*req.Seed, 10))
	}
	if !req.GenerateVideo {
		flags = append(flags, "--no_video")
	}
	if req.SkipMesh {
		flags = append(flags, "--no_mcubes")
	}
	if req.Refine {
		flags = append(flags,
			"--refine",
			"--refine_mode", string(req.RefineMode),
			"--refine_iters", strconv.Itoa(req.RefineIters),
		)
	}
	return flags
}

// Command 返回用于展示的单行命令，prompt 以双引号包裹
func Command(req entity.GenerationRequest, opts Options) string {
	parts := make([]string, 0, len(opts.Interpreter)+24)
	parts = append(parts, opts.Interpreter...)
	parts = append(parts, opts.Script)

	flags := scriptFlags(req)
	for i := 0; i < len(flags); i++ {
		parts = append(parts, flags[i])
		if flags[i] == "--text" && i+1 < len(flags) {
			parts = append(parts, quotePrompt(flags[i+1]))
			i++
		}
	}
	return strings.Join(parts, " ")
}

// formatScale 至少保留一位小数：7.5 -> "7.5"，7 -> "7.0"
func formatScale(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

var promptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")

func quotePrompt(p string) string {
	return `"` + promptEscaper.Replace(p) + `"`
}
