package forge

import (
	"strings"
	"unicode/utf8"

	"hephaestus-forge/internal/domain/entity"
)

// 标记命中后设置的固定进度
const (
	ProgressExtracting = 0.6
	ProgressRefining   = 0.8
)

// MarkerKind 命中的标记类型
type MarkerKind string

const (
	MarkerNone          MarkerKind = ""
	MarkerSampler       MarkerKind = "sampler"
	MarkerMarchingCubes MarkerKind = "marching_cubes"
	MarkerRefinement    MarkerKind = "refinement"
	MarkerMeshOutput    MarkerKind = "mesh_output"
)

// Markers 输出文本中的进度标记子串
type Markers struct {
	Sampler       string
	MarchingCubes string
	Refinement    string
	MeshOutput    []string
	PathPrefix    string
}

// DefaultMarkers 返回生成脚本当前使用的日志措辞
func DefaultMarkers() Markers {
	return Markers{
		// 不限定 DDIM，plms 与 dpm_solver 采样器打印 "PLMS Sampler:" / "DPM-Solver Sampler:"
		Sampler:       "Sampler:",
		MarchingCubes: "marching cube",
		Refinement:    "refinement",
		MeshOutput:    []string{"Generated mesh:", "Refined mesh:"},
		PathPrefix:    "results/",
	}
}

// ChunkResult 单个输出块对会话的影响
type ChunkResult struct {
	// Decoded 为 false 时该块被整体丢弃
	Decoded bool
	Text    string
	Marker  MarkerKind

	StepChanged     bool
	ProgressChanged bool
	// File 从日志中提取到的输出路径
	File string
}

// Parser 将子进程输出块应用到会话
type Parser struct {
	markers Markers
}

// NewParser 创建解析器
func NewParser(markers Markers) *Parser {
	return &Parser{markers: markers}
}

// Apply 追加日志并按固定优先级推断进度；每块至多一次状态更新
func (p *Parser) Apply(s *entity.GenerationSession, chunk []byte) ChunkResult {
	if len(chunk) == 0 || !utf8.Valid(chunk) {
		return ChunkResult{}
	}

	text := string(chunk)
	res := ChunkResult{Decoded: true, Text: text}
	s.AppendTranscript(text)

	switch {
	case contains(text, p.markers.Sampler):
		res.Marker = MarkerSampler
		s.SetStep(entity.StepGenerating)
		res.StepChanged = true
	case contains(text, p.markers.MarchingCubes):
		res.Marker = MarkerMarchingCubes
		s.SetStep(entity.StepExtracting)
		res.StepChanged = true
		res.ProgressChanged = s.AdvanceProgress(ProgressExtracting)
	case contains(text, p.markers.Refinement):
		res.Marker = MarkerRefinement
		s.SetStep(entity.StepRefining)
		res.StepChanged = true
		res.ProgressChanged = s.AdvanceProgress(ProgressRefining)
	case containsAny(text, p.markers.MeshOutput):
		res.Marker = MarkerMeshOutput
		if path, ok := ExtractFilePath(text, p.markers.PathPrefix); ok {
			s.AddOutputFile(path)
			res.File = path
		}
	}

	if res.StepChanged {
		if line := lastLine(text); line != "" {
			s.SetDetail(line)
		}
	}

	return res
}

// ExtractFilePath 取首个 prefix 起到换行（或块尾）为止的路径
func ExtractFilePath(text, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	idx := strings.Index(text, prefix)
	if idx < 0 {
		return "", false
	}
	path := text[idx:]
	if nl := strings.IndexByte(path, '\n'); nl >= 0 {
		path = path[:nl]
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	return path, true
}

func contains(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if contains(text, m) {
			return true
		}
	}
	return false
}

// lastLine 返回块中最后一个非空行；tqdm 风格的 \r 刷新取最后一段
func lastLine(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
