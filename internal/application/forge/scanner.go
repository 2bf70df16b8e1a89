package forge

import (
	"os"
	"path/filepath"
	"strings"
)

// ScanRule 某个结果子目录保留的扩展名
type ScanRule struct {
	Subdir   string
	Suffixes []string
}

// DefaultScanRules stage1 保留 .ply/.mp4，stage2 保留 .ply/.glb
var DefaultScanRules = []ScanRule{
	{Subdir: "stage1", Suffixes: []string{".ply", ".mp4"}},
	{Subdir: "stage2", Suffixes: []string{".ply", ".glb"}},
}

// ScannedFile 扫描到的输出文件
type ScannedFile struct {
	Path   string
	Source string
}

// ScanOutputs 按规则顺序列出结果目录下的输出文件；缺失目录静默跳过
func ScanOutputs(root string, rules []ScanRule) []ScannedFile {
	var out []ScannedFile
	for _, rule := range rules {
		dir := filepath.Join(root, rule.Subdir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if hasAnySuffix(e.Name(), rule.Suffixes) {
				out = append(out, ScannedFile{
					Path:   filepath.Join(dir, e.Name()),
					Source: rule.Subdir,
				})
			}
		}
	}
	return out
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
