package fileutil

import (
	"path/filepath"
	"strings"
)

// DefaultSuffix is appended to the input stem when no output is named.
const DefaultSuffix = "_compressed"

// OutputExt is the extension of every output.
const OutputExt = ".mkv"

var unsafeNameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFileName replaces characters that are invalid on common
// filesystems and trims surrounding spaces and dots.
func SanitizeFileName(name string) string {
	name = unsafeNameChars.Replace(name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "output"
	}
	return name
}

// DefaultOutputPath derives "<stem><suffix>.mkv" for input, placed in
// outputDir when set and next to the input otherwise.
func DefaultOutputPath(input, outputDir, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := SanitizeFileName(stem+suffix) + OutputExt
	dir := strings.TrimSpace(outputDir)
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

// EnsureMKV forces the .mkv extension on an explicitly named output.
func EnsureMKV(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, OutputExt) {
		return path
	}
	return strings.TrimSuffix(path, ext) + OutputExt
}
