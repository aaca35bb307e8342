package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mkv": {}, ".mov": {}, ".wmv": {}, ".flv": {},
	".webm": {}, ".m4v": {}, ".3gp": {}, ".ts": {}, ".mts": {}, ".m2ts": {},
}

// VideoExtensions lists the recognized input extensions, sorted.
func VideoExtensions() []string {
	out := make([]string, 0, len(videoExtensions))
	for ext := range videoExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsVideoFile reports whether path carries a recognized video extension.
func IsVideoFile(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DiscoverInputs expands command-line inputs into an ordered, de-duplicated
// file list. Directories contribute their video files (descending when
// recursive is set) and glob patterns are expanded. Plain paths are kept even
// when they do not exist so the batch reports them instead of dropping them.
func DiscoverInputs(inputs []string, recursive bool) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(path string) {
		k := key(path)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, path)
	}

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.ContainsAny(input, "*?[") {
			if _, err := os.Lstat(input); err != nil {
				matches, err := filepath.Glob(input)
				if err != nil {
					return nil, fmt.Errorf("expand %q: %w", input, err)
				}
				sort.Strings(matches)
				for _, match := range matches {
					if info, err := os.Stat(match); err == nil && info.Mode().IsRegular() && IsVideoFile(match) {
						add(match)
					}
				}
				continue
			}
		}

		info, err := os.Stat(input)
		if err != nil || !info.IsDir() {
			add(input)
			continue
		}
		files, err := videoFilesIn(input, recursive)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			add(file)
		}
	}
	return out, nil
}

func videoFilesIn(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsVideoFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return files, nil
}
