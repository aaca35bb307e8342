// Package fileutil resolves safe output paths and discovers input videos.
//
// PathResolver never overwrites an existing file unless asked to, and within
// one batch it never hands the same output path out twice.
package fileutil
