// Package fileops issues file manipulation commands on fleet hosts.
package fileops

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/terabiome/archdev/pkg/executor"
)

func RemoveFile(ctx context.Context, runner executor.HostRunner, host, file string) error {
	if _, err := runner.Execute(ctx, host, shellquote.Join("rm", "-f", file)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", file, err)
	}
	return nil
}

func CreateDirectory(ctx context.Context, runner executor.HostRunner, host, dir string) error {
	if _, err := runner.Execute(ctx, host, shellquote.Join("mkdir", "-p", dir)); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst keeping holes in sparse images.
func CopyFile(ctx context.Context, runner executor.HostRunner, host, src, dst string) error {
	if _, err := runner.Execute(ctx, host, shellquote.Join("cp", "--sparse=always", src, dst)); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// WriteFile replaces dst atomically: content goes to a sibling temp file
// that is then renamed over dst.
func WriteFile(ctx context.Context, runner executor.HostRunner, host, dst, content string) error {
	tmp := path.Join(path.Dir(dst), "."+path.Base(dst)+".tmp")
	cmd := shellquote.Join("mkdir", "-p", path.Dir(dst)) +
		" && " + shellquote.Join("printf", "%s", content) + " > " + shellquote.Join(tmp) +
		" && " + shellquote.Join("mv", "-f", tmp, dst)

	if _, err := runner.Execute(ctx, host, cmd); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// ReadFile returns the file content, or found=false when it does not exist.
func ReadFile(ctx context.Context, runner executor.HostRunner, host, file string) (content string, found bool, err error) {
	q := shellquote.Join(file)
	cmd := "if [ -f " + q + " ]; then printf 'found\\n'; cat " + q + "; fi"

	out, err := runner.Execute(ctx, host, cmd)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", file, err)
	}

	rest, ok := strings.CutPrefix(out, "found\n")
	if !ok {
		return "", false, nil
	}
	return rest, true, nil
}

// CatDirectory concatenates every regular file in dir matching pattern.
// A missing directory yields empty output.
func CatDirectory(ctx context.Context, runner executor.HostRunner, host, dir, pattern string) (string, error) {
	q := shellquote.Join(dir)
	cmd := "if [ -d " + q + " ]; then " +
		shellquote.Join("find", dir, "-maxdepth", "1", "-type", "f", "-name", pattern, "-exec", "cat", "{}", "+") +
		"; fi"

	out, err := runner.Execute(ctx, host, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return out, nil
}
