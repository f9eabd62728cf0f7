package visionkit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Compiler turns a raw model into a loadable compiled artifact.
type Compiler interface {
	// Compile compiles the raw model at rawPath into outDir and returns the
	// path of the compiled artifact. The artifact may live anywhere under
	// outDir; the installer moves it to its final location.
	Compile(ctx context.Context, rawPath, outDir string) (string, error)
}

// compiledName returns "<base>.mlmodelc" for a raw model path.
func compiledName(rawPath string) string {
	base := filepath.Base(rawPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + compiledModelExt
}

// PassthroughCompiler stages the raw model unchanged as the compiled
// artifact. It suits runtimes that consume raw models directly and hosts
// without a model compiler.
type PassthroughCompiler struct{}

// Ensure PassthroughCompiler implements Compiler.
var _ Compiler = PassthroughCompiler{}

// Compile copies rawPath (a file or a package directory) to outDir.
func (PassthroughCompiler) Compile(ctx context.Context, rawPath, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, compiledName(rawPath))
	if err := copyTree(rawPath, dst); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	return dst, nil
}

// CommandCompiler compiles models with an external tool, by default
// "xcrun coremlcompiler compile <raw> <outDir>".
type CommandCompiler struct {
	// Command is the executable. Defaults to "xcrun".
	Command string

	// Args precede the raw model and output directory arguments.
	// Defaults to ["coremlcompiler", "compile"].
	Args []string
}

// Ensure CommandCompiler implements Compiler.
var _ Compiler = CommandCompiler{}

// Compile runs the tool and returns outDir/<base>.mlmodelc.
func (c CommandCompiler) Compile(ctx context.Context, rawPath, outDir string) (string, error) {
	command := c.Command
	if command == "" {
		command = "xcrun"
	}
	args := c.Args
	if args == nil {
		args = []string{"coremlcompiler", "compile"}
	}
	args = append(append([]string{}, args...), rawPath, outDir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%w: %s: %v", ErrCompilation, command, err)
		}
		return "", fmt.Errorf("%w: %s: %v: %s", ErrCompilation, command, err, msg)
	}

	out := filepath.Join(outDir, compiledName(rawPath))
	if !exists(out) {
		return "", fmt.Errorf("%w: %s produced no %s", ErrCompilation, command, filepath.Base(out))
	}
	return out, nil
}
