package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/lorakit/internal/config"
	"github.com/samcharles93/lorakit/internal/inventory"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveLoraPath turns a command argument into an adapter path. An existing
// file wins; otherwise the argument names a file inside lorasDir. With no
// argument, the only adapter in lorasDir is used, or one is picked
// interactively.
func resolveLoraPath(arg, lorasDir string, stdin io.Reader, stderr io.Writer) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg != "" {
		if st, err := os.Stat(arg); err == nil && !st.IsDir() {
			return filepath.Clean(arg), nil
		}
		if lorasDir == "" {
			return "", fmt.Errorf("%s: no such file", arg)
		}
		return inventory.Resolve(lorasDir, arg)
	}

	if lorasDir == "" {
		return "", fmt.Errorf("an adapter argument or --loras-path is required unless %s is set", config.EnvLorasDir)
	}
	entries, err := inventory.Discover(lorasDir)
	if err != nil {
		return "", err
	}
	switch len(entries) {
	case 0:
		return "", fmt.Errorf("no adapters found in %s", lorasDir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using adapter %s\n", entries[0].Name)
		return entries[0].Path, nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf(
				"multiple adapters found in %s but stdin is not interactive; name one",
				lorasDir,
			)
		}
		return selectLoraInteractively(lorasDir, entries, stdin, stderr)
	}
}

func selectLoraInteractively(dir string, entries []inventory.Entry, stdin io.Reader, stderr io.Writer) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no adapters available in %s", dir)
	}

	_, _ = fmt.Fprintf(stderr, "select an adapter from %s\n", dir)
	for i, e := range entries {
		_, _ = fmt.Fprintf(stderr, "%d. %s (%s)\n", i+1, e.Name, inventory.FormatSize(e.Size))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(entries))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(entries) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin")
			}
			continue
		}
		return entries[idx-1].Path, nil
	}
}

// resolveConvertOut picks the output path for convert: the explicit flag or
// "<input>.canonical.safetensors" beside the input.
func resolveConvertOut(in, outFlag string) (string, error) {
	out := strings.TrimSpace(outFlag)
	if out == "" {
		base := strings.TrimSuffix(in, filepath.Ext(in))
		out = base + ".canonical.safetensors"
	}
	out = filepath.Clean(out)
	if out == filepath.Clean(in) {
		return "", fmt.Errorf("output %s would overwrite the input", out)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	return out, nil
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
