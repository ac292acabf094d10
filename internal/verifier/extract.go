package verifier

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sanitizePath normalizes an archive entry name (forward slashes, no drive,
// no leading '/') and drops '.' and '..' segments so it cannot leave the root.
func sanitizePath(p string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	return strings.Join(stack, "/")
}

// extractZip unpacks src into dest. Symlink entries are skipped.
func extractZip(src, dest string) (int, error) {
	// entry names are sanitized below, so insecure paths are not fatal
	zr, err := zip.OpenReader(src)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}

	count := 0
	for _, f := range zr.File {
		name := sanitizePath(f.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, err
			}
			continue
		case mode&os.ModeSymlink != 0:
			continue
		}

		if err := extractFile(f, target); err != nil {
			return count, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	perm := f.Mode().Perm() | 0600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
