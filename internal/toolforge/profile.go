package toolforge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	profileBegin = "# >>> toolforge >>>"
	profileEnd   = "# <<< toolforge <<<"
)

// profileBlock is the snippet placed in the shell profile. Re-running the
// tool replaces the block instead of appending another copy.
func profileBlock(prefix string) string {
	return strings.Join([]string{
		profileBegin,
		fmt.Sprintf("export PATH=\"%s:$PATH\"", filepath.Join(prefix, "bin")),
		fmt.Sprintf("export LD_LIBRARY_PATH=\"%s${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}\"", filepath.Join(prefix, "lib")),
		fmt.Sprintf("export CPATH=\"%s${CPATH:+:$CPATH}\"", filepath.Join(prefix, "include")),
		fmt.Sprintf("export PKG_CONFIG_PATH=\"%s${PKG_CONFIG_PATH:+:$PKG_CONFIG_PATH}\"", filepath.Join(prefix, "lib", "pkgconfig")),
		fmt.Sprintf("export MANPATH=\"%s${MANPATH:+:$MANPATH}\"", filepath.Join(prefix, "share", "man")),
		profileEnd,
	}, "\n")
}

// updateProfile inserts or replaces the delimited block in the profile
// file. The file is rewritten atomically via a temp file in the same
// directory.
func updateProfile(profilePath, prefix string) error {
	existing, err := os.ReadFile(profilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read profile %s: %w", profilePath, err)
	}

	content := string(existing)
	block := profileBlock(prefix)

	begin := strings.Index(content, profileBegin)
	end := strings.Index(content, profileEnd)
	if begin != -1 && end != -1 && end > begin {
		endOfBlock := end + len(profileEnd)
		content = content[:begin] + block + content[endOfBlock:]
	} else {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n" + block + "\n"
	}

	tmp, err := os.CreateTemp(filepath.Dir(profilePath), filepath.Base(profilePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp profile: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if info, err := os.Stat(profilePath); err == nil {
		_ = os.Chmod(tmpPath, info.Mode())
	} else {
		_ = os.Chmod(tmpPath, 0o644)
	}
	if err := os.Rename(tmpPath, profilePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}
