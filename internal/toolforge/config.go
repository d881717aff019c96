package toolforge

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load ~/.config/toolforge/toolforge.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Merge TOOLFORGE_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "TOOLFORGE_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func initConfig(cfg *Config) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	Prefix = cfg.Values["TOOLFORGE_PREFIX"]
	if Prefix == "" {
		Prefix = filepath.Join(home, "tools")
	}
	Prefix = expandHome(Prefix)

	WorkDir = cfg.Values["TOOLFORGE_WORKDIR"]
	if WorkDir == "" {
		WorkDir = filepath.Join(home, ".cache", "toolforge")
	}
	WorkDir = expandHome(WorkDir)

	DownloadDir = filepath.Join(WorkDir, "downloads")
	SourceDir = filepath.Join(WorkDir, "sources")
	LogDir = filepath.Join(WorkDir, "logs")
	StateDir = filepath.Join(WorkDir, "state")

	ProfileFile = cfg.Values["TOOLFORGE_PROFILE"]
	if ProfileFile == "" {
		ProfileFile = filepath.Join(home, ".bashrc")
	}
	ProfileFile = expandHome(ProfileFile)

	MakeJobs = runtime.NumCPU()
	if jobs := cfg.Values["TOOLFORGE_JOBS"]; jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil && n > 0 {
			MakeJobs = n
		}
	}

	Debug = cfg.Values["TOOLFORGE_DEBUG"] == "1"

	CompatSet = cfg.Values["TOOLFORGE_COMPAT_SET"]
	if CompatSet == "" {
		CompatSet = "latest"
	}

	// Load the GNU mirror URL if it's set in the config
	if mirror := cfg.Values["TOOLFORGE_GNU_MIRROR"]; mirror != "" {
		gnuMirrorURL = strings.TrimRight(mirror, "/")
		mirrorPinned = true
		debugf("=> Using GNU mirror from config: %s\n", gnuMirrorURL)
	}
	if gnuMirrorURL == "" {
		// The benchmark cache from a previous run wins over the hardcoded default.
		if cached := cachedFastestMirror(); cached != "" {
			gnuMirrorURL = cached
			debugf("=> Using cached fastest GNU mirror: %s\n", gnuMirrorURL)
		}
	}
	if gnuMirrorURL == "" {
		// mirrors.kernel.org is reliable and globally distributed, making it an excellent default.
		gnuMirrorURL = "https://mirrors.kernel.org/gnu"
		debugf("=> No GNU mirror configured, using default: %s\n", gnuMirrorURL)
	}
}

// ensureWorkDirs creates the directories every run depends on.
// Failure here aborts before any task starts.
func ensureWorkDirs() error {
	for _, dir := range []string{DownloadDir, SourceDir, LogDir, StateDir, Prefix} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
