package toolforge

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// hashFile computes the blake3-256 digest of a file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeVersionsManifest records what was resolved this run: one line per
// component with version, origin, source URL, and the archive digest when
// the archive is present in the cache.
func writeVersionsManifest(resolutions []Resolution, catalog []Component, ledger *Ledger) error {
	path := filepath.Join(StateDir, "versions.manifest")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create versions manifest: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, res := range resolutions {
		comp := findComponent(catalog, res.Component)
		digest := "-"
		if comp != nil {
			if archive := ledger.DownloadPath(comp, res.Version); fileExists(archive) {
				if h, err := hashFile(archive); err == nil {
					digest = h
				}
			}
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n", res.Component, res.Version, res.Origin, res.URL, digest)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// probeInstalled runs a component's version probe and returns the first
// output line, which is how GNU tools report themselves.
func probeInstalled(comp *Component, prefix string) (string, error) {
	if comp.Probe == nil {
		return "", fmt.Errorf("no probe for %s", comp.Name)
	}
	program := filepath.Join(prefix, comp.Probe.Program)
	if !fileExists(program) {
		return "", fmt.Errorf("%s not installed", program)
	}
	out, err := exec.Command(program, comp.Probe.Args...).Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", program, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// writeInstalledManifest probes every installed component and records
// what actually answers from the prefix. Components without a probe or
// not yet installed are left out.
func writeInstalledManifest(catalog []Component, prefix string) error {
	path := filepath.Join(StateDir, "installed.manifest")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create installed manifest: %w", err)
	}

	w := bufio.NewWriter(f)
	for i := range catalog {
		comp := &catalog[i]
		if comp.Probe == nil {
			continue
		}
		line, err := probeInstalled(comp, prefix)
		if err != nil {
			debugf("install probe failed for %s: %v\n", comp.Name, err)
			line = "missing"
		}
		fmt.Fprintf(w, "%s: %s\n", comp.Name, line)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
