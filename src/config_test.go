package main

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_configRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	config := Config{Sites: map[string]SiteConfig{
		"xnat-dev": {URL: "https://xnat-dev.example.com", User: "admin", Pass: "secret"},
		"xnat":     {URL: "https://xnat.example.com", User: "upload", Pass: "hunter2"},
	}}
	if ok := config.writeConfig(path); !ok {
		t.Fatalf("writeConfig(%s) failed", path)
	}
	// the file contains credentials, it has to stay private
	if info, err := os.Stat(path); err != nil || info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := readSiteConfig(path)
	if err != nil {
		t.Fatalf("readSiteConfig() error = %v", err)
	}
	site, err := got.siteConfig("xnat-dev")
	if err != nil {
		t.Fatalf("siteConfig(xnat-dev) error = %v", err)
	}
	if site.URL != "https://xnat-dev.example.com" || site.User != "admin" || site.Pass != "secret" {
		t.Errorf("siteConfig(xnat-dev) = %+v", site)
	}
}

func Test_siteConfigUnknownSite(t *testing.T) {
	config := Config{Sites: map[string]SiteConfig{
		"xnat-dev": {URL: "https://xnat-dev.example.com"},
	}}
	if _, err := config.siteConfig("does-not-exist"); err == nil {
		t.Errorf("siteConfig() expected an error for an unknown site")
	}
}

func Test_readSiteConfigMissingFile(t *testing.T) {
	if _, err := readSiteConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("readSiteConfig() expected an error for a missing file")
	}
}
