package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"
)

// SiteConfig stores the credentials for one research data server.
type SiteConfig struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type Config struct {
	Sites map[string]SiteConfig `yaml:"sites"`
}

// defaultConfigPath returns the per-user config location (~/.sdu/config.yaml).
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sdu", "config.yaml")
	}
	return filepath.Join(home, ".sdu", "config.yaml")
}

// readSiteConfig parses the yaml config with the known sites.
// It returns the parsed sites as a marshaled structure.
func readSiteConfig(path_string string) (Config, error) {
	if _, err := os.Stat(path_string); err != nil && os.IsNotExist(err) {
		return Config{}, fmt.Errorf("file %s does not exist", path_string)
	}
	// we need to check if the config file has the correct permissions,
	// produce a warning if it does not! The file stores passwords.
	if fileInfo, err := os.Stat(path_string); err == nil {
		mode := fileInfo.Mode()
		mode_str := fmt.Sprintf("%s", mode)
		if mode_str != "-rw-------" {
			fmt.Println("Warning: Your config file is not secure. Change the permissions by 'chmod 0600 "+path_string+"'. Now: ", mode)
		}
	} else {
		fmt.Println(err)
	}

	byteValue, err := os.ReadFile(path_string)
	if err != nil {
		return Config{}, fmt.Errorf("could not open the file %s", path_string)
	}

	var config Config
	if err := yaml.Unmarshal(byteValue, &config); err != nil {
		return Config{}, fmt.Errorf("could not parse the file %s: %w", path_string, err)
	}
	if config.Sites == nil {
		config.Sites = make(map[string]SiteConfig)
	}
	return config, nil
}

// writeConfig stores the sites back to disk with user-only permissions.
func (config Config) writeConfig(path_string string) bool {
	if err := os.MkdirAll(filepath.Dir(path_string), 0700); err != nil {
		fmt.Println("Warning: could not create the config directory", err)
		return false
	}
	file, err := yaml.Marshal(config)
	if err != nil {
		return false
	}
	if err := os.WriteFile(path_string, file, 0600); err != nil {
		fmt.Println("Warning: could not write the config file", err)
		return false
	}
	return true
}

// siteConfig looks up one site by name.
func (config Config) siteConfig(site string) (SiteConfig, error) {
	s, ok := config.Sites[site]
	if !ok {
		var known []string
		for k := range config.Sites {
			known = append(known, k)
		}
		sort.Strings(known)
		return SiteConfig{}, fmt.Errorf("site %q is not in the config file, known sites are %v", site, known)
	}
	if s.URL == "" {
		return SiteConfig{}, fmt.Errorf("site %q has no url", site)
	}
	return s, nil
}
