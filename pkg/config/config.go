// Package config implements the site profile store for pgl-publish. Profiles
// are kept in a single JSON file; loading merges the file over defaults so new
// fields appear with sensible values, and every profile is validated eagerly.
// A profile that violates its invariants is a configuration error and is
// rejected before any workflow step can run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "pgl-publish.config.json"

// DefaultWikiRemotePath is used when a wiki-enabled profile does not set one.
const DefaultWikiRemotePath = "/wiki"

// passwordEnvPrefix is the prefix for per-site password environment overrides,
// e.g. PGL_PUBLISH_PASSWORD_FLORIANDHEER.
const passwordEnvPrefix = "PGL_PUBLISH_PASSWORD_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// EndpointConfig describes the remote server a site is published to.
// The password may be left empty in the file and supplied via environment.
type EndpointConfig struct {
	Protocol   string `json:"protocol" validate:"omitempty,oneof=ftp sftp"`
	Host       string `json:"host"`
	Port       int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	RemotePath string `json:"remotePath"`
}

// ArchivePolicyConfig controls the dated artifacts written after a publish.
type ArchivePolicyConfig struct {
	Dir string `json:"dir"`
	// Format selects the artifact type: 'zip' or 'tar.gz'.
	Format string `json:"format"`
	// Collision decides what happens when an artifact for the same calendar
	// day already exists: 'overwrite' or 'reject'.
	Collision string `json:"collision"`
	// Keep limits the number of dated artifacts retained per site. 0 keeps all.
	Keep int `json:"keep" validate:"min=0"`
}

// SiteProfile is the static description of one publishable site.
type SiteProfile struct {
	// Name is the unique profile key; filled from the map key at load time.
	Name            string              `json:"-"`
	Label           string              `json:"label"`
	ExportDir       string              `json:"exportDir" validate:"required"`
	HasWiki         bool                `json:"hasWiki"`
	WikiSnapshotDir string              `json:"wikiSnapshotDir" validate:"required_if=HasWiki true"`
	WikiRemotePath  string              `json:"wikiRemotePath" validate:"required_if=HasWiki true"`
	Endpoint        EndpointConfig      `json:"endpoint"`
	Archive         ArchivePolicyConfig `json:"archive"`
}

// HooksConfig lists shell commands run around a publish.
type HooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PrePublish  []string `json:"prePublish"`
	PostPublish []string `json:"postPublish"`
}

// Config is the root of the profile store.
type Config struct {
	Version  string `json:"version"`
	LogLevel string `json:"logLevel"`
	// ClientPath points at the external transfer client binary. Empty means
	// discover it in well-known locations and $PATH.
	ClientPath string                 `json:"clientPath"`
	Sites      map[string]SiteProfile `json:"sites"`
	Hooks      HooksConfig            `json:"hooks"`
}

// NewDefault creates a Config with an empty site set and documented defaults.
func NewDefault() Config {
	return Config{
		Version:  "1",
		LogLevel: "info",
		Sites:    map[string]SiteProfile{},
		Hooks:    HooksConfig{PrePublish: []string{}, PostPublish: []string{}},
	}
}

// DefaultDir returns the directory the config file lives in.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(base, "pgl-publish"), nil
}

// Load reads the config file from dir, merging it over defaults. A missing
// file yields the defaults without error; a present but invalid file is a
// configuration error.
func Load(dir string) (Config, error) {
	cfg := NewDefault()
	path := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	// Decoding into the default struct merges file values over defaults.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file %s: %w. It may be corrupt", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config file into dir, creating the directory if needed.
func (c *Config) Save(dir string) error {
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write config file %s: %w", path, err)
	}
	return nil
}

// normalize fills derived fields and per-site defaults after decoding.
func (c *Config) normalize() error {
	var err error
	if c.ClientPath, err = util.ExpandPath(c.ClientPath); err != nil {
		return err
	}
	for name, site := range c.Sites {
		site.Name = name
		if site.Label == "" {
			site.Label = name
		}
		if site.ExportDir, err = util.ExpandPath(site.ExportDir); err != nil {
			return err
		}
		if site.WikiSnapshotDir, err = util.ExpandPath(site.WikiSnapshotDir); err != nil {
			return err
		}
		if site.Archive.Dir, err = util.ExpandPath(site.Archive.Dir); err != nil {
			return err
		}
		if site.HasWiki && site.WikiRemotePath == "" {
			site.WikiRemotePath = DefaultWikiRemotePath
		}
		if site.Endpoint.Protocol == "" {
			site.Endpoint.Protocol = "ftp"
		}
		if site.Endpoint.Port == 0 {
			site.Endpoint.Port = 21
		}
		if site.Endpoint.RemotePath == "" {
			site.Endpoint.RemotePath = "/"
		}
		if site.Archive.Format == "" {
			site.Archive.Format = "zip"
		}
		if site.Archive.Collision == "" {
			site.Archive.Collision = "overwrite"
		}
		c.Sites[name] = site
	}
	return nil
}

// Validate checks every profile's invariants. It fails fast on the first
// invalid profile so the error message points at one concrete problem.
func (c *Config) Validate() error {
	for name, site := range c.Sites {
		if err := validate.Struct(site); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return fmt.Errorf("invalid profile %q: %s", name, describeFieldError(verrs[0]))
			}
			return fmt.Errorf("invalid profile %q: %w", name, err)
		}
		// The wiki invariant deserves a message the tag engine cannot produce.
		if site.HasWiki && strings.TrimSpace(site.WikiSnapshotDir) == "" {
			return fmt.Errorf("invalid profile %q: hasWiki is set but wikiSnapshotDir is empty", name)
		}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required for wiki-enabled sites", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// Site looks up a profile by name.
func (c *Config) Site(name string) (SiteProfile, error) {
	site, ok := c.Sites[name]
	if !ok {
		return SiteProfile{}, fmt.Errorf("unknown site profile %q", name)
	}
	return site, nil
}

// SiteNames returns the profile names in sorted order for stable listings.
func (c *Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PasswordEnvVar is the name of the environment variable that overrides the
// stored password for the named site. Anything that tells an operator which
// variable to export must use this, so the name always matches resolution.
func PasswordEnvVar(siteName string) string {
	return passwordEnvPrefix + sanitizeEnvKey(siteName)
}

// ResolvePassword returns the effective password for a profile: the
// environment override wins over the config file value.
func (p *SiteProfile) ResolvePassword() string {
	if v, ok := os.LookupEnv(PasswordEnvVar(p.Name)); ok {
		return v
	}
	return p.Endpoint.Password
}

// ArchiveSiteDir is the directory dated artifacts for this profile go into.
func (p *SiteProfile) ArchiveSiteDir() string {
	return filepath.Join(p.Archive.Dir, p.Name)
}

// ExportWikiDir is the wiki subtree inside the export directory.
func (p *SiteProfile) ExportWikiDir() string {
	return filepath.Join(p.ExportDir, "wiki")
}

func sanitizeEnvKey(name string) string {
	upper := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}
