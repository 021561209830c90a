package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validSite(name string) SiteProfile {
	return SiteProfile{
		Name:      name,
		ExportDir: "/tmp/export",
		Endpoint: EndpointConfig{
			Protocol:   "ftp",
			Host:       "example.com",
			Port:       21,
			Username:   "deploy",
			RemotePath: "/",
		},
		Archive: ArchivePolicyConfig{
			Dir:       "/tmp/archives",
			Format:    "zip",
			Collision: "overwrite",
		},
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if len(cfg.Sites) != 0 {
		t.Errorf("expected no sites, got %d", len(cfg.Sites))
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := NewDefault()
	cfg.ClientPath = "/opt/transfer/client"
	cfg.Sites["blog"] = validSite("blog")

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ClientPath != "/opt/transfer/client" {
		t.Errorf("client path not preserved, got %q", loaded.ClientPath)
	}
	site, err := loaded.Site("blog")
	if err != nil {
		t.Fatalf("Site lookup failed: %v", err)
	}
	if site.Name != "blog" {
		t.Errorf("expected site name filled from map key, got %q", site.Name)
	}
	if site.Endpoint.Host != "example.com" {
		t.Errorf("endpoint host not preserved, got %q", site.Endpoint.Host)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("could not write corrupt file: %v", err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for corrupt config file")
	}
	if !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("expected corruption hint in error, got: %v", err)
	}
}

func TestNormalizeAppliesWikiDefaults(t *testing.T) {
	cfg := NewDefault()
	site := validSite("docs")
	site.HasWiki = true
	site.WikiSnapshotDir = "/tmp/wiki-snapshot"
	cfg.Sites["docs"] = site

	cfg.normalize()

	if got := cfg.Sites["docs"].WikiRemotePath; got != DefaultWikiRemotePath {
		t.Errorf("expected default wiki remote path %q, got %q", DefaultWikiRemotePath, got)
	}
}

func TestValidateRejectsWikiWithoutSnapshotDir(t *testing.T) {
	cfg := NewDefault()
	site := validSite("docs")
	site.HasWiki = true
	site.WikiRemotePath = "/wiki"
	cfg.Sites["docs"] = site

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for wiki site without snapshot dir")
	}
	if !strings.Contains(err.Error(), "docs") {
		t.Errorf("expected profile name in error, got: %v", err)
	}
}

func TestValidateRejectsMissingExportDir(t *testing.T) {
	cfg := NewDefault()
	site := validSite("blog")
	site.ExportDir = ""
	cfg.Sites["blog"] = site

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing export dir")
	}
}

func TestValidateRejectsBadProtocol(t *testing.T) {
	cfg := NewDefault()
	site := validSite("blog")
	site.Endpoint.Protocol = "gopher"
	cfg.Sites["blog"] = site

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unsupported protocol")
	}
	if !strings.Contains(err.Error(), "Protocol") {
		t.Errorf("expected protocol field in error, got: %v", err)
	}
}

func TestResolvePasswordPrefersEnvironment(t *testing.T) {
	site := validSite("my-blog")
	site.Endpoint.Password = "from-file"

	if got := site.ResolvePassword(); got != "from-file" {
		t.Errorf("expected file password, got %q", got)
	}

	t.Setenv("PGL_PUBLISH_PASSWORD_MY_BLOG", "from-env")
	if got := site.ResolvePassword(); got != "from-env" {
		t.Errorf("expected environment password to win, got %q", got)
	}
}

func TestPasswordEnvVarSanitizesName(t *testing.T) {
	cases := map[string]string{
		"my-blog": "PGL_PUBLISH_PASSWORD_MY_BLOG",
		"my.site": "PGL_PUBLISH_PASSWORD_MY_SITE",
		"blog2":   "PGL_PUBLISH_PASSWORD_BLOG2",
	}
	for name, want := range cases {
		if got := PasswordEnvVar(name); got != want {
			t.Errorf("PasswordEnvVar(%q) = %q, want %q", name, got, want)
		}
	}

	// The variable named by PasswordEnvVar must be the one resolution reads.
	site := validSite("my.site")
	site.Endpoint.Password = "from-file"
	t.Setenv(PasswordEnvVar("my.site"), "from-env")
	if got := site.ResolvePassword(); got != "from-env" {
		t.Errorf("expected environment password via derived key, got %q", got)
	}
}

func TestSiteNamesSorted(t *testing.T) {
	cfg := NewDefault()
	cfg.Sites["zeta"] = validSite("zeta")
	cfg.Sites["alpha"] = validSite("alpha")

	names := cfg.SiteNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted names [alpha zeta], got %v", names)
	}
}
