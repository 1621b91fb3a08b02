package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// isolate clears every STRMSYNC_ variable for the duration of the test.
func isolate(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "STRMSYNC_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

func TestLoad_defaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.OutputPath != "content" || c.PointerExt != ".pointer" || c.BatchSize != 100 || c.Workers != 10 {
		t.Errorf("defaults = %+v", c)
	}
	if c.EntryTimeout.Duration != 60*time.Second || c.LanguageCode != "EN" || c.LanguageFilter {
		t.Errorf("defaults = %+v", c)
	}
	if c.MovieKeywords != nil {
		t.Errorf("movie keywords should stay nil for built-ins, got %v", c.MovieKeywords)
	}
}

func TestLoad_fileThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "strmsync.toml")
	data := `
sources = ["/srv/a.m3u", "http://b/list.m3u"]
output_path = "/media/library"
pointer_extension = "strm"
language_filter = true
language_code = "fr"
workers = 4
entry_timeout = "15s"
movie_keywords = ["film"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STRMSYNC_WORKERS", "6")
	t.Setenv("STRMSYNC_TV_KEYWORDS", "series, saison ,")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.OutputPath != "/media/library" || c.PointerExt != ".strm" || c.LanguageCode != "FR" || !c.LanguageFilter {
		t.Errorf("file values = %+v", c)
	}
	if c.Workers != 6 {
		t.Errorf("env should override file: workers = %d", c.Workers)
	}
	if c.EntryTimeout.Duration != 15*time.Second {
		t.Errorf("entry timeout = %v", c.EntryTimeout)
	}
	if !reflect.DeepEqual(c.TVKeywords, []string{"series", "saison"}) || !reflect.DeepEqual(c.MovieKeywords, []string{"film"}) {
		t.Errorf("keywords = %v / %v", c.MovieKeywords, c.TVKeywords)
	}
	if !reflect.DeepEqual(c.PlaylistSources(), []string{"/srv/a.m3u", "http://b/list.m3u"}) {
		t.Errorf("sources = %v", c.PlaylistSources())
	}
}

func TestLoad_configPathFromEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "c.toml")
	if err := os.WriteFile(path, []byte(`batch_size = 7`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STRMSYNC_CONFIG", path)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.BatchSize != 7 {
		t.Errorf("batch size = %d", c.BatchSize)
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	isolate(t)
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Workers != 10 {
		t.Errorf("workers = %d", c.Workers)
	}
}

func TestLoad_rejectsBadFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax":   `workers = `,
		"unknown":  `wrokers = 3`,
		"duration": `entry_timeout = "soon"`,
	} {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"empty output", func(c *Config) { c.OutputPath = "" }, "output_path"},
		{"filter without code", func(c *Config) { c.LanguageFilter, c.LanguageCode = true, "" }, "language_code"},
		{"zero timeout", func(c *Config) { c.EntryTimeout.Duration = 0 }, "entry_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
	d := Default()
	if err := d.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad_envValidationError(t *testing.T) {
	isolate(t)
	t.Setenv("STRMSYNC_BATCH_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestM3UURLsOrBuild(t *testing.T) {
	c := Default()
	c.ProviderURL = "http://host/"
	c.ProviderUser, c.ProviderPass = "u", "p&q"
	want := "http://host/get.php?username=u&password=p%26q&type=m3u_plus&output=ts"
	if got := c.M3UURLsOrBuild(); len(got) != 1 || got[0] != want {
		t.Errorf("M3UURLsOrBuild() = %v, want %q", got, want)
	}

	c.ProviderURLs = []string{"http://a", " ", "http://b"}
	if got := c.M3UURLsOrBuild(); len(got) != 2 || !strings.HasPrefix(got[1], "http://b/get.php") {
		t.Errorf("multiple bases = %v", got)
	}

	c.ProviderPass = ""
	if got := c.M3UURLsOrBuild(); got != nil {
		t.Errorf("no creds should give nil; got %v", got)
	}
}

func TestPlaylistSources_preferM3UURL(t *testing.T) {
	c := Default()
	c.Sources = []string{"/a.m3u"}
	c.M3UURL = "http://custom/m3u"
	c.ProviderURL, c.ProviderUser, c.ProviderPass = "http://host", "u", "p"
	got := c.PlaylistSources()
	if !reflect.DeepEqual(got, []string{"/a.m3u", "http://custom/m3u"}) {
		t.Errorf("sources = %v", got)
	}
}
