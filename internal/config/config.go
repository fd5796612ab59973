package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoEntries indicates the configuration declares no entry points
	ErrNoEntries = errors.New("no entry points configured")
	// ErrInvalidPolicy indicates the chunking policy is inconsistent
	ErrInvalidPolicy = errors.New("invalid chunking policy")
	// ErrInvalidOutput indicates the output settings are unusable
	ErrInvalidOutput = errors.New("invalid output settings")
)

// Chunks selects which kind of split point a cache group applies to.
type Chunks string

const (
	ChunksInitial Chunks = "initial"
	ChunksAsync   Chunks = "async"
	ChunksAll     Chunks = "all"
)

// RuntimeChunk controls extraction of the module runtime into its own chunk.
type RuntimeChunk string

const (
	RuntimeInline   RuntimeChunk = ""
	RuntimeMultiple RuntimeChunk = "multiple"
	RuntimeSingle   RuntimeChunk = "single"
)

// Config is the complete, immutable description of one build. It is loaded once
// and passed by value to every stage.
type Config struct {
	Resolution Resolution `yaml:"resolve"`
	Transform  Transform  `yaml:"transform"`
	Policy     Policy     `yaml:"splitChunks"`
	Output     Output     `yaml:"output"`
	HTML       HTML       `yaml:"html"`
	// Workers bounds graph loading and transform concurrency; 0 means GOMAXPROCS
	Workers int `yaml:"workers"`

	// dir is the directory the configuration was loaded from
	dir string
}

// Entry names a root module of the graph.
type Entry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Resolution controls how specifiers map to files.
type Resolution struct {
	Entries []Entry `yaml:"entries"`
	// Alias maps an exact specifier to a file path
	Alias map[string]string `yaml:"alias"`
	// Modules lists module root directories, bare names are searched upwards
	Modules    []string `yaml:"modules"`
	Extensions []string `yaml:"extensions"`
	// MainFields are the package.json fields consulted for directory resolution
	MainFields []string `yaml:"mainFields"`
}

// Transform is the single transform rule: which files it tests, which it
// excludes and the ordered transforms applied to the rest.
type Transform struct {
	Test       []string        `yaml:"test"`
	Exclude    Exclude         `yaml:"exclude"`
	Transforms []TransformSpec `yaml:"use"`
}

// Exclude is a default-deny filter over a base directory with allow-listed
// sub-paths carved out.
type Exclude struct {
	Base  string   `yaml:"base"`
	Allow []string `yaml:"allow"`
}

// TransformSpec selects a built-in transform by name.
type TransformSpec struct {
	Name    string           `yaml:"name"`
	Esbuild *EsbuildSettings `yaml:"esbuild,omitempty"`
}

type EsbuildSettings struct {
	Target string            `yaml:"target"`
	Define map[string]string `yaml:"define"`
	Pure   []string          `yaml:"pure"`
	Minify bool              `yaml:"minify"`
	// JSXFactory defaults to React.createElement
	JSXFactory  string `yaml:"jsxFactory"`
	JSXFragment string `yaml:"jsxFragment"`
}

// Policy is the chunking policy applied by the splitter.
type Policy struct {
	Chunks                 Chunks       `yaml:"chunks"`
	MinSize                int          `yaml:"minSize"`
	MaxSize                int          `yaml:"maxSize"`
	MinChunks              int          `yaml:"minChunks"`
	MaxAsyncRequests       int          `yaml:"maxAsyncRequests"`
	MaxInitialRequests     int          `yaml:"maxInitialRequests"`
	AutomaticNameDelimiter string       `yaml:"automaticNameDelimiter"`
	RuntimeChunk           RuntimeChunk `yaml:"runtimeChunk"`
	CacheGroups            []CacheGroup `yaml:"cacheGroups"`
}

// CacheGroup is a named grouping rule. Zero values inherit from Policy.
type CacheGroup struct {
	Key                string   `yaml:"key"`
	Name               string   `yaml:"name"`
	Test               []string `yaml:"test"`
	Chunks             Chunks   `yaml:"chunks"`
	Priority           int      `yaml:"priority"`
	MinChunks          int      `yaml:"minChunks"`
	MinSize            *int     `yaml:"minSize,omitempty"`
	ReuseExistingChunk bool     `yaml:"reuseExistingChunk"`
	Enforce            bool     `yaml:"enforce"`
	Class              string   `yaml:"class"`
}

// Output controls artifact naming and placement.
type Output struct {
	Path          string `yaml:"path"`
	Filename      string `yaml:"filename"`
	ChunkFilename string `yaml:"chunkFilename"`
	PublicPath    string `yaml:"publicPath"`
	ModuleIDs     string `yaml:"moduleIds"`
	Compress      bool   `yaml:"compress"`
	Manifest      string `yaml:"manifest"`
	// Root is the directory module ids and manifest paths are relative to
	Root string `yaml:"root"`
}

// HTML controls the generated shell page.
type HTML struct {
	Filename string   `yaml:"filename"`
	Template string   `yaml:"template"`
	Title    string   `yaml:"title"`
	Chunks   []string `yaml:"chunks"`
}

// Load reads a YAML configuration file, applies defaults for omitted values and
// resolves relative paths against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path supplied by the operator
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, err
	}

	cfg = cfg.withDefaults().resolvePaths(dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) withDefaults() Config {
	if len(c.Resolution.Modules) == 0 {
		c.Resolution.Modules = []string{"node_modules"}
	}
	if len(c.Resolution.Extensions) == 0 {
		c.Resolution.Extensions = []string{".js"}
	}
	if len(c.Resolution.MainFields) == 0 {
		c.Resolution.MainFields = []string{"browser", "main"}
	}
	if len(c.Transform.Test) == 0 {
		c.Transform.Test = []string{".js", ".ts", ".tsx"}
	}
	if c.Policy.Chunks == "" {
		c.Policy.Chunks = ChunksAsync
	}
	if c.Policy.MinChunks == 0 {
		c.Policy.MinChunks = 1
	}
	if c.Policy.AutomaticNameDelimiter == "" {
		c.Policy.AutomaticNameDelimiter = "~"
	}
	if c.Output.Filename == "" {
		c.Output.Filename = "[name].bundle.js"
	}
	if c.Output.ChunkFilename == "" {
		c.Output.ChunkFilename = "[name].chunk.js"
	}
	if c.Output.ModuleIDs == "" {
		c.Output.ModuleIDs = "hashed"
	}
	if c.Output.Manifest == "" {
		c.Output.Manifest = "manifest.json"
	}
	if c.HTML.Filename == "" {
		c.HTML.Filename = "index.html"
	}
	return c
}

// resolvePaths makes every filesystem path absolute relative to dir. The alias
// map is copied so the loaded value shares nothing with the decoder.
func (c Config) resolvePaths(dir string) Config {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	entries := make([]Entry, len(c.Resolution.Entries))
	for i, e := range c.Resolution.Entries {
		entries[i] = Entry{Name: e.Name, Path: abs(e.Path)}
	}
	c.Resolution.Entries = entries

	alias := make(map[string]string, len(c.Resolution.Alias))
	for k, v := range c.Resolution.Alias {
		alias[k] = abs(v)
	}
	c.Resolution.Alias = alias

	c.Output.Path = abs(c.Output.Path)
	if c.Output.Root == "" {
		c.Output.Root = dir
	} else {
		c.Output.Root = abs(c.Output.Root)
	}
	c.HTML.Template = abs(c.HTML.Template)
	c.dir = dir
	return c
}

// Validate checks the configuration for values no stage can work with.
func (c Config) Validate() error {
	if len(c.Resolution.Entries) == 0 {
		return ErrNoEntries
	}

	seen := make(map[string]bool, len(c.Resolution.Entries))
	for _, e := range c.Resolution.Entries {
		if e.Name == "" || e.Path == "" {
			return fmt.Errorf("%w: entry requires a name and a path", ErrNoEntries)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate entry name %q", ErrNoEntries, e.Name)
		}
		seen[e.Name] = true
	}

	if err := c.Policy.Validate(); err != nil {
		return err
	}

	if c.Output.Path == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidOutput)
	}
	if err := c.checkOutputPath(); err != nil {
		return err
	}
	if c.Output.ModuleIDs != "hashed" && c.Output.ModuleIDs != "named" {
		return fmt.Errorf("%w: moduleIds must be hashed or named, got %q", ErrInvalidOutput, c.Output.ModuleIDs)
	}

	return nil
}

// checkOutputPath rejects an output path that would contain the project. The
// output directory is replaced wholesale on publish, so it must not be, or be
// an ancestor of, the root, the config directory or any entry.
func (c Config) checkOutputPath() error {
	out, err := filepath.Abs(c.Output.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	protected := []string{c.Output.Root, c.dir}
	for _, e := range c.Resolution.Entries {
		protected = append(protected, e.Path)
	}

	for _, p := range protected {
		if p == "" {
			continue
		}
		p, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOutput, err)
		}
		if within(out, p) {
			return fmt.Errorf("%w: output path %s contains %s", ErrInvalidOutput, out, p)
		}
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Validate checks the chunking policy on its own.
func (p Policy) Validate() error {
	if !validChunks(p.Chunks, false) {
		return fmt.Errorf("%w: chunks must be initial, async or all, got %q", ErrInvalidPolicy, p.Chunks)
	}
	if p.MinSize < 0 || p.MaxSize < 0 {
		return fmt.Errorf("%w: sizes must not be negative", ErrInvalidPolicy)
	}
	if p.MaxSize > 0 && p.MaxSize < p.MinSize {
		return fmt.Errorf("%w: maxSize %d is below minSize %d", ErrInvalidPolicy, p.MaxSize, p.MinSize)
	}
	switch p.RuntimeChunk {
	case RuntimeInline, RuntimeMultiple, RuntimeSingle:
	default:
		return fmt.Errorf("%w: runtimeChunk must be empty, multiple or single, got %q", ErrInvalidPolicy, p.RuntimeChunk)
	}

	keys := make(map[string]bool, len(p.CacheGroups))
	for _, g := range p.CacheGroups {
		if g.Key == "" {
			return fmt.Errorf("%w: cache group requires a key", ErrInvalidPolicy)
		}
		if keys[g.Key] {
			return fmt.Errorf("%w: duplicate cache group %q", ErrInvalidPolicy, g.Key)
		}
		keys[g.Key] = true
		if !validChunks(g.Chunks, true) {
			return fmt.Errorf("%w: cache group %q has invalid chunks %q", ErrInvalidPolicy, g.Key, g.Chunks)
		}
		if g.MinChunks < 0 || (g.MinSize != nil && *g.MinSize < 0) {
			return fmt.Errorf("%w: cache group %q has negative thresholds", ErrInvalidPolicy, g.Key)
		}
	}
	return nil
}

func validChunks(c Chunks, allowEmpty bool) bool {
	switch c {
	case ChunksInitial, ChunksAsync, ChunksAll:
		return true
	case "":
		return allowEmpty
	}
	return false
}
