// Package registry discovers agents from a plugin directory and serves
// read-only lookups over the loaded set.
package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// manifestName is the descriptor file every agent directory must contain.
const manifestName = "manifest.json"

// manifest is the on-disk descriptor. schema_version gates future format
// changes; the embedded schema pins the accepted shape.
type manifest struct {
	SchemaVersion int `json:"schema_version"`
	agent.Descriptor
}

// Factory builds the runnable agent for one validated descriptor.
// workflowPath points at the agent's workflow prompt file.
type Factory func(desc agent.Descriptor, workflowPath string) (agent.BaseAgent, error)

// Opts holds parameters for creating a Registry.
type Opts struct {
	Dir     string
	Factory Factory
	Logger  *zap.Logger
}

// Registry owns the loaded agent set. Built once by LoadAll; lookups are
// read-only afterwards. It is an injected component, not a package global.
type Registry struct {
	dir     string
	factory Factory
	logger  *zap.Logger
	schema  *jsonschema.Schema

	agents  map[string]agent.BaseAgent
	configs map[string]agent.Descriptor
}

// New creates an empty registry. Call LoadAll to populate it.
func New(opts Opts) (*Registry, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("registry: factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(manifestName, bytes.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("registry: load manifest schema: %w", err)
	}
	schema, err := compiler.Compile(manifestName)
	if err != nil {
		return nil, fmt.Errorf("registry: compile manifest schema: %w", err)
	}

	return &Registry{
		dir:     opts.Dir,
		factory: opts.Factory,
		logger:  logger,
		schema:  schema,
		agents:  make(map[string]agent.BaseAgent),
		configs: make(map[string]agent.Descriptor),
	}, nil
}

// LoadAll scans the agents directory and registers every valid agent. One
// agent's failure (missing manifest, schema violation, missing workflow) is
// logged and skipped; it never aborts the rest. The returned count is the
// number of agents registered.
func (r *Registry) LoadAll() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("registry: read agents dir %s: %w", r.dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := r.loadOne(filepath.Join(r.dir, entry.Name())); err != nil {
			r.logger.Warn("skipping agent",
				zap.String("dir", entry.Name()),
				zap.Error(err))
			continue
		}
		loaded++
	}
	r.logger.Info("agents loaded", zap.Int("count", loaded))
	return loaded, nil
}

// loadOne reads, validates, and registers a single agent directory.
func (r *Registry) loadOne(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	// Validate the raw document before trusting any field of it.
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}

	workflowPath := filepath.Join(dir, m.Workflow)
	if _, err := os.Stat(workflowPath); err != nil {
		return fmt.Errorf("workflow file %s: %w", m.Workflow, err)
	}

	if _, exists := r.configs[m.ID]; exists {
		return fmt.Errorf("duplicate agent id %q", m.ID)
	}

	a, err := r.factory(m.Descriptor, workflowPath)
	if err != nil {
		return fmt.Errorf("build agent %q: %w", m.ID, err)
	}

	r.agents[m.ID] = a
	r.configs[m.ID] = m.Descriptor
	return nil
}

// Get returns the runnable agent for id, or false.
func (r *Registry) Get(id string) (agent.BaseAgent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Config returns the descriptor for id, or false.
func (r *Registry) Config(id string) (agent.Descriptor, bool) {
	d, ok := r.configs[id]
	return d, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.agents[id]
	return ok
}

// List returns all descriptors sorted by id.
func (r *Registry) List() []agent.Descriptor {
	out := make([]agent.Descriptor, 0, len(r.configs))
	for _, d := range r.configs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns descriptors whose id or name contains the query as a
// substring, or that carry it as a capability or tag. Matching is
// case-insensitive; an empty query matches everything.
func (r *Registry) Search(query string) []agent.Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []agent.Descriptor
	for _, d := range r.List() {
		if q == "" || matches(d, q) {
			out = append(out, d)
		}
	}
	return out
}

func matches(d agent.Descriptor, q string) bool {
	if strings.Contains(strings.ToLower(d.ID), q) || strings.Contains(strings.ToLower(d.Name), q) {
		return true
	}
	for _, c := range d.Capabilities {
		if strings.EqualFold(c, q) {
			return true
		}
	}
	for _, tag := range d.Tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}
