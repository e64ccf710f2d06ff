// Package job loads harvest job files and turns them into container trees.
//
// A job file is YAML:
//
//	name: hn
//	url: https://news.ycombinator.com
//	timeout: 2m
//	root:
//	  locator: "table.itemlist"
//	  item_selector: "tr.athing"
//	  load_more_selector: "a.morelink"
//	  load_more_budget: 2
//	  task:
//	    kind: count
//	    target_count: 60
//	  children:
//	    - type: comments
//	      selector: ".comment-tree"
//	      item_selector: ".comment"
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/feed"
	"github.com/entrhq/harvest/pkg/logging"
)

// Job describes one page to harvest.
type Job struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	WaitUntil string        `yaml:"wait_until"`
	Timeout   time.Duration `yaml:"timeout"`

	// WaitForChildren keeps a headless run going until every child is done
	WaitForChildren bool `yaml:"wait_for_children"`

	// AffordancePatterns override the driver's default "load more" label globs
	AffordancePatterns []string `yaml:"affordance_patterns"`

	Root ContainerSpec `yaml:"root"`
}

// ContainerSpec describes a list container. Unset overrides fall back to
// the container defaults from the settings file.
type ContainerSpec struct {
	Name    string `yaml:"name"`
	Locator string `yaml:"locator"`

	feed.Options `yaml:",inline"`

	RefreshInterval        *time.Duration `yaml:"refresh_interval"`
	Debounce               *time.Duration `yaml:"debounce"`
	RefreshTimeout         *time.Duration `yaml:"refresh_timeout"`
	MaxRefreshRetries      *int           `yaml:"max_refresh_retries"`
	EnableAutoRefresh      *bool          `yaml:"enable_auto_refresh"`
	EnableMutationObserver *bool          `yaml:"enable_mutation_observer"`
	DiscoverAffordances    *bool          `yaml:"discover_affordances"`
	AffordanceBudget       *int           `yaml:"affordance_budget"`

	Task *container.TaskCriterion `yaml:"task"`

	Children []ChildSpec `yaml:"children"`
}

// ChildSpec describes the containers built for regions of one type found
// inside a parent.
type ChildSpec struct {
	// Type is the child type tag; it may be a glob when several tags share a spec
	Type string `yaml:"type"`

	// Selector finds the regions relative to the parent locator
	Selector string `yaml:"selector"`

	ContainerSpec `yaml:",inline"`
}

// Defaults supplies the base configuration for a container.
type Defaults func(name, locator string) container.Config

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	j, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return j, nil
}

// Parse decodes and validates a job document. Unknown keys are rejected.
func Parse(data []byte) (*Job, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var j Job
	if err := dec.Decode(&j); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty job file")
		}
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if j.Root.Name == "" {
		j.Root.Name = "root"
	}
	if j.Name == "" {
		j.Name = j.Root.Name
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Validate checks the job and every container spec in it.
func (j *Job) Validate() error {
	u, err := url.Parse(j.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &container.ConfigurationError{Field: "url", Reason: fmt.Sprintf("must be an absolute URL, got %q", j.URL), Err: err}
	}
	if j.Timeout < 0 {
		return &container.ConfigurationError{Field: "timeout", Reason: "must not be negative"}
	}
	switch j.WaitUntil {
	case "", "load", "domcontentloaded", "networkidle":
	default:
		return &container.ConfigurationError{Field: "wait_until", Reason: fmt.Sprintf("unknown value %q", j.WaitUntil)}
	}
	if j.Root.Locator == "" {
		return &container.ConfigurationError{Field: "root.locator", Reason: "must not be empty"}
	}

	selectors := make(map[string]string)
	return j.Root.validate("root", selectors)
}

func (s *ContainerSpec) validate(path string, selectors map[string]string) error {
	if err := s.Options.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if s.Task != nil {
		if err := s.Task.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	for i := range s.Children {
		child := &s.Children[i]
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		if child.Type == "" {
			return &container.ConfigurationError{Field: childPath + ".type", Reason: "must not be empty"}
		}
		if child.Selector == "" {
			return &container.ConfigurationError{Field: childPath + ".selector", Reason: "must not be empty"}
		}
		if prev, ok := selectors[child.Type]; ok && prev != child.Selector {
			return &container.ConfigurationError{
				Field:  childPath + ".selector",
				Reason: fmt.Sprintf("type %q already uses selector %q", child.Type, prev),
			}
		}
		selectors[child.Type] = child.Selector
		if err := child.validate(childPath, selectors); err != nil {
			return err
		}
	}
	return nil
}

// ChildSelectors maps every child type tag in the job to its selector,
// for browser.DriverOptions.
func (j *Job) ChildSelectors() map[string]string {
	out := make(map[string]string)
	var walk func(s *ContainerSpec)
	walk = func(s *ContainerSpec) {
		for i := range s.Children {
			out[s.Children[i].Type] = s.Children[i].Selector
			walk(&s.Children[i].ContainerSpec)
		}
	}
	walk(&j.Root)
	return out
}

// Build creates the uninitialized root container with child factories for
// every nested child spec.
func (j *Job) Build(defaults Defaults, logger *logging.Logger) (*container.Container, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	refresher, err := feed.NewListRefresher(j.Root.Options)
	if err != nil {
		return nil, err
	}

	cfg := j.Root.apply(defaults(j.Root.Name, j.Root.Locator))
	opts := append([]container.Option{container.WithLogger(logger)}, j.Root.childFactories(defaults)...)
	return container.New(cfg, refresher, opts...)
}

func (s *ContainerSpec) childFactories(defaults Defaults) []container.Option {
	var opts []container.Option
	for i := range s.Children {
		child := &s.Children[i]
		name := child.Name
		if name == "" {
			name = child.Type
		}
		// Locator and id are filled in per region by ChildConfig.
		base := child.apply(defaults(name, ""))
		base.Name = name
		factory := feed.ChildFactory(base, child.Options, child.childFactories(defaults)...)
		opts = append(opts, container.WithChildFactory(child.Type, factory))
	}
	return opts
}

// apply layers the ContainerSpec overrides on top of base.
func (s *ContainerSpec) apply(base container.Config) container.Config {
	cfg := base
	if s.RefreshInterval != nil {
		cfg.RefreshInterval = *s.RefreshInterval
	}
	if s.Debounce != nil {
		cfg.Debounce = *s.Debounce
	}
	if s.RefreshTimeout != nil {
		cfg.RefreshTimeout = *s.RefreshTimeout
	}
	if s.MaxRefreshRetries != nil {
		cfg.MaxRefreshRetries = *s.MaxRefreshRetries
	}
	if s.EnableAutoRefresh != nil {
		cfg.EnableAutoRefresh = *s.EnableAutoRefresh
	}
	if s.EnableMutationObserver != nil {
		cfg.EnableMutationObserver = *s.EnableMutationObserver
	}
	if s.DiscoverAffordances != nil {
		cfg.DiscoverAffordances = *s.DiscoverAffordances
	}
	if s.AffordanceBudget != nil {
		cfg.AffordanceBudget = *s.AffordanceBudget
	}
	if s.Task != nil {
		task := *s.Task
		cfg.Task = &task
	}

	cfg.ChildTypes = nil
	for _, child := range s.Children {
		cfg.ChildTypes = append(cfg.ChildTypes, child.Type)
	}
	return cfg
}
