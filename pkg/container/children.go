package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/harvest/pkg/types"
)

type factoryEntry struct {
	pattern string
	matcher glob.Glob
	factory ChildFactory
}

// childSet tracks a container's children by locator. A locator is
// reserved before its child is built so concurrent discoveries never build
// the same region twice. Regions whose factory failed keep their
// reservation and are not retried.
type childSet struct {
	mu        sync.Mutex
	factories []factoryEntry
	byLocator map[string]*Container
	order     []string
	closed    bool
}

func newChildSet() *childSet {
	return &childSet{byLocator: make(map[string]*Container)}
}

func (s *childSet) addFactory(pattern string, factory ChildFactory) error {
	if factory == nil {
		return configErrorf("child_factory", "factory for %q is nil", pattern)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return &ConfigurationError{Field: "child_factory", Reason: fmt.Sprintf("invalid pattern %q", pattern), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories = append(s.factories, factoryEntry{pattern: pattern, matcher: g, factory: factory})
	return nil
}

// factoryFor returns the first factory whose pattern matches typeTag.
func (s *childSet) factoryFor(typeTag string) ChildFactory {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.factories {
		if f.matcher.Match(typeTag) {
			return f.factory
		}
	}
	return nil
}

func (s *childSet) reserve(locator string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, exists := s.byLocator[locator]; exists {
		return false
	}
	s.byLocator[locator] = nil
	s.order = append(s.order, locator)
	return true
}

// put stores the child for a reserved locator. It reports false once the
// set has been cleared, in which case the caller owns the child.
func (s *childSet) put(locator string, child *Container) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.byLocator[locator] = child
	return true
}

func (s *childSet) list() []*Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Container, 0, len(s.order))
	for _, loc := range s.order {
		if child := s.byLocator[loc]; child != nil {
			out = append(out, child)
		}
	}
	return out
}

// clear empties the set, refuses further children and returns the
// children that were tracked.
func (s *childSet) clear() []*Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Container, 0, len(s.order))
	for _, loc := range s.order {
		if child := s.byLocator[loc]; child != nil {
			out = append(out, child)
		}
	}
	s.closed = true
	s.byLocator = make(map[string]*Container)
	s.order = nil
	return out
}

// ChildConfig derives a child configuration from base for a discovered
// region. The id is stable for a given parent and locator.
func ChildConfig(parent *Container, region ChildRegion, base Config) Config {
	cfg := base
	cfg.Locator = region.Locator
	cfg.ID = ChildID(parent.ID(), region)
	if cfg.Name == "" {
		cfg.Name = region.Type
	}
	return cfg
}

// ChildID returns the id a child for region gets under parentID.
func ChildID(parentID string, region ChildRegion) string {
	return fmt.Sprintf("%s/%s-%08x", parentID, region.Type, uint32(xxhash.Sum64String(region.Locator)))
}

// Children returns the live child containers in discovery order.
func (c *Container) Children() []*Container {
	return c.children.list()
}

// Find returns the container with the given id in this subtree.
func (c *Container) Find(id string) (*Container, bool) {
	if c.cfg.ID == id {
		return c, true
	}
	for _, child := range c.Children() {
		if found, ok := child.Find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// discoverChildren asks the driver for qualifying sub-regions and builds
// and initializes a child for every region not seen before. Children are
// initialized concurrently up to ChildConcurrency; one child's failure does
// not affect its siblings.
func (c *Container) discoverChildren(ctx context.Context) {
	if len(c.cfg.ChildTypes) == 0 || c.lifecycle.State() != StateRunning {
		return
	}
	driver := c.Driver()
	if driver == nil {
		return
	}

	regions, err := driver.DiscoverChildren(ctx, c.cfg.Locator, c.cfg.ChildTypes)
	if err != nil {
		c.logger.Warnf("Container %s: child discovery: %v", c.cfg.ID, NewDriverError("discover children", c.cfg.Locator, err))
		return
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.ChildConcurrency)

	for _, region := range regions {
		factory := c.children.factoryFor(region.Type)
		if factory == nil {
			c.logger.Debugf("Container %s: no factory for child type %q", c.cfg.ID, region.Type)
			continue
		}
		if !c.children.reserve(region.Locator) {
			continue
		}
		g.Go(func() error {
			c.addChild(ctx, driver, factory, region)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Container) addChild(ctx context.Context, driver Driver, factory ChildFactory, region ChildRegion) {
	child, err := c.buildChild(ctx, factory, region)
	if err != nil {
		c.childFailed(ChildID(c.cfg.ID, region), err)
		return
	}
	child.parent = c

	if !c.children.put(region.Locator, child) {
		child.Cleanup()
		return
	}

	c.logger.Infof("Container %s: added child %s (%s)", c.cfg.ID, child.ID(), region.Type)
	c.emit(types.NewChildAddedEvent(c.cfg.ID, c.cfg.Name, child.ID(), region.Type))

	if err := child.Initialize(ctx, driver); err != nil {
		c.childFailed(child.ID(), err)
	}
}

func (c *Container) buildChild(ctx context.Context, factory ChildFactory, region ChildRegion) (child *Container, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("child factory panicked: %v", p)
		}
	}()

	child, err = factory(ctx, c, region)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("child factory returned no container for %q", region.Locator)
	}
	return child, nil
}

func (c *Container) childFailed(childID string, err error) {
	c.logger.Warnf("Container %s: child %s failed: %v", c.cfg.ID, childID, err)
	c.emit(types.NewChildFailedEvent(c.cfg.ID, c.cfg.Name, childID, err))
}
