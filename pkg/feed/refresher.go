// Package feed provides a container Refresher for list-shaped regions such
// as news feeds, search results and comment threads.
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/entrhq/harvest/pkg/browser"
	"github.com/entrhq/harvest/pkg/container"
)

// Operation ids registered by ListRefresher.Setup.
const (
	OpScroll   = "scroll"
	OpLoadMore = "load_more"
)

// Options configures a ListRefresher.
type Options struct {
	// ItemSelector selects one element per item, relative to the region
	ItemSelector string `yaml:"item_selector" json:"item_selector"`

	// LoadMoreSelector registers a load_more operation when set
	LoadMoreSelector string `yaml:"load_more_selector" json:"load_more_selector"`

	// ScrollPixels is passed to the scroll operation; zero uses the driver default
	ScrollPixels int `yaml:"scroll_pixels" json:"scroll_pixels"`

	// ScrollBudget lets the container scroll on its own up to this many
	// times. Zero registers scroll as a manual operation.
	ScrollBudget int `yaml:"scroll_budget" json:"scroll_budget"`

	// LoadMoreBudget does the same for load_more.
	LoadMoreBudget int `yaml:"load_more_budget" json:"load_more_budget"`

	// MaxItemLength truncates item texts before they are hashed and stored
	MaxItemLength int `yaml:"max_item_length" json:"max_item_length"`
}

// DefaultMaxItemLength bounds the stored text of a single item.
const DefaultMaxItemLength = 2000

// Validate checks the options.
func (o Options) Validate() error {
	if strings.TrimSpace(o.ItemSelector) == "" {
		return &container.ConfigurationError{Field: "item_selector", Reason: "must not be empty"}
	}
	if o.ScrollBudget < 0 || o.LoadMoreBudget < 0 {
		return &container.ConfigurationError{Field: "budget", Reason: "must not be negative"}
	}
	return nil
}

// ListRefresher extracts the items of a list region on every pass and
// remembers every distinct item it has seen. Result.Count is the number of
// distinct items seen so far, so a count criterion with a target of N
// completes once N different items have appeared, regardless of how the
// page virtualizes or reorders them.
type ListRefresher struct {
	opts Options

	mu    sync.Mutex
	seen  map[uint64]struct{}
	items []string
}

var (
	_ container.Refresher   = (*ListRefresher)(nil)
	_ container.Initializer = (*ListRefresher)(nil)
)

// NewListRefresher validates opts and creates a refresher. A refresher
// keeps per-region state and must not be shared between containers.
func NewListRefresher(opts Options) (*ListRefresher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxItemLength <= 0 {
		opts.MaxItemLength = DefaultMaxItemLength
	}
	return &ListRefresher{
		opts: opts,
		seen: make(map[uint64]struct{}),
	}, nil
}

// Setup registers the scroll operation and, when configured, load_more.
func (r *ListRefresher) Setup(ctx context.Context, c *container.Container) error {
	locator := c.Config().Locator

	scrollMeta := &container.OperationMeta{
		Locator:     locator,
		Action:      container.ActionScroll,
		Label:       "Scroll the list",
		AutoExecute: r.opts.ScrollBudget > 0,
		MaxAttempts: r.opts.ScrollBudget,
	}
	if err := c.RegisterOperation(OpScroll, r.scroll(c), scrollMeta); err != nil {
		return fmt.Errorf("register %s: %w", OpScroll, err)
	}

	if r.opts.LoadMoreSelector == "" {
		return nil
	}
	button := browser.Chain(locator, r.opts.LoadMoreSelector, "nth=0")
	loadMeta := &container.OperationMeta{
		Locator:     button,
		Action:      container.ActionClick,
		Label:       "Load more",
		AutoExecute: r.opts.LoadMoreBudget > 0,
		MaxAttempts: r.opts.LoadMoreBudget,
	}
	if err := c.RegisterOperation(OpLoadMore, r.action(c, container.ActionClick, button), loadMeta); err != nil {
		return fmt.Errorf("register %s: %w", OpLoadMore, err)
	}
	return nil
}

func (r *ListRefresher) scroll(c *container.Container) container.OperationHandler {
	handler := r.action(c, container.ActionScroll, c.Config().Locator)
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if _, ok := params["pixels"]; !ok && r.opts.ScrollPixels > 0 {
			withPixels := make(map[string]interface{}, len(params)+1)
			for k, v := range params {
				withPixels[k] = v
			}
			withPixels["pixels"] = r.opts.ScrollPixels
			params = withPixels
		}
		return handler(ctx, params)
	}
}

func (r *ListRefresher) action(c *container.Container, kind container.ActionKind, locator string) container.OperationHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		driver := c.Driver()
		if driver == nil {
			return nil, container.ErrNotInitialized
		}
		res, err := driver.PerformAction(ctx, container.ActionDescriptor{Kind: kind, Locator: locator}, params)
		if err != nil {
			return nil, container.NewDriverError(string(kind), locator, err)
		}
		return res, nil
	}
}

// Refresh extracts the visible items and records the ones not seen before.
// A missing region is not an error; it yields no new items.
func (r *ListRefresher) Refresh(ctx context.Context, c *container.Container, pass container.Pass) (*container.Result, error) {
	if !pass.State.Exists {
		return r.result(0, nil, false), nil
	}

	driver := c.Driver()
	if driver == nil {
		return nil, container.ErrNotInitialized
	}

	locator := browser.Chain(c.Config().Locator, r.opts.ItemSelector)
	extracted, err := container.Retry(ctx, c.Config().MaxRefreshRetries, func() (container.ActionResult, error) {
		return driver.PerformAction(ctx, container.ActionDescriptor{Kind: container.ActionExtract, Locator: locator}, nil)
	})
	if err != nil {
		return nil, container.NewDriverError("extract", locator, err)
	}

	fresh := r.record(extracted.Items)
	return r.result(len(extracted.Items), fresh, len(fresh) > 0), nil
}

func (r *ListRefresher) record(texts []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fresh []string
	for _, text := range texts {
		text = normalizeItem(text, r.opts.MaxItemLength)
		if text == "" {
			continue
		}
		key := xxhash.Sum64String(text)
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.items = append(r.items, text)
		fresh = append(fresh, text)
	}
	return fresh
}

func (r *ListRefresher) result(visible int, fresh []string, changed bool) *container.Result {
	total := r.Unique()
	return &container.Result{
		Count:   total,
		Changed: changed,
		Items:   fresh,
		Data: map[string]interface{}{
			"visible": visible,
			"new":     len(fresh),
			"unique":  total,
		},
	}
}

// Unique returns how many distinct items have been seen.
func (r *ListRefresher) Unique() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Items returns every distinct item in the order it was first seen.
func (r *ListRefresher) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

// normalizeItem collapses whitespace and caps the text at limit bytes
// without splitting a rune.
func normalizeItem(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
