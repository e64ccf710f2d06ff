package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/logging"
)

// DriverOptions configures how a Driver maps container concepts onto the page.
type DriverOptions struct {
	// ChildSelectors maps a child type tag to a selector relative to the
	// parent region, e.g. "comments" -> ".comment-thread".
	ChildSelectors map[string]string

	// AffordancePatterns are glob patterns over lower-cased control labels.
	// Defaults to DefaultAffordancePatterns.
	AffordancePatterns []string

	// ScrollPixels is the distance of a scroll action without a "pixels" param.
	ScrollPixels int

	// MutationDebounce is applied in the page before a change is reported.
	MutationDebounce time.Duration

	// ActionTimeout bounds clicks, fills and waits (milliseconds).
	ActionTimeout float64
}

const mutationBinding = "__harvestMutation"

const observeScript = `(el, [token, wait]) => {
	window.__harvestObservers = window.__harvestObservers || {};
	let timer = null;
	const observer = new MutationObserver(() => {
		clearTimeout(timer);
		timer = setTimeout(() => window.` + mutationBinding + `(token), wait);
	});
	observer.observe(el, { childList: true, subtree: true, characterData: true });
	window.__harvestObservers[token] = () => { clearTimeout(timer); observer.disconnect(); };
	return true;
}`

const unobserveScript = `(token) => {
	const observers = window.__harvestObservers || {};
	if (observers[token]) {
		observers[token]();
		delete observers[token];
	}
	return true;
}`

const scrollScript = `(el, px) => {
	el.scrollBy(0, px);
	window.scrollBy(0, px);
	return true;
}`

// Driver implements container.Driver on top of a Playwright page. Locators
// are Playwright selectors; child and affordance locators are chained
// from their parent with ">>".
type Driver struct {
	session    *Session
	opts       DriverOptions
	logger     *logging.Logger
	affordance *affordanceMatcher

	// callMu serializes page calls issued by concurrent containers
	callMu sync.Mutex

	mu          sync.Mutex
	bindingDone bool
	observers   map[string]func()
	nextToken   uint64
}

var _ container.Driver = (*Driver)(nil)

// NewDriver creates a driver bound to the session's page.
func NewDriver(session *Session, opts DriverOptions, logger *logging.Logger) (*Driver, error) {
	if session == nil || session.Page == nil {
		return nil, fmt.Errorf("browser driver requires an open session")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ScrollPixels <= 0 {
		opts.ScrollPixels = DefaultScrollPixels
	}
	if opts.MutationDebounce <= 0 {
		opts.MutationDebounce = DefaultMutationDebounce
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}

	matcher, err := newAffordanceMatcher(opts.AffordancePatterns)
	if err != nil {
		return nil, err
	}

	return &Driver{
		session:    session,
		opts:       opts,
		logger:     logger,
		affordance: matcher,
		observers:  make(map[string]func()),
	}, nil
}

// Chain joins selectors so each part resolves inside the previous one.
func Chain(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " >> ")
}

func (d *Driver) locate(locator string) playwright.Locator {
	return d.session.Page.Locator(locator)
}

// DetectState reports whether the region exists and is visible, how many
// element children it has and a fingerprint of its content. A missing
// region is not an error.
func (d *Driver) DetectState(ctx context.Context, locator string) (container.ContentState, error) {
	if err := ctx.Err(); err != nil {
		return container.ContentState{}, err
	}
	d.callMu.Lock()
	defer d.callMu.Unlock()
	d.session.touch()

	loc := d.locate(locator)
	n, err := loc.Count()
	if err != nil {
		return container.ContentState{}, fmt.Errorf("count: %w", err)
	}
	if n == 0 {
		return container.ContentState{}, nil
	}

	first := loc.First()
	visible, err := first.IsVisible()
	if err != nil {
		return container.ContentState{}, fmt.Errorf("visibility: %w", err)
	}

	children, err := first.Evaluate("el => el.children.length", nil)
	if err != nil {
		return container.ContentState{}, fmt.Errorf("child count: %w", err)
	}

	inner, err := first.InnerHTML()
	if err != nil {
		return container.ContentState{}, fmt.Errorf("inner html: %w", err)
	}

	return container.ContentState{
		Exists:      true,
		Visible:     visible,
		ChildCount:  toInt(children),
		Fingerprint: Fingerprint(inner),
	}, nil
}

// ObserveMutations installs a MutationObserver on the region. Changes are
// debounced in the page and delivered through a single exposed binding.
func (d *Driver) ObserveMutations(ctx context.Context, locator string, onChange func()) (container.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.ensureBinding(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.nextToken++
	token := "obs-" + strconv.FormatUint(d.nextToken, 10)
	d.observers[token] = onChange
	d.mu.Unlock()

	d.callMu.Lock()
	_, err := d.locate(locator).First().Evaluate(observeScript, []interface{}{token, d.opts.MutationDebounce.Milliseconds()})
	d.callMu.Unlock()
	if err != nil {
		d.removeObserver(token)
		return nil, fmt.Errorf("install observer: %w", err)
	}

	d.logger.Debugf("Observing %s (%s)", locator, token)

	var once sync.Once
	return container.SubscriptionFunc(func() error {
		var closeErr error
		once.Do(func() {
			d.removeObserver(token)
			d.callMu.Lock()
			defer d.callMu.Unlock()
			if _, err := d.session.Page.Evaluate(unobserveScript, token); err != nil {
				closeErr = fmt.Errorf("remove observer: %w", err)
			}
		})
		return closeErr
	}), nil
}

func (d *Driver) ensureBinding() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bindingDone {
		return nil
	}

	err := d.session.Page.ExposeFunction(mutationBinding, func(args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}
		token := fmt.Sprint(args[0])

		d.mu.Lock()
		fn := d.observers[token]
		d.mu.Unlock()

		if fn != nil {
			go fn()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("expose mutation binding: %w", err)
	}
	d.bindingDone = true
	return nil
}

func (d *Driver) removeObserver(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, token)
}

// PerformAction executes one interaction. Recognized params: "value" for
// fill, "pixels" for scroll, "state" for wait.
func (d *Driver) PerformAction(ctx context.Context, action container.ActionDescriptor, params map[string]interface{}) (container.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return container.ActionResult{}, err
	}
	d.callMu.Lock()
	defer d.callMu.Unlock()
	d.session.touch()

	loc := d.locate(action.Locator)
	timeout := d.opts.ActionTimeout

	switch action.Kind {
	case container.ActionClick:
		if err := loc.First().Click(playwright.LocatorClickOptions{Timeout: &timeout}); err != nil {
			return container.ActionResult{}, fmt.Errorf("click failed: %w", err)
		}
		return container.ActionResult{Success: true}, nil

	case container.ActionFill:
		value, _ := params["value"].(string)
		if err := loc.First().Fill(value, playwright.LocatorFillOptions{Timeout: &timeout}); err != nil {
			return container.ActionResult{}, fmt.Errorf("fill failed: %w", err)
		}
		return container.ActionResult{Success: true}, nil

	case container.ActionScroll:
		px := d.opts.ScrollPixels
		if v, ok := params["pixels"]; ok {
			px = toInt(v)
		}
		if _, err := loc.First().Evaluate(scrollScript, px); err != nil {
			return container.ActionResult{}, fmt.Errorf("scroll failed: %w", err)
		}
		return container.ActionResult{Success: true, Value: px}, nil

	case container.ActionWait:
		state := playwright.WaitForSelectorStateVisible
		if s, ok := params["state"].(string); ok && s != "" {
			custom := playwright.WaitForSelectorState(s)
			state = &custom
		}
		if err := loc.First().WaitFor(playwright.LocatorWaitForOptions{State: state, Timeout: &timeout}); err != nil {
			return container.ActionResult{}, fmt.Errorf("wait failed: %w", err)
		}
		return container.ActionResult{Success: true}, nil

	case container.ActionCount:
		n, err := loc.Count()
		if err != nil {
			return container.ActionResult{}, fmt.Errorf("count failed: %w", err)
		}
		return container.ActionResult{Success: true, Count: n}, nil

	case container.ActionExtract:
		texts, err := loc.AllInnerTexts()
		if err != nil {
			return container.ActionResult{}, fmt.Errorf("extract failed: %w", err)
		}
		return container.ActionResult{Success: true, Count: len(texts), Items: texts}, nil
	}

	return container.ActionResult{}, fmt.Errorf("unsupported action %q", action.Kind)
}

// DiscoverChildren lists sub-regions for every type tag that has a
// selector. Regions are addressed by index, so a region keeps its locator
// as long as earlier siblings are not removed.
func (d *Driver) DiscoverChildren(ctx context.Context, locator string, typeTags []string) ([]container.ChildRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.callMu.Lock()
	defer d.callMu.Unlock()

	var regions []container.ChildRegion
	for _, tag := range typeTags {
		sel, ok := d.opts.ChildSelectors[tag]
		if !ok {
			continue
		}
		base := Chain(locator, sel)
		n, err := d.locate(base).Count()
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", tag, err)
		}
		regions = append(regions, childRegions(tag, base, n)...)
	}
	return regions, nil
}

func childRegions(tag, base string, n int) []container.ChildRegion {
	regions := make([]container.ChildRegion, 0, n)
	for i := 0; i < n; i++ {
		regions = append(regions, container.ChildRegion{
			Type:    tag,
			Locator: Chain(base, fmt.Sprintf("nth=%d", i)),
		})
	}
	return regions
}

// DiscoverAffordances finds "reveal more" controls inside the region.
func (d *Driver) DiscoverAffordances(ctx context.Context, locator string) ([]container.Affordance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.callMu.Lock()
	loc := d.locate(locator)
	n, err := loc.Count()
	var inner string
	if err == nil && n > 0 {
		inner, err = loc.First().InnerHTML()
	}
	d.callMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("read region: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return d.affordance.find(locator, inner)
}

// toInt converts a number decoded from the page to int.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
