package container

import "context"

// ContentState is what the driver observed about a region at the start of a pass.
type ContentState struct {
	Exists      bool
	Visible     bool
	ChildCount  int
	Fingerprint string
}

// ActionKind is the kind of interaction an ActionDescriptor performs.
type ActionKind string

const (
	ActionClick   ActionKind = "click"
	ActionFill    ActionKind = "fill"
	ActionScroll  ActionKind = "scroll"
	ActionWait    ActionKind = "wait"
	ActionCount   ActionKind = "count"
	ActionExtract ActionKind = "extract"
)

// ActionDescriptor tells the driver what to do and where.
type ActionDescriptor struct {
	Kind    ActionKind
	Locator string
}

// ActionResult is returned by Driver.PerformAction. The core only looks at
// Count; everything else is passed through to the refresher.
type ActionResult struct {
	Success bool
	Count   int
	Items   []string
	Value   interface{}
}

// ChildRegion is a sub-region found underneath a container.
type ChildRegion struct {
	Type    string
	Locator string
}

// Affordance is an actionable control found inside a region, such as a
// "load more" button.
type Affordance struct {
	ID              string
	Locator         string
	Label           string
	SuggestedAction ActionKind
}

// Subscription is returned by ObserveMutations; Close stops notifications.
type Subscription interface {
	Close() error
}

// Driver is the external collaborator that inspects and manipulates live
// content. Locators are opaque to the container.
type Driver interface {
	// DetectState reports existence, visibility, child count and a content fingerprint.
	DetectState(ctx context.Context, locator string) (ContentState, error)

	// ObserveMutations calls onChange (already debounced by the driver) whenever
	// the region changes, until the returned subscription is closed.
	ObserveMutations(ctx context.Context, locator string, onChange func()) (Subscription, error)

	// PerformAction executes a single interaction.
	PerformAction(ctx context.Context, action ActionDescriptor, params map[string]interface{}) (ActionResult, error)

	// DiscoverChildren lists qualifying sub-regions of the given type tags.
	DiscoverChildren(ctx context.Context, locator string, typeTags []string) ([]ChildRegion, error)

	// DiscoverAffordances lists actionable controls inside the region.
	DiscoverAffordances(ctx context.Context, locator string) ([]Affordance, error)
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

// Close calls f.
func (f SubscriptionFunc) Close() error {
	return f()
}
