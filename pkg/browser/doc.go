// Package browser provides the Playwright-backed content driver for harvest
// containers.
//
// # Architecture
//
// The package is built around three concepts:
//
//  1. Session: a Playwright browser instance with its context and page
//  2. SessionManager: registry of open sessions, bounded by a maximum
//  3. Driver: implements container.Driver against one session's page
//
// # Locators
//
// Container locators are Playwright selectors. Child regions and
// affordances are addressed by chaining selectors from their parent with
// ">>", so a child locator always resolves inside its parent region:
//
//	#feed >> .comment-thread >> nth=2
//	#feed >> button:has-text("Load more") >> nth=0
//
// # Change Detection
//
// DetectState fingerprints a region by hashing its normalized HTML (tag
// structure and visible text only), so attribute churn does not register as
// a change. ObserveMutations installs a MutationObserver in the page that
// reports through a single exposed binding, debounced in the page by
// DriverOptions.MutationDebounce.
//
// # Affordances
//
// DiscoverAffordances parses the region HTML with golang.org/x/net/html and
// returns buttons, links and role="button" elements whose label matches
// one of the configured glob patterns ("*load more*", "*show more*", ...).
// Affordance ids are derived from the region and the control, so repeated
// discovery over the same content is idempotent.
//
// # Usage
//
//	mgr := browser.NewSessionManager()
//	if err := mgr.Initialize(true); err != nil {
//		return err
//	}
//	defer mgr.Shutdown()
//
//	session, err := mgr.StartSession("main", browser.SessionOptions{Headless: true})
//	if err != nil {
//		return err
//	}
//	if err := session.Navigate(url, browser.NavigateOptions{}); err != nil {
//		return err
//	}
//
//	driver, err := browser.NewDriver(session, browser.DriverOptions{
//		ChildSelectors: map[string]string{"comments": ".comment-thread"},
//	}, logger)
package browser
