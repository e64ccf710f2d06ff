// Package container implements self-refreshing containers: views of live,
// externally mutating content regions that stay synchronized by reacting
// to manual requests, executed operations, content mutations and a
// periodic timer.
//
// Every trigger source feeds a per-container priority queue. A
// single-flight scheduler drains the most urgent trigger, drops the rest of
// the queue for that cycle and runs one pass: the driver reports the
// content state, the Refresher turns it into a Result, the task tracker
// decides whether the container is done and newly discovered sub-regions
// become child containers.
//
// The content itself is reached only through a Driver, so the package has
// no knowledge of browsers or selectors. See package browser for the
// Playwright-backed driver and package feed for a list refresher.
package container
