package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/harvest/internal/job"
	"github.com/entrhq/harvest/pkg/browser"
	"github.com/entrhq/harvest/pkg/config"
	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/logging"
	"github.com/entrhq/harvest/pkg/metrics"
)

const (
	metricsPath            = "/metrics"
	metricsShutdownTimeout = 5 * time.Second
)

// SessionOptions are the flags shared by run and watch.
type SessionOptions struct {
	*RootOptions

	JobFile     string
	Headless    bool
	Install     bool
	MetricsAddr string
}

// harvestSession is a loaded job bound to an open browser page.
type harvestSession struct {
	job     *job.Job
	root    *container.Container
	driver  container.Driver
	logger  *logging.Logger
	closers []func()
}

// openSession loads the job, starts the browser, navigates to the job URL
// and builds the container tree. headless overrides the settings file only
// when the flag was given explicitly.
func openSession(opts *SessionOptions, headlessSet bool) (*harvestSession, error) {
	j, err := job.Load(opts.JobFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger("harvest")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	s := &harvestSession{job: j, logger: logger}
	s.closers = append(s.closers, func() { _ = logger.Close() })

	if err := s.startBrowser(opts, headlessSet); err != nil {
		s.close()
		return nil, err
	}

	root, err := j.Build(config.GetContainerDefaults, logger.Named("container"))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to build containers: %w", err)
	}
	s.root = root

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	collector.Attach(root)
	s.closers = append(s.closers, collector.Detach)

	if opts.MetricsAddr != "" {
		s.serveMetrics(opts.MetricsAddr)
	}
	return s, nil
}

func (s *harvestSession) startBrowser(opts *SessionOptions, headlessSet bool) error {
	manager := browser.NewSessionManager()
	manager.SetOutput(s.logger.Named("playwright").Writer())
	if bs := config.GetBrowser(); bs != nil {
		manager.SetMaxSessions(bs.MaxSessions)
	}
	if err := manager.Initialize(opts.Install); err != nil {
		return err
	}
	s.closers = append(s.closers, func() {
		if err := manager.Shutdown(); err != nil {
			s.logger.Warnf("Browser shutdown: %v", err)
		}
	})

	sessionOpts := config.GetSessionOptions()
	if headlessSet {
		sessionOpts.Headless = opts.Headless
	}
	page, err := manager.StartSession(s.job.Name, sessionOpts)
	if err != nil {
		return err
	}

	s.logger.Infof("Navigating to %s", s.job.URL)
	if err := page.Navigate(s.job.URL, browser.NavigateOptions{WaitUntil: s.job.WaitUntil}); err != nil {
		return err
	}

	driverOpts := config.GetDriverOptions()
	driverOpts.ChildSelectors = s.job.ChildSelectors()
	if len(s.job.AffordancePatterns) > 0 {
		driverOpts.AffordancePatterns = s.job.AffordancePatterns
	}
	driver, err := browser.NewDriver(page, driverOpts, s.logger.Named("driver"))
	if err != nil {
		return err
	}
	s.driver = driver
	return nil
}

func (s *harvestSession) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.logger.Infof("Serving metrics on %s%s", addr, metricsPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Metrics server: %v", err)
		}
	}()

	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
}

// close releases resources in reverse order of acquisition.
func (s *harvestSession) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
