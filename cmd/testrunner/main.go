// Command testrunner runs precompiled test binaries (go test -c output) inside
// the deploy image, unit packages first and then, optionally, one integration
// package against the configured database and Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type options struct {
	testsDir    string
	workDir     string
	short       bool
	parallel    int
	count       int
	runPattern  string
	integration []string
	timeout     time.Duration
}

func main() {
	var (
		opts        options
		integration string
	)
	flag.StringVar(&opts.testsDir, "tests-dir", "/app/tests", "directory containing compiled test binaries")
	flag.StringVar(&opts.workDir, "work-dir", "/app", "fallback working directory for binaries without a package dir")
	flag.BoolVar(&opts.short, "short", true, "pass -test.short to the unit pass")
	flag.IntVar(&opts.parallel, "pkg-parallel", runtime.NumCPU(), "number of packages to run in parallel")
	flag.IntVar(&opts.count, "count", 1, "value of -test.count; 1 disables caching")
	flag.StringVar(&opts.runPattern, "integration-run", ".*Integration", "regex passed as -test.run to integration packages")
	flag.StringVar(&integration, "integration", "", "comma-separated package paths, like 'api/services/stripe/db', to run without -short after the unit pass")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	for _, p := range strings.Split(integration, ",") {
		if p = strings.TrimSpace(p); p != "" {
			opts.integration = append(opts.integration, filepath.FromSlash(p))
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := run(ctx, log, opts); err != nil {
		log.Error("test run failed", "err", err)
		os.Exit(1)
	}
	log.Info("all tests passed")
}

func run(ctx context.Context, log *slog.Logger, opts options) error {
	bins, err := collectTestBinaries(opts.testsDir)
	if err != nil {
		return err
	}
	if len(bins) == 0 {
		return errors.New("no test binaries found")
	}

	unit, integration, err := partition(opts.testsDir, bins, opts.integration)
	if err != nil {
		return err
	}

	log.Info("running unit tests", "packages", len(unit), "short", opts.short)
	if err := runBinaries(ctx, log, opts, unit, testArgs(opts.short, opts.count, 0, ""), opts.parallel); err != nil {
		return err
	}
	if len(integration) == 0 {
		return nil
	}
	// Integration packages share one database, so they run one at a time.
	log.Info("running integration tests", "packages", len(integration), "run", opts.runPattern)
	return runBinaries(ctx, log, opts, integration, testArgs(false, opts.count, 1, opts.runPattern), 1)
}

// partition splits bins into unit and integration sets. Every requested
// integration package must have a binary.
func partition(root string, bins, integrationPkgs []string) (unit, integration []string, err error) {
	for _, pkg := range integrationPkgs {
		bin := filepath.Join(root, pkg+".test")
		if !slices.Contains(bins, bin) {
			return nil, nil, fmt.Errorf("integration binary not found at %s", bin)
		}
		integration = append(integration, bin)
	}
	for _, b := range bins {
		if !slices.Contains(integration, b) {
			unit = append(unit, b)
		}
	}
	return unit, integration, nil
}

func collectTestBinaries(root string) ([]string, error) {
	var bins []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".test") {
			bins = append(bins, filepath.Clean(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	slices.Sort(bins)
	return bins, nil
}

func testArgs(short bool, count, testParallel int, run string) []string {
	args := []string{"-test.v"}
	if short {
		args = append(args, "-test.short")
	}
	if count > 0 {
		args = append(args, fmt.Sprintf("-test.count=%d", count))
	}
	if testParallel > 0 {
		args = append(args, fmt.Sprintf("-test.parallel=%d", testParallel))
	}
	if run != "" {
		args = append(args, "-test.run", run)
	}
	return args
}

// runBinaries runs every binary even after a failure and reports all of them.
func runBinaries(ctx context.Context, log *slog.Logger, opts options, bins, args []string, parallel int) error {
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))

	failures := make([]error, len(bins))
	for i, bin := range bins {
		i, bin := i, bin
		g.Go(func() error {
			cmd := exec.CommandContext(ctx, bin, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			cmd.Env = os.Environ()
			cmd.Dir = packageDir(bin, opts.workDir)

			start := time.Now()
			err := cmd.Run()
			log.Info("package finished", "binary", bin, "ok", err == nil, "duration", time.Since(start).Round(time.Millisecond))
			if err != nil {
				failures[i] = fmt.Errorf("%s failed: %w", bin, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

// packageDir lets tests that read testdata or .env find them next to the binary.
func packageDir(bin, fallback string) string {
	dir := strings.TrimSuffix(bin, ".test")
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return dir
	}
	return fallback
}
