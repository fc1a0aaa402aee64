package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/modules/loadtest/tokenfetch"
	"github.com/unhackeddev/nfury/pkg/configuration"
	"github.com/unhackeddev/nfury/pkg/eventbus"
)

func newRunCmd() *cobra.Command {
	var (
		flagSc       scenario
		scenarioPath string
		dbPath       string
		noStore      bool
	)

	cmd := &cobra.Command{
		Use:   "run --url <target> [flags]",
		Short: "Run one load test and print the aggregate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := resolveScenario(cmd, flagSc, scenarioPath)
			if err != nil {
				return err
			}

			conf := configuration.Use()
			defer conf.Unload()
			logger := conf.Logger()

			path := conf.Database.Path
			switch {
			case noStore:
				path = persistence.MemoryPath
			case dbPath != "":
				path = dbPath
			}
			db, err := persistence.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc := services.NewRunService(
				persistence.NewRunRepository(db),
				persistence.NewEndpointRepository(db),
				persistence.NewProjectRepository(db),
				stream.NewHub(logger),
				tokenfetch.New(logger),
				eventbus.NewEventPublisher(logger),
				logger,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started, err := svc.StartAdHocRun(ctx, sc.toRunRequest())
			if err != nil {
				return err
			}

			w := newANSIResultWriter(cmd.OutOrStdout())
			w.WriteStart(started)

			select {
			case <-svc.Done(started.Token):
			case <-ctx.Done():
				svc.Stop()
				<-svc.Done(started.Token)
			}

			final, err := svc.GetByToken(context.Background(), started.Token)
			if err != nil {
				return err
			}
			w.WriteOutcome(final)
			w.WriteResults(final.Aggregate)

			if final.Status != run.StatusCompleted {
				return fmt.Errorf("run %s", strings.ToLower(string(final.Status)))
			}
			return nil
		},
	}

	bindScenarioFlags(cmd, &flagSc)
	flags := cmd.Flags()
	flags.StringVar(&scenarioPath, "file", "", "Scenario YAML file; explicit flags override its values")
	flags.StringVar(&dbPath, "db", "", "Catalog database path (default from DB_PATH)")
	flags.BoolVar(&noStore, "no-store", false, "Keep the run out of the catalog")
	return cmd
}

func bindScenarioFlags(cmd *cobra.Command, sc *scenario) {
	flags := cmd.Flags()
	flags.StringVar(&sc.URL, "url", "", "Target URL")
	flags.StringVar(&sc.Method, "method", "GET", "HTTP method")
	flags.IntVar(&sc.Users, "users", 10, "Concurrent users")
	flags.IntVar(&sc.Requests, "requests", 100, "Total request budget")
	flags.IntVar(&sc.DurationSec, "duration", 0, "Run length in seconds instead of a request budget")
	flags.StringVar(&sc.Body, "body", "", "Request body sent on POST, PUT and PATCH")
	flags.StringVar(&sc.ContentType, "content-type", "application/json", "Request content type")
	flags.BoolVar(&sc.Insecure, "insecure", false, "Skip TLS certificate verification")
}

// resolveScenario merges the scenario file, explicit flags and flag
// defaults, in that precedence order, and settles on a single stop
// criterion.
func resolveScenario(cmd *cobra.Command, flagSc scenario, scenarioPath string) (*scenario, error) {
	f := cmd.Flags()
	if f.Changed("requests") && f.Changed("duration") {
		return nil, errors.New("--requests and --duration are mutually exclusive")
	}

	sc := flagSc
	if scenarioPath != "" {
		fileSc, err := loadScenario(scenarioPath)
		if err != nil {
			return nil, err
		}
		sc = *fileSc
		if f.Changed("url") || sc.URL == "" {
			sc.URL = flagSc.URL
		}
		if f.Changed("method") || sc.Method == "" {
			sc.Method = flagSc.Method
		}
		if f.Changed("users") || sc.Users == 0 {
			sc.Users = flagSc.Users
		}
		if f.Changed("body") {
			sc.Body = flagSc.Body
		}
		if f.Changed("content-type") || sc.ContentType == "" {
			sc.ContentType = flagSc.ContentType
		}
		if f.Changed("insecure") {
			sc.Insecure = flagSc.Insecure
		}
		if f.Changed("requests") {
			sc.Requests = flagSc.Requests
		}
		if f.Changed("duration") {
			sc.DurationSec = flagSc.DurationSec
		}
	}

	switch {
	case f.Changed("duration"):
		sc.Requests = 0
	case f.Changed("requests"):
		sc.DurationSec = 0
	case sc.Requests > 0 && sc.DurationSec > 0:
		return nil, fmt.Errorf("%s sets both requests and durationSec", scenarioPath)
	case sc.DurationSec > 0:
		sc.Requests = 0
	}

	if strings.TrimSpace(sc.URL) == "" {
		return nil, errors.New("--url is required")
	}
	return &sc, nil
}
