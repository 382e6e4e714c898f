package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/lox/solixa/internal/alerting"
	"github.com/lox/solixa/internal/api"
	"github.com/lox/solixa/internal/artifact"
	"github.com/lox/solixa/internal/assistant"
	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/jobs"
	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/store"
	"github.com/lox/solixa/internal/stormrisk"
	"github.com/lox/solixa/internal/telemetry"
	"github.com/lox/solixa/internal/weather"
)

type CLI struct {
	Config string `help:"Path to YAML config file." default:"solixa.yaml" type:"path" env:"SOLIXA_CONFIG"`

	Serve       ServeCmd       `cmd:"" default:"withargs" help:"Run the API server and background jobs."`
	Train       TrainCmd       `cmd:"" help:"Train the county storm-risk model and rebuild the county table."`
	FetchStorms FetchStormsCmd `cmd:"" name:"fetch-storms" help:"Download StormEvents details files from NCEI."`
	Analyze     AnalyzeCmd     `cmd:"" help:"Normalize, score and forecast a telemetry file."`
	County      CountyCmd      `cmd:"" help:"Show the blackout-risk row for a county."`
	Combine     CombineCmd     `cmd:"" help:"Combine risk components into a blackout score."`
}

// app holds the process-wide dependencies shared by commands.
type app struct {
	ctx context.Context
	cfg *config.Config
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("solixa"),
		kong.Description("Solar telemetry analysis and county blackout-risk service."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.FatalIfErrorf(kctx.Run(&app{ctx: ctx, cfg: cfg}))
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Printf("database ready at %s", a.cfg.Database.Path)
	return st, nil
}

func (a *app) stormService(st *store.Store) (*stormrisk.Service, error) {
	repo, err := artifact.New(a.cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	return stormrisk.NewService(a.cfg.Storm, repo, st)
}

func (a *app) normalizer() (*telemetry.Normalizer, error) {
	if a.cfg.Telemetry.AliasFile == "" {
		return telemetry.NewNormalizer(telemetry.DefaultAliases()), nil
	}
	aliases, err := telemetry.LoadAliases(a.cfg.Telemetry.AliasFile)
	if err != nil {
		return nil, err
	}
	return telemetry.NewNormalizer(aliases), nil
}

type ServeCmd struct {
	NoJobs bool `help:"Disable model refresh and alert sweeps." name:"no-jobs"`
}

func (c *ServeCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	storm, err := a.stormService(st)
	if err != nil {
		return err
	}
	norm, err := a.normalizer()
	if err != nil {
		return err
	}
	history, err := outage.Load(a.cfg.Outage.Path)
	if err != nil {
		return err
	}
	risk := blackout.NewService(weather.NewClient(a.cfg.Weather), history, storm, a.cfg.Outage.Days)

	notifier, err := alerting.NewNotifier(a.ctx, a.cfg.Alerting)
	if err != nil {
		return err
	}
	evaluator := alerting.NewEvaluator(st, risk, notifier)

	deps := api.Deps{
		Store:      st,
		Normalizer: norm,
		Storm:      storm,
		Blackout:   risk,
		Alerts:     evaluator,
	}
	chat, err := assistant.New(a.cfg.Assistant)
	switch {
	case err == nil:
		deps.Assistant = chat
	case errors.Is(err, assistant.ErrNotConfigured):
		log.Printf("chat assistant disabled: %v", err)
	default:
		return err
	}

	if c.NoJobs {
		log.Println("background jobs disabled (--no-jobs)")
	} else {
		scheduler := jobs.NewScheduler(storm, evaluator, a.cfg.Jobs.RefreshInterval, a.cfg.Jobs.SweepInterval)
		go scheduler.Run(a.ctx)
	}

	return api.NewServer(a.cfg, deps).Run(a.ctx)
}
