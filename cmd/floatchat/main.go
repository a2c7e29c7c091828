package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"github.com/kballard/go-shellquote"

	"github.com/floatchat/floatchat/api"
	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/argo/migrations"
	"github.com/floatchat/floatchat/argo/query"
	"github.com/floatchat/floatchat/chat"
	"github.com/floatchat/floatchat/dashboard"
	"github.com/floatchat/floatchat/page"
	"github.com/floatchat/floatchat/providers/cron"
	fchttp "github.com/floatchat/floatchat/providers/http"
	"github.com/floatchat/floatchat/providers/leases"
	leasesmigrations "github.com/floatchat/floatchat/providers/leases/migrations"
	"github.com/floatchat/floatchat/providers/logging"
	"github.com/floatchat/floatchat/providers/pubsub"
	fcsql "github.com/floatchat/floatchat/providers/sql"
)

type storeFlags struct {
	Memory bool         `help:"Serve the built-in demo data from memory instead of the database." env:"FLOATCHAT_MEMORY"`
	SQL    fcsql.Config `embed:"" prefix:"sql-"`
}

var cli struct {
	Version kong.VersionFlag   `help:"Print the version and exit."`
	Config  kong.ConfigFlag    `help:"Load flags from a TOML file." placeholder:"FILE"`
	Log     logging.SlogConfig `embed:"" prefix:"log-"`
	Store   storeFlags         `embed:""`

	Serve   serveCmd   `cmd:"" default:"withargs" help:"Serve the dashboard and API."`
	Migrate migrateCmd `cmd:"" help:"Apply database migrations and exit."`
	Import  importCmd  `cmd:"" help:"Load floats and profiles into the database."`
	Export  exportCmd  `cmd:"" help:"Write floats as CSV or JSON."`
}

func main() {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Description("FloatChat serves a dashboard and chat assistant over ARGO float data."),
		kong.Configuration(kongtoml.Loader, "/etc/floatchat.toml", "~/.floatchat.toml"),
		kong.Vars{"version": version, "browser": defaultBrowser()},
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&cli.Store),
	)
	logger := logging.New(os.Stderr, cli.Log)
	kctx.Bind(logger)
	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}

// backend is the store selected by [storeFlags], along with what depends on it.
type backend struct {
	store  argo.Store
	leaser leases.Leaser
	mode   string
	close  func() error
}

func (s *storeFlags) open(ctx context.Context, logger *slog.Logger) (*backend, error) {
	if s.Memory {
		logger.Info("Using in-memory demo data")
		return &backend{
			store:  argo.NewSeededMemoryStore(),
			leaser: leases.NewMemoryLeaser(),
			mode:   "memory",
			close:  func() error { return nil },
		}, nil
	}
	db, driver, err := s.openDB(ctx, logger)
	if err != nil {
		return nil, err
	}
	leaser, err := leases.NewSQLLeaser(ctx, logger, driver, db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create leaser")
	}
	return &backend{
		store:  argo.NewSQLStore(db, driver),
		leaser: leaser,
		mode:   driver.Name(),
		close: func() error {
			return errors.Join(leaser.Close(), db.Close())
		},
	}, nil
}

func (s *storeFlags) openDB(ctx context.Context, logger *slog.Logger) (*sql.DB, fcsql.Driver, error) {
	driver, err := fcsql.DriverForConfig(s.SQL)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	db, err := fcsql.New(ctx, s.SQL, logger, append(migrations.Migrations(), leasesmigrations.Migrations()...))
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return db, driver, nil
}

type serveCmd struct {
	HTTP    fchttp.Config `embed:"" prefix:"server-"`
	Title   string        `default:"FloatChat" help:"Title of the dashboard."`
	Open    bool          `help:"Open the dashboard in a browser once listening."`
	Browser string        `default:"${browser}" help:"Command used to open the dashboard (${default})." env:"BROWSER"`
}

func (c *serveCmd) Run(ctx context.Context, logger *slog.Logger, flags *storeFlags) error {
	backend, err := flags.open(ctx, logger)
	if err != nil {
		return err
	}
	defer backend.close() //nolint:errcheck

	stats := argo.NewStatsCache(logger, backend.store)
	scheduler := cron.NewScheduler(ctx, logger, backend.leaser)
	if err := stats.Schedule(scheduler); err != nil {
		return errors.WithStack(err)
	}

	topic := pubsub.NewMemoryTopic[chat.Response](logger)
	defer topic.Close() //nolint:errcheck
	chatService := chat.NewService(logger, chat.NewKeywordResponder(backend.store), topic)

	board := dashboard.New(logger, c.Title, dashboard.Panels{
		dashboard.NewOverview(stats, backend.store),
		dashboard.NewFloats(backend.store),
		dashboard.Chat{ChatURL: "/api/chat", EventsURL: "/api/events"},
	})
	entry := page.NewEntry("dashboard", logger, board)
	service := api.New(logger, backend.store, stats, chatService, entry, backend.mode)

	server := fchttp.New(ctx, logger, c.HTTP, service.Handler())
	listener, err := net.Listen("tcp", c.HTTP.Bind)
	if err != nil {
		return errors.Errorf("failed to listen on %s: %w", c.HTTP.Bind, err)
	}
	if c.Open {
		url := "http://" + listener.Addr().String() + "/"
		if err := openBrowser(ctx, c.Browser, url); err != nil {
			logger.Warn("Failed to open browser", "url", url, "error", err)
		}
	}
	return fchttp.Serve(ctx, logger, c.HTTP, server, listener)
}

func defaultBrowser() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "cmd /c start"
	default:
		return "xdg-open"
	}
}

// openBrowser runs command, a shell-quoted command line, with url appended.
func openBrowser(ctx context.Context, command, url string) error {
	words, err := shellquote.Split(command)
	if err != nil {
		return errors.Errorf("invalid browser command %q: %w", command, err)
	}
	if len(words) == 0 {
		return errors.Errorf("empty browser command")
	}
	cmd := exec.CommandContext(ctx, words[0], append(words[1:], url)...) //nolint:gosec
	return errors.WithStack(cmd.Start())
}

type migrateCmd struct{}

func (c *migrateCmd) Run(ctx context.Context, logger *slog.Logger, flags *storeFlags) error {
	if flags.Memory {
		return errors.Errorf("--memory has no database to migrate")
	}
	flags.SQL.Migrate = true
	db, _, err := flags.openDB(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	logger.Info("Database is up to date", "dsn", flags.SQL.DSN)
	return nil
}

type importCmd struct {
	Seed bool   `help:"Load the built-in demo dataset."`
	File string `arg:"" optional:"" type:"existingfile" help:"JSON dataset with \"floats\" and \"profiles\" arrays."`
}

func (c *importCmd) Validate() error {
	if c.Seed == (c.File != "") {
		return errors.Errorf("exactly one of --seed or a dataset file is required")
	}
	return nil
}

func (c *importCmd) Run(ctx context.Context, logger *slog.Logger, flags *storeFlags) error {
	if flags.Memory {
		return errors.Errorf("--memory cannot be combined with import")
	}
	dataset := argo.SeedDataset()
	if !c.Seed {
		r, err := os.Open(c.File)
		if err != nil {
			return errors.WithStack(err)
		}
		defer r.Close() //nolint:errcheck
		dataset, err = argo.ReadDataset(r)
		if err != nil {
			return errors.Errorf("%s: %w", c.File, err)
		}
	}
	db, driver, err := flags.openDB(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	if err := dataset.Load(ctx, argo.NewSQLStore(db, driver)); err != nil {
		return errors.WithStack(err)
	}
	logger.Info("Imported dataset", "floats", len(dataset.Floats), "profiles", len(dataset.Profiles))
	return nil
}

type exportCmd struct {
	Format string `default:"csv" enum:"csv,json" help:"Output format (${enum})."`
	Output string `short:"o" default:"-" help:"File to write, or - for stdout." placeholder:"FILE"`
	Where  string `arg:"" optional:"" help:"Filter expression, eg. 'lat < 0 and status = active'."`
}

func (c *exportCmd) Run(ctx context.Context, logger *slog.Logger, flags *storeFlags) error {
	format, err := argo.ParseExportFormat(c.Format)
	if err != nil {
		return errors.WithStack(err)
	}
	var filter argo.Filter
	if c.Where != "" {
		filter, err = query.Parse(c.Where)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	var store argo.Store = argo.NewSeededMemoryStore()
	if !flags.Memory {
		db, driver, err := flags.openDB(ctx, logger)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck
		store = argo.NewSQLStore(db, driver)
	}
	floats, err := store.Floats(ctx, filter)
	if err != nil {
		return errors.WithStack(err)
	}

	var w io.Writer = os.Stdout
	if c.Output != "-" {
		f, err := os.Create(c.Output)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	if err := argo.Export(w, format, floats); err != nil {
		return errors.WithStack(err)
	}
	logger.Debug("Exported floats", "count", len(floats), "format", string(format))
	return nil
}
