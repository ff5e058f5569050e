package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/tg-rspamd/app/bot"
	"github.com/umputun/tg-rspamd/app/events"
	"github.com/umputun/tg-rspamd/app/learning"
	"github.com/umputun/tg-rspamd/app/panel"
	"github.com/umputun/tg-rspamd/app/rspamd"
	"github.com/umputun/tg-rspamd/app/server"
	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/app/storage/engine"
	"github.com/umputun/tg-rspamd/app/trust"
)

type options struct {
	Telegram struct {
		Token   string        `long:"token" env:"TOKEN" description:"telegram bot token" required:"true"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"70s" description:"http client timeout for telegram"`
	} `group:"telegram" namespace:"telegram" env-namespace:"TELEGRAM"`

	Redis struct {
		URL     string        `long:"url" env:"URL" default:"redis://127.0.0.1:6379/0" description:"redis url"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"5s" description:"redis timeout"`
	} `group:"redis" namespace:"redis" env-namespace:"REDIS"`

	Rspamd struct {
		URL         string        `long:"url" env:"URL" default:"http://127.0.0.1:11334" description:"rspamd controller url"`
		Password    string        `long:"password" env:"PASSWORD" description:"rspamd controller password"`
		Timeout     time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"rspamd http timeout"`
		Retries     int           `long:"retries" env:"RETRIES" default:"3" description:"rspamd request attempts"`
		FuzzyFlag   int           `long:"fuzzy-flag" env:"FUZZY_FLAG" default:"1" description:"rspamd fuzzy storage flag"`
		FuzzyWeight int           `long:"fuzzy-weight" env:"FUZZY_WEIGHT" default:"10" description:"rspamd fuzzy storage weight"`
		RulesDir    string        `long:"rules-dir" env:"RULES_DIR" default:"/etc/rspamd/lua.local.d" description:"dir for custom regexp rules"`
	} `group:"rspamd" namespace:"rspamd" env-namespace:"RSPAMD"`

	DB string `long:"db" env:"DB" default:"tg-rspamd.db" description:"action log database, sqlite file or postgres:// url"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable moderation rotated logs"`
		FileName   string `long:"file" env:"FILE"  default:"tg-rspamd.log" description:"location of moderation log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Server struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable api server"`
		ListenAddr string `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
		AuthPasswd string `long:"auth" env:"AUTH" default:"" description:"basic auth password for user 'tg-rspamd'"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	SuperUsers      events.SuperUsers `long:"super" env:"SUPER_USER" env-delim:"," description:"super-users"`
	AdminPanel      int64             `long:"admin-panel" env:"ADMIN_PANEL" description:"chat id to set up as admin panel on start"`
	AdminPanelOwner int64             `long:"admin-panel-owner" env:"ADMIN_PANEL_OWNER" description:"user id of the admin panel administrator"`
	DecaySchedule   string            `long:"decay-schedule" env:"DECAY_SCHEDULE" default:"@every 1h" description:"ban counters decay schedule"`
	Migrate         bool              `long:"migrate" env:"MIGRATE" description:"migrate legacy reputation on start"`

	Dry   bool `long:"dry" env:"DRY" description:"dry mode, no bans and no deletes"`
	Dbg   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	TGDbg bool `long:"tg-dbg" env:"TG_DEBUG" description:"telegram debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("tg-rspamd %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Telegram.Token, opts.Rspamd.Password, opts.Server.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	if opts.Dry {
		log.Print("[WARN] dry mode, no actual bans")
	}

	store, err := storage.NewRedis(ctx, opts.Redis.URL, opts.Redis.Timeout)
	if err != nil {
		return fmt.Errorf("can't make redis store, %w", err)
	}
	defer store.Close()

	if opts.Migrate {
		report, merr := store.MigrateReputation(ctx)
		if merr != nil {
			return fmt.Errorf("can't migrate reputation, %w", merr)
		}
		log.Printf("[INFO] reputation migration: %s", report)
	}

	actionsDB, err := engine.New(ctx, opts.DB, "tg-rspamd")
	if err != nil {
		return fmt.Errorf("can't make action log db, %w", err)
	}
	defer actionsDB.Close()
	actions, err := storage.NewActionLog(ctx, actionsDB)
	if err != nil {
		return fmt.Errorf("can't make action log, %w", err)
	}

	svc := makeServices(store, opts)
	if err := setupAdminPanel(ctx, svc.panel, opts); err != nil {
		return err
	}

	decisionsWr, err := makeDecisionLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make decision log writer, %w", err)
	}
	defer decisionsWr.Close()

	moderator := bot.NewModerator(bot.ModeratorParams{
		Scanner:     svc.rspamd,
		Store:       store,
		Trust:       svc.trust,
		Learner:     svc.bayes,
		Controls:    svc.panel,
		Actions:     actions,
		DecisionLog: decisionsWr,
	})

	tbAPI, err := tbapi.NewBotAPIWithClient(opts.Telegram.Token, tbapi.APIEndpoint, &http.Client{Timeout: opts.Telegram.Timeout})
	if err != nil {
		return fmt.Errorf("can't make telegram bot, %w", err)
	}
	tbAPI.Debug = opts.TGDbg

	tgListener := events.TelegramListener{
		TbAPI:      tbAPI,
		Moderator:  moderator,
		Store:      store,
		Trust:      svc.trust,
		Panel:      svc.panel,
		Bayes:      svc.bayes,
		Neural:     svc.neural,
		Fuzzy:      svc.fuzzy,
		SuperUsers: opts.SuperUsers,
		BotID:      tbAPI.Self.ID,
		BotName:    tbAPI.Self.UserName,
		RulesDir:   opts.Rspamd.RulesDir,
		Dry:        opts.Dry,
	}
	log.Printf("[DEBUG] telegram listener config: {bot: %s, super: %v, rules: %s, dry: %v}",
		tgListener.BotName, tgListener.SuperUsers, tgListener.RulesDir, tgListener.Dry)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 3)
	workers := 2

	go func() {
		errCh <- bot.NewBanDecay(store).Run(ctx, opts.DecaySchedule)
	}()

	if opts.Server.Enabled {
		workers++
		srv := server.NewServer(server.Config{
			Version:    revision,
			ListenAddr: opts.Server.ListenAddr,
			AuthPasswd: opts.Server.AuthPasswd,
			Actions:    actions,
			Chats:      store,
			Bayes:      svc.bayes,
			Neural:     svc.neural,
			Trust:      svc.trust,
			Panel:      svc.panel,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				errCh <- err
				return
			}
			errCh <- ctx.Err()
		}()
	}

	// run telegram listener and event processor loop
	go func() {
		if err := tgListener.Do(ctx); err != nil {
			errCh <- fmt.Errorf("telegram listener failed, %w", err)
			return
		}
		errCh <- nil
	}()

	return waitWorkers(errCh, workers, cancel)
}

// waitWorkers waits for all workers to finish. The first failed worker cancels the rest.
// Returns all errors except context cancellation.
func waitWorkers(errCh <-chan error, count int, cancel context.CancelFunc) error {
	errs := new(multierror.Error)
	for range count {
		err := <-errCh
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

type services struct {
	rspamd *rspamd.Client
	trust  *trust.Manager
	panel  *panel.Panel
	bayes  *learning.Bayes
	neural *learning.Neural
	fuzzy  *learning.Fuzzy
}

func makeServices(store *storage.Redis, opts options) services {
	rc := rspamd.NewClient(rspamd.Params{
		URL:         opts.Rspamd.URL,
		Password:    opts.Rspamd.Password,
		Timeout:     opts.Rspamd.Timeout,
		Retries:     opts.Rspamd.Retries,
		FuzzyFlag:   opts.Rspamd.FuzzyFlag,
		FuzzyWeight: opts.Rspamd.FuzzyWeight,
	})
	neural := learning.NewNeural(store.Client())
	return services{
		rspamd: rc,
		trust:  trust.NewManager(store.Client(), store),
		panel:  panel.New(store.Client()),
		bayes:  learning.NewBayes(store.Client(), rc, neural),
		neural: neural,
		fuzzy:  learning.NewFuzzy(rc),
	}
}

// setupAdminPanel registers the admin panel chat from options, unless the panel is already set up
func setupAdminPanel(ctx context.Context, p *panel.Panel, opts options) error {
	if opts.AdminPanel == 0 {
		return nil
	}
	if opts.AdminPanelOwner == 0 {
		return errors.New("admin panel owner is required to set up admin panel")
	}
	chatID, ok, err := p.ChatID(ctx)
	if err != nil {
		return fmt.Errorf("can't check admin panel, %w", err)
	}
	if ok {
		log.Printf("[DEBUG] admin panel already set up in chat %d", chatID)
		return nil
	}
	owner := panel.User{ID: opts.AdminPanelOwner, UserName: strconv.FormatInt(opts.AdminPanelOwner, 10)}
	if err := p.Setup(ctx, opts.AdminPanel, owner); err != nil {
		return fmt.Errorf("can't set up admin panel, %w", err)
	}
	return nil
}

// makeDecisionLogWriter creates writer for json lines of moderation decisions
// it parses options and makes lumberjack logger with rotation
func makeDecisionLogWriter(opts options) (io.WriteCloser, error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, err := sizeParse(opts.Logger.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", err)
	}
	maxSize /= 1048576

	log.Printf("[INFO] logger enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse parses size with optional k/m/g/t suffix, i.e. 100M
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	nonEmpty := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
