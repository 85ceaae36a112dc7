package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/cdn"
	"github.com/nexus-cdn/nexus/internal/config"
	"github.com/nexus-cdn/nexus/internal/esmbundle"
	"github.com/nexus-cdn/nexus/internal/logging"
	"github.com/nexus-cdn/nexus/internal/mirror"
	"github.com/nexus-cdn/nexus/internal/pkgcache"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/resolver"
	"github.com/nexus-cdn/nexus/internal/server"
	"github.com/nexus-cdn/nexus/internal/storage"
	"github.com/nexus-cdn/nexus/internal/upstream"
	"github.com/nexus-cdn/nexus/internal/version"
	"github.com/nexus-cdn/nexus/internal/winget"
)

// cliOptions collects the parsed CLI flags so run() can be exercised
// directly from tests without going through os.Args.
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run executes the resolved CLI options and returns a process exit code.
func run(opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "init logger: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["mirrors"] = len(cfg.Mirror)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config check passed")
		return 0
	}

	// Startup follows config -> storage -> resolver -> package cache ->
	// winget index -> cdn/mirror/esmbundle handlers -> Fiber app, so every
	// request handler shares the same cache and client instances.
	store, err := storage.New(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "init storage: %v\n", err)
		return 1
	}

	metadataClient := upstream.NewClient(cfg.Global.MetadataTimeout.DurationValue())
	tarballClient := upstream.NewClient(cfg.Global.TarballTimeout.DurationValue())

	res := resolver.New(metadataClient, cfg.Global.GitHubToken)

	sources := map[pkgkey.Ecosystem]pkgcache.EntrySource{
		pkgkey.EcosystemNPM:   pkgcache.TarGzSource{Client: tarballClient, URL: pkgcache.NPMTarballURL("https://registry.npmjs.org")},
		pkgkey.EcosystemJSR:   pkgcache.TarGzSource{Client: tarballClient, URL: pkgcache.NPMTarballURL("https://npm.jsr.io")},
		pkgkey.EcosystemGH:    pkgcache.TarGzSource{Client: tarballClient, URL: pkgcache.GitHubTarballURL()},
		pkgkey.EcosystemCDNJS: pkgcache.CDNJSSource{Client: tarballClient},
		pkgkey.EcosystemWP:    pkgcache.WordPressSource{Client: tarballClient},
	}
	cache := pkgcache.New(store, sources, logger)

	winGetIndex := winget.New(store, metadataClient, logger, cfg.WinGet.Owner, cfg.WinGet.Repo, cfg.WinGet.Branch, cfg.Global.GitHubToken, cfg.WinGet.RefreshTTL.DurationValue())

	bundler := esmbundle.New(cache, res, cache, logger)
	cdnHandler := cdn.New(res, cache, bundler, logger)
	mirrorHandler := mirror.New(upstream.NewClient(0), cfg.MirrorTable(), logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["mirrors"] = len(cfg.Mirror)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("config loaded")

	if err := startHTTPServer(cfg, cdnHandler, winGetIndex, mirrorHandler, logger); err != nil {
		fmt.Fprintf(stdErr, "http server: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags parses CLI arguments and folds in the NEXUS_CONFIG
// environment override to compute the final config path.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("nexus", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "config file path (default ./nexus.toml, overridable via NEXUS_CONFIG)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the config and exit")
	fs.BoolVar(&showVer, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parse flags: %w", err)
	}

	path := os.Getenv("NEXUS_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "nexus.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, cdnHandler *cdn.Handler, winGetIndex *winget.Index, mirrorHandler *mirror.Handler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		CDN:         cdnHandler,
		WinGet:      winGetIndex,
		Mirror:      mirrorHandler,
		MirrorTable: cfg.MirrorTable(),
		Ecosystems:  []string{"npm", "jsr", "gh", "cdnjs", "wp", "winget"},
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("fiber server starting")

	return app.Listen(fmt.Sprintf(":%d", port))
}
