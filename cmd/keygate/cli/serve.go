package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/policy"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
)

const banner = `
 _  _________   ______    _  _____ _____
| |/ / ____\ \ / / ___|  / \|_   _| ____|
| ' /|  _|  \ V / |  _  / _ \ | | |  _|
| . \| |___  | || |_| |/ ___ \| | | |___
|_|\_\_____| |_| \____/_/   \_\_| |_____|
`

func newServeCmd() *cobra.Command {
	var (
		port       int
		host       string
		dev        bool
		policyFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Keygate server",
		Long:  "Start the HTTP server that validates API keys, enforces daily quotas, and serves the admin management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev, policyFile)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Tier policy file (YAML); reloaded on change")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("policy.file", cmd.Flags().Lookup("policy"))

	return cmd
}

func runServe(host string, port int, dev bool, policyFile string) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx := context.Background()

	// 1. Open the key store
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()
	logger.Info("key store opened")

	// 2. Tier policy: file-backed with live reload, or built-in defaults
	if policyFile == "" {
		policyFile = viper.GetString("policy.file")
	}
	var policies *policy.Provider
	if policyFile != "" {
		policies, err = policy.NewFileProvider(policyFile, logger)
		if err != nil {
			return fmt.Errorf("load tier policy: %w", err)
		}
		logger.Info("tier policy loaded", "path", policyFile)
	} else {
		policies = policy.NewProvider(policy.Default())
		logger.Info("using built-in tier policy")
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := policies.Watch(watchCtx); err != nil {
			logger.Error("policy watcher stopped", "error", err)
		}
	}()

	// 3. Cache, metrics, and trackers
	c, err := cache.NewMemory(service.DefaultAnonymousTTL, viper.GetInt("cache.max_keys"))
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	keyTTL := viper.GetDuration("cache.key_ttl")
	if keyTTL <= 0 {
		keyTTL = service.DefaultKeyTTL
	}
	keys := service.NewKeyService(st, c, keyTTL, logger, m)
	quota := service.NewQuotaTracker(keys, policies, logger, m)
	anon := service.NewAnonymousTracker(c, policies, service.DefaultAnonymousTTL, logger, m)

	// 4. Auth service for the management API
	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret = "keygate-dev-secret-change-me"
		logger.Warn("auth.jwt_secret not set, using development default")
	}
	authSvc := service.NewAuthService(st, jwtSecret)

	// 5. Check for first-run (no admin exists)
	hasAdmin, err := st.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: keygate admin create")
	}

	// 6. Build and start HTTP server
	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		BurstPerMinute:  viper.GetInt("server.burst_per_minute"),
		Version:         versionString(),
		ExternalBaseURL: viper.GetString("server.external_url"),
	}
	if srvCfg.BurstPerMinute == 0 {
		srvCfg.BurstPerMinute = server.DefaultConfig().BurstPerMinute
	}
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 && !dev {
		srvCfg.CORSOrigins = origins
	}

	srv := server.New(srvCfg, server.Deps{
		Store:    st,
		Keys:     keys,
		Quota:    quota,
		Anon:     anon,
		Auth:     authSvc,
		Policies: policies,
		Registry: reg,
	}, logger)

	fmt.Printf("→ Keygate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}
