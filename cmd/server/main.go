package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/chat"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/httpapi"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/metrics"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/publish"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sitecache"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sites"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/storage"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/task"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the website builder backend"
	commandLongDescription        = "Launch the chat, publish and site serving HTTP endpoints of the website builder"
	missingConfigurationMessage   = "missing required configuration"
	invalidConfigurationMessage   = "invalid configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logEventShutdown              = "shutdown"
	logEventCacheDisabled         = "site_cache_disabled"
	logFieldAddress               = "addr"
	logFieldServeMode             = "serve_mode"
	loggerContextOpenDatabase     = "open_db"
	loggerContextAutoMigrate      = "migrate"
	loggerContextServer           = "server"
	readHeaderTimeoutSeconds      = 5
	shutdownTimeoutSeconds        = 10
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"

	flagNameApplicationAddress      = "app-addr"
	flagNameServeMode               = "serve-mode"
	flagNameDatabaseDriver          = "db-driver"
	flagNameDatabaseDataSourceName  = "db-dsn"
	flagNameAuthJWTSecret           = "auth-jwt-secret"
	flagNameAuthJWKSURL             = "auth-jwks-url"
	flagNameLLMGatewayURL           = "llm-gateway-url"
	flagNameLLMAPIKey               = "llm-api-key"
	flagNameLLMModel                = "llm-model"
	flagNamePublicBaseURL           = "public-base-url"
	flagNameHomeURL                 = "home-url"
	flagNameSubdomainPolicy         = "subdomain-policy"
	flagNameRedisAddress            = "redis-addr"
	flagNameSiteCacheTTL            = "site-cache-ttl"
	flagNameAnalyticsRetentionDays  = "analytics-retention-days"
	flagNameAnalyticsRollupInterval = "analytics-rollup-interval"

	environmentKeyApplicationAddress      = "APP_ADDR"
	environmentKeyServeMode               = "SERVE_MODE"
	environmentKeyDatabaseDriver          = "DB_DRIVER"
	environmentKeyDatabaseDataSource      = "DB_DSN"
	environmentKeyAuthJWTSecret           = "AUTH_JWT_SECRET"
	environmentKeyAuthJWKSURL             = "AUTH_JWKS_URL"
	environmentKeyLLMGatewayURL           = "LLM_GATEWAY_URL"
	environmentKeyLLMAPIKey               = "LLM_API_KEY"
	environmentKeyLLMModel                = "LLM_MODEL"
	environmentKeyPublicBaseURL           = "PUBLIC_BASE_URL"
	environmentKeyHomeURL                 = "HOME_URL"
	environmentKeySubdomainPolicy         = "SUBDOMAIN_POLICY"
	environmentKeyRedisAddress            = "REDIS_ADDR"
	environmentKeySiteCacheTTL            = "SITE_CACHE_TTL"
	environmentKeyAnalyticsRetentionDays  = "ANALYTICS_RETENTION_DAYS"
	environmentKeyAnalyticsRollupInterval = "ANALYTICS_ROLLUP_INTERVAL"

	defaultApplicationAddress      = ":8080"
	defaultLLMModel                = "google/gemini-2.5-flash"
	defaultHomeURL                 = "/"
	defaultSiteCacheTTL            = "1h"
	defaultAnalyticsRetentionDays  = "0"
	defaultAnalyticsRollupInterval = "1h"

	corsOriginWildcard       = "*"
	corsHeaderAuthorization  = "Authorization"
	corsHeaderContentType    = "Content-Type"
	corsHeaderAPIKey         = "apikey"
	corsHeaderClientInfo     = "X-Client-Info"
	corsHeaderRequestedWith  = "X-Requested-With"
	httpMethodGet            = "GET"
	httpMethodOptions        = "OPTIONS"
	httpMethodPost           = "POST"
	httpMethodPatch          = "PATCH"
	httpMethodDelete         = "DELETE"
	errorMessageDatabaseNil  = "database opener returned no connection"
	errorMessageServeMode    = "serve mode"
	errorMessageDurationFlag = "duration"
	errorMessageIntegerFlag  = "integer"
)

var (
	corsAllowedMethods = []string{httpMethodPost, httpMethodGet, httpMethodPatch, httpMethodDelete, httpMethodOptions}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType, corsHeaderAPIKey, corsHeaderClientInfo, corsHeaderRequestedWith}
	corsExposedHeaders = []string{corsHeaderContentType}
)

type configurationFlag struct {
	environmentKey string
	flagName       string
	defaultValue   string
	usage          string
}

var configurationFlags = []configurationFlag{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on"},
	{environmentKeyServeMode, flagNameServeMode, string(ServeModeAll), "surfaces to serve: all, chat, publish or sites"},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver, storage.DriverNameSQLite, "database driver: sqlite or postgres"},
	{environmentKeyDatabaseDataSource, flagNameDatabaseDataSourceName, "", "database connection string"},
	{environmentKeyAuthJWTSecret, flagNameAuthJWTSecret, "", "HS256 secret used to verify bearer tokens"},
	{environmentKeyAuthJWKSURL, flagNameAuthJWKSURL, "", "JWKS endpoint used to verify asymmetric bearer tokens"},
	{environmentKeyLLMGatewayURL, flagNameLLMGatewayURL, "", "base URL of the OpenAI compatible LLM gateway"},
	{environmentKeyLLMAPIKey, flagNameLLMAPIKey, "", "API key sent to the LLM gateway"},
	{environmentKeyLLMModel, flagNameLLMModel, defaultLLMModel, "model requested from the LLM gateway"},
	{environmentKeyPublicBaseURL, flagNamePublicBaseURL, "", "public base URL of the site serving endpoint"},
	{environmentKeyHomeURL, flagNameHomeURL, defaultHomeURL, "product home URL linked from error pages"},
	{environmentKeySubdomainPolicy, flagNameSubdomainPolicy, string(publish.SubdomainPolicyRetain), "subdomain handling on unpublish: retain or release"},
	{environmentKeyRedisAddress, flagNameRedisAddress, "", "redis address of the published site cache; empty disables it"},
	{environmentKeySiteCacheTTL, flagNameSiteCacheTTL, defaultSiteCacheTTL, "lifetime of cached published sites"},
	{environmentKeyAnalyticsRetentionDays, flagNameAnalyticsRetentionDays, defaultAnalyticsRetentionDays, "days raw analytics events are kept; 0 keeps them forever"},
	{environmentKeyAnalyticsRollupInterval, flagNameAnalyticsRollupInterval, defaultAnalyticsRollupInterval, "interval between analytics rollups"},
}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress      string
	ServeMode               ServeMode
	DatabaseDriverName      string
	DatabaseDataSourceName  string
	AuthJWTSecret           string
	AuthJWKSURL             string
	LLMGatewayURL           string
	LLMAPIKey               string
	LLMModel                string
	PublicBaseURL           string
	HomeURL                 string
	SubdomainPolicy         publish.SubdomainPolicy
	RedisAddress            string
	SiteCacheTTL            time.Duration
	AnalyticsRetentionDays  int
	AnalyticsRollupInterval time.Duration
}

// DatabaseOpener opens a database connection using the provided configuration.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, flagDefinition := range configurationFlags {
		application.configurationLoader.SetDefault(flagDefinition.environmentKey, flagDefinition.defaultValue)
		commandFlags.String(flagDefinition.flagName, flagDefinition.defaultValue, flagDefinition.usage)
	}
	application.configurationLoader.AutomaticEnv()

	for _, flagDefinition := range configurationFlags {
		if bindErr := application.bindFlag(commandFlags, flagDefinition.environmentKey, flagDefinition.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, flagDefinition.environmentKey, flagDefinition.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadConfiguration() (ServerConfig, error) {
	loader := application.configurationLoader
	readString := func(environmentKey string) string {
		return strings.TrimSpace(loader.GetString(environmentKey))
	}

	serveMode, serveModeErr := ParseServeMode(readString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, fmt.Errorf("%s: %s: %w", invalidConfigurationMessage, errorMessageServeMode, serveModeErr)
	}
	subdomainPolicy, policyErr := publish.ParseSubdomainPolicy(readString(environmentKeySubdomainPolicy))
	if policyErr != nil {
		return ServerConfig{}, fmt.Errorf("%s: %w", invalidConfigurationMessage, policyErr)
	}
	siteCacheTTL, ttlErr := parseDurationSetting(flagNameSiteCacheTTL, readString(environmentKeySiteCacheTTL))
	if ttlErr != nil {
		return ServerConfig{}, ttlErr
	}
	rollupInterval, intervalErr := parseDurationSetting(flagNameAnalyticsRollupInterval, readString(environmentKeyAnalyticsRollupInterval))
	if intervalErr != nil {
		return ServerConfig{}, intervalErr
	}
	retentionDays, retentionErr := strconv.Atoi(readString(environmentKeyAnalyticsRetentionDays))
	if retentionErr != nil || retentionDays < 0 {
		return ServerConfig{}, fmt.Errorf("%s: %s %s: %q", invalidConfigurationMessage, flagNameAnalyticsRetentionDays, errorMessageIntegerFlag, readString(environmentKeyAnalyticsRetentionDays))
	}

	return ServerConfig{
		ApplicationAddress:      readString(environmentKeyApplicationAddress),
		ServeMode:               serveMode,
		DatabaseDriverName:      readString(environmentKeyDatabaseDriver),
		DatabaseDataSourceName:  readString(environmentKeyDatabaseDataSource),
		AuthJWTSecret:           readString(environmentKeyAuthJWTSecret),
		AuthJWKSURL:             readString(environmentKeyAuthJWKSURL),
		LLMGatewayURL:           readString(environmentKeyLLMGatewayURL),
		LLMAPIKey:               readString(environmentKeyLLMAPIKey),
		LLMModel:                readString(environmentKeyLLMModel),
		PublicBaseURL:           readString(environmentKeyPublicBaseURL),
		HomeURL:                 readString(environmentKeyHomeURL),
		SubdomainPolicy:         subdomainPolicy,
		RedisAddress:            readString(environmentKeyRedisAddress),
		SiteCacheTTL:            siteCacheTTL,
		AnalyticsRetentionDays:  retentionDays,
		AnalyticsRollupInterval: rollupInterval,
	}, nil
}

func parseDurationSetting(flagName string, rawValue string) (time.Duration, error) {
	duration, parseErr := time.ParseDuration(rawValue)
	if parseErr != nil || duration <= 0 {
		return 0, fmt.Errorf("%s: %s %s: %q", invalidConfigurationMessage, flagName, errorMessageDurationFlag, rawValue)
	}
	return duration, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.loadConfiguration()
	if configErr != nil {
		return configErr
	}

	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.serve(ctx, serverConfig, logger)
}

func (application *ServerApplication) serve(ctx context.Context, serverConfig ServerConfig, logger *zap.Logger) error {
	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriverName,
		DataSourceName: serverConfig.DatabaseDataSourceName,
		Logger:         storage.NewZapLogger(logger),
	})
	if databaseErr == nil && database == nil {
		databaseErr = errors.New(errorMessageDatabaseNil)
	}
	if databaseErr != nil {
		logger.Error(loggerContextOpenDatabase, zap.Error(databaseErr))
		return databaseErr
	}

	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Error(loggerContextAutoMigrate, zap.Error(migrateErr))
		return migrateErr
	}

	components, componentsErr := buildComponents(ctx, serverConfig, database, logger)
	if componentsErr != nil {
		return componentsErr
	}
	defer components.close()

	if serverConfig.ServeMode.ServesPublish() {
		rollupJob := task.NewAnalyticsRollupJob(database, logger, task.AnalyticsRollupConfig{RetentionDays: serverConfig.AnalyticsRetentionDays})
		rollupScheduler := task.NewScheduler(rollupJob, serverConfig.AnalyticsRollupInterval, logger)
		rollupScheduler.Start(ctx)
		defer rollupScheduler.Stop()
	}

	router := newRouter(serverConfig.ServeMode, components.handlers, logger)
	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
		defer cancel()
		logger.Info(logEventShutdown)
		_ = httpServer.Shutdown(shutdownContext)
	}()

	logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String(logFieldServeMode, string(serverConfig.ServeMode)))
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error(loggerContextServer, zap.Error(serveErr))
		return serveErr
	}

	return nil
}

type serverComponents struct {
	handlers routeHandlers
	closers  []func() error
}

func (components serverComponents) close() {
	for _, closer := range components.closers {
		_ = closer()
	}
}

// buildComponents wires the stores and services needed by the surfaces of the configured serve mode.
func buildComponents(ctx context.Context, serverConfig ServerConfig, database *gorm.DB, logger *zap.Logger) (serverComponents, error) {
	serviceMetrics := metrics.New()
	components := serverComponents{
		handlers: routeHandlers{
			health:  httpapi.NewHealthHandlers(database),
			metrics: serviceMetrics,
		},
	}

	var siteCache sitecache.Cache = sitecache.Noop{}
	if serverConfig.RedisAddress != "" {
		redisCache, cacheErr := sitecache.NewRedisCache(ctx, sitecache.RedisConfig{Addr: serverConfig.RedisAddress, TTL: serverConfig.SiteCacheTTL})
		if cacheErr != nil {
			logger.Warn(logEventCacheDisabled, zap.Error(cacheErr))
		} else {
			siteCache = redisCache
			components.closers = append(components.closers, redisCache.Close)
		}
	}

	enforcer, enforcerErr := authz.NewEnforcer()
	if enforcerErr != nil {
		return abandonComponents(components, enforcerErr)
	}
	projectService := project.NewService(database, enforcer, logger).WithSiteCache(siteCache)

	if serverConfig.ServeMode.ServesChat() {
		gatewayClient, gatewayErr := chat.NewGatewayClient(chat.GatewayConfig{
			BaseURL: serverConfig.LLMGatewayURL,
			APIKey:  serverConfig.LLMAPIKey,
			Model:   serverConfig.LLMModel,
		}, logger)
		if gatewayErr != nil {
			return abandonComponents(components, gatewayErr)
		}
		components.handlers.chat = httpapi.NewChatHandlers(chat.NewResponder(gatewayClient, logger), serviceMetrics, logger)
	}

	if serverConfig.ServeMode.ServesPublish() {
		verifier, verifierErr := auth.NewTokenVerifier(ctx, auth.Config{JWTSecret: serverConfig.AuthJWTSecret, JWKSURL: serverConfig.AuthJWKSURL})
		if verifierErr != nil {
			return abandonComponents(components, verifierErr)
		}
		publisher, publisherErr := publish.NewPublisher(projectService, siteCache, logger, publish.Config{
			PublicBaseURL:   serverConfig.PublicBaseURL,
			SubdomainPolicy: serverConfig.SubdomainPolicy,
		})
		if publisherErr != nil {
			return abandonComponents(components, publisherErr)
		}
		components.handlers.verifier = verifier
		components.handlers.publish = httpapi.NewPublishHandlers(publisher, serviceMetrics, logger)
		components.handlers.projects = httpapi.NewProjectHandlers(projectService, logger)
	}

	if serverConfig.ServeMode.ServesSites() {
		renderer, rendererErr := sites.NewPageRenderer(serverConfig.HomeURL)
		if rendererErr != nil {
			return abandonComponents(components, rendererErr)
		}
		siteServer := sites.NewServer(projectService.Repository(), siteCache, logger)
		components.handlers.sites = httpapi.NewSiteHandlers(siteServer, renderer, projectService.Repository(), serviceMetrics, logger)
	}

	return components, nil
}

func abandonComponents(components serverComponents, err error) (serverComponents, error) {
	components.close()
	return serverComponents{}, err
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDataSourceName)
	}

	if configuration.ServeMode.ServesPublish() {
		if configuration.PublicBaseURL == "" {
			missingParameters = append(missingParameters, flagNamePublicBaseURL)
		}
		if configuration.AuthJWTSecret == "" && configuration.AuthJWKSURL == "" {
			missingParameters = append(missingParameters, flagNameAuthJWTSecret+" or "+flagNameAuthJWKSURL)
		}
	}

	if configuration.ServeMode.ServesChat() && configuration.LLMGatewayURL == "" {
		missingParameters = append(missingParameters, flagNameLLMGatewayURL)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
