package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/datastore"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metrics"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/service"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/utilization"
	"github.com/provision-stack/provision-api/health"
)

const (
	cfgFileType = "yaml"
)

var (
	cfgFile string
	ds      *datastore.RethinkStore
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "provision-api",
	Short: "an api compiling storage plans and accounting subnet addresses for bare metal provisioning",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
		initDataStore()
		initSignalHandlers()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "failed executing root command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "alternative path to config file")
	rootCmd.Flags().StringP("log-level", "", "info", "the application log level")

	rootCmd.Flags().StringP("bind-addr", "", "127.0.0.1", "the bind addr of the api server")
	rootCmd.Flags().IntP("port", "", 8080, "the port to serve on")
	rootCmd.Flags().IntP("metrics-port", "", 2112, "the port to serve prometheus metrics on")

	rootCmd.Flags().StringP("db-name", "", "provisionapi", "the database name to use")
	rootCmd.Flags().StringP("db-addr", "", "", "the database address string to use")
	rootCmd.Flags().StringP("db-user", "", "", "the database user to use")
	rootCmd.Flags().StringP("db-password", "", "", "the database password to use")

	err := viper.BindPFlags(rootCmd.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to construct root command: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROVISION_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigType(cfgFileType)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config file path set explicitly, but unreadable: %v\n", err)
			os.Exit(1)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("/etc/provision-api")
		viper.AddConfigPath("$HOME/.provision-api")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			usedCfg := viper.ConfigFileUsed()
			if usedCfg != "" {
				fmt.Fprintf(os.Stderr, "config file %q unreadable: %v\n", usedCfg, err)
				os.Exit(1)
			}
		}
	}
}

func initLogging() {
	level := zap.InfoLevel
	if viper.IsSet("log-level") {
		var err error
		level, err = zapcore.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "unparsable log level: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = l.Sugar()
}

func initSignalHandlers() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("received signal, shutting down")
		if ds != nil {
			err := ds.Close()
			if err != nil {
				logger.Errorw("unable to properly shutdown datastore", "error", err)
				os.Exit(1)
			}
		}
		os.Exit(0)
	}()
}

func initDataStore() {
	ds = datastore.New(
		logger.Named("datastore"),
		viper.GetString("db-addr"),
		viper.GetString("db-name"),
		viper.GetString("db-user"),
		viper.GetString("db-password"),
	)
	err := ds.Connect()
	if err != nil {
		logger.Fatalw("cannot connect to datastore", "error", err)
	}
	err = ds.Initialize()
	if err != nil {
		logger.Fatalw("cannot initialize datastore", "error", err)
	}
}

func run() error {
	util := utilization.New(logger.Named("utilization"), ds)

	restful.DefaultContainer.Add(service.NewMachine(logger.Named("machine-service"), ds))
	restful.DefaultContainer.Add(service.NewSubnet(logger.Named("subnet-service"), ds, util))
	restful.DefaultContainer.Add(health.New(logger.Desugar(), ds.Health))
	restful.DefaultContainer.Filter(metrics.RestfulMetrics)

	config := restfulspec.Config{
		WebServices:                   restful.RegisteredWebServices(),
		APIPath:                       "/apidocs.json",
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}
	restful.DefaultContainer.Add(restfulspec.NewOpenAPIService(config))

	// enable CORS for the UI to work.
	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		CookiesAllowed: false,
		Container:      restful.DefaultContainer,
	}
	restful.DefaultContainer.Filter(cors.Filter)

	addr := fmt.Sprintf("%s:%d", viper.GetString("bind-addr"), viper.GetInt("port"))
	metricsAddr := fmt.Sprintf("%s:%d", viper.GetString("bind-addr"), viper.GetInt("metrics-port"))

	apiServer := &http.Server{
		Addr:              addr,
		Handler:           restful.DefaultContainer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.Infow("start provision api", "address", addr)
		return apiServer.ListenAndServe()
	})
	g.Go(func() error {
		logger.Infow("serving prometheus metrics", "address", metricsAddr)
		return metricsServer.ListenAndServe()
	})
	return g.Wait()
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "provision-api",
			Description: "Resource for compiling machine storage plans and accounting subnet addresses",
			Version:     "1.0.0",
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{
			Name:        "machine",
			Description: "Machine storage configuration"}},
		{TagProps: spec.TagProps{
			Name:        "subnet",
			Description: "Subnet address accounting"}},
		{TagProps: spec.TagProps{
			Name:        "health",
			Description: "Service health"}},
	}
}
