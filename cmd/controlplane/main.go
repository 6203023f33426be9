package main

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nexushub/controlplane/internal/access"
	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/apiserver/handler"
	"github.com/nexushub/controlplane/internal/audit"
	"github.com/nexushub/controlplane/internal/auth/jwt"
	"github.com/nexushub/controlplane/internal/bulkops"
	"github.com/nexushub/controlplane/internal/common/config"
	"github.com/nexushub/controlplane/internal/federation"
	"github.com/nexushub/controlplane/internal/hierarchy"
	"github.com/nexushub/controlplane/pkg/logger"
	"github.com/nexushub/controlplane/pkg/metrics"
	"github.com/nexushub/controlplane/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of controlplane",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("controlplane version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "controlplane",
		Short: "Tenant hierarchy and federation control plane",
		Long:  `controlplane manages the tenant hierarchy, cross-hub federation partnerships and the audit trail behind them`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "configs/controlplane.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	zapLogger, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting controlplane",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.InitMasterTenant(context.Background(), db); err != nil {
		zapLogger.Fatal("Failed to initialize master tenant", zap.Error(err))
	}

	jwtService, err := jwt.NewService(jwt.Config(cfg.JWT))
	if err != nil {
		zapLogger.Fatal("Failed to initialize JWT service", zap.Error(err))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	cache, err := federation.NewControlsCache(&cfg.Cache, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize controls cache", zap.Error(err))
	}

	accessSvc := access.NewService(db, zapLogger)
	auditSvc := audit.NewService(db, zapLogger, m)
	hierarchySvc := hierarchy.NewService(db, accessSvc, auditSvc, zapLogger, m)
	bulkSvc := bulkops.NewService(db, accessSvc, auditSvc, zapLogger, m)
	federationSvc := federation.NewService(db, accessSvc, auditSvc, cache, zapLogger, m)

	h := handler.NewHandler(db, jwtService, accessSvc, hierarchySvc, bulkSvc, federationSvc, auditSvc, zapLogger)

	r := gin.Default()
	h.RegisterRoutes(r, m)

	addr := ":" + strconv.Itoa(cfg.Port)
	zapLogger.Info("Listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		zapLogger.Fatal("Server exited", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
