// Command audit-prune applies the audit retention policy once and exits.
// Run it from cron or a Kubernetes CronJob.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xela07ax/workflow-acl/internal/audit"
	"github.com/xela07ax/workflow-acl/internal/domain"
	"github.com/xela07ax/workflow-acl/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	days := flag.Int("days", cfg.Audit.RetentionDays, "keep records newer than this many days")
	path := flag.String("log", cfg.Audit.LogPath, "audit log file")
	flag.Parse()

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if *days < 0 {
		logger.Fatal("retention must not be negative", zap.Int("days", *days))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := audit.NewLog(*path, logger)
	removed, err := l.Prune(ctx, *days)
	if err != nil {
		logger.Fatal("prune failed", zap.String("path", *path), zap.Error(err))
	}

	// The job itself is an administrative action and goes into the trail it just pruned.
	l.Append(domain.AuditRecord{
		Username: "audit-prune",
		Action:   domain.ActionPruneAudit,
		Status:   domain.AuditSuccess,
		Details:  map[string]interface{}{"removed": removed, "retention_days": *days},
	})
	logger.Info("audit retention applied", zap.Int("removed", removed), zap.Int("retention_days", *days))
}
