package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/confsentinel/sentinel/internal/api"
	"github.com/confsentinel/sentinel/internal/auth"
	"github.com/confsentinel/sentinel/internal/notify"
	"github.com/confsentinel/sentinel/internal/remediate"
	"github.com/confsentinel/sentinel/internal/snapshot"
	"github.com/confsentinel/sentinel/internal/watch"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the watch daemon and the status API",
	Long: `Daemon starts continuous watching of all enrolled files and serves the
status API. While the daemon watches, full scans are rejected; stop the
daemon to run one.`,
	Run: func(cmd *cobra.Command, args []string) {
		reg, _ := mustRegistry()

		remediator := remediate.New(reg, remediate.NewFSApplier(), buildNotifier(), logger)
		coord := watch.New(reg, snapshot.NewOSProvider(), remediator, logger, cfg.WorkerCount)
		poller := watch.NewPoller(reg, cfg.PollInterval, logger)

		if err := poller.Start(); err != nil {
			fmtErr("start poller: %v", err)
			os.Exit(1)
		}
		if err := coord.StartWatching(poller); err != nil {
			fmtErr("start watching: %v", err)
			os.Exit(1)
		}

		authSvc := auth.NewService(cfg.JWTSecret, cfg.OperatorPasswordHash)
		srv := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.Router(reg, coord, authSvc),
		}
		go func() {
			logger.Info("status API listening", zap.String("addr", cfg.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status API failed", zap.Error(err))
			}
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status API shutdown", zap.Error(err))
		}
		if err := poller.Stop(); err != nil {
			logger.Warn("poller stop", zap.Error(err))
		}
		if err := coord.StopWatching(); err != nil {
			logger.Warn("coordinator stop", zap.Error(err))
		}
	},
}

// buildNotifier assembles the configured alert channels; returns nil when
// none are configured
func buildNotifier() notify.Notifier {
	var notifiers notify.Multi
	if cfg.SMTPAddr != "" {
		notifiers = append(notifiers, notify.NewSMTPNotifier(cfg.SMTPAddr, cfg.MailFrom, cfg.MailTo))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{URL: cfg.WebhookURL}, logger))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
