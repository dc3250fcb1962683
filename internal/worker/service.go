package worker

import (
	"context"
	"errors"
	"time"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/queue"

	"github.com/hibiken/asynq"
)

// ProxyOrderBackuper 代理订单回填能力
type ProxyOrderBackuper interface {
	Backup(ctx context.Context, targetProxy constants.TargetProxy, from, to time.Time) (int, error)
}

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	backup   *backupLoop
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, backupCfg config.BackupConfig, consumer *Consumer, backuper ProxyOrderBackuper) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
		backup:   newBackupLoop(backupCfg, backuper, time.Now),
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.backup != nil {
		go s.backup.run(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// backupLoop 定时将最近窗口内的代理订单回填到本地
type backupLoop struct {
	backuper    ProxyOrderBackuper
	targetProxy constants.TargetProxy
	interval    time.Duration
	window      time.Duration
	now         func() time.Time
}

func newBackupLoop(cfg config.BackupConfig, backuper ProxyOrderBackuper, now func() time.Time) *backupLoop {
	if !cfg.Enabled || backuper == nil {
		return nil
	}
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	window := time.Duration(cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 48 * time.Hour
	}
	targetProxy := constants.TargetProxy(cfg.TargetProxy)
	if targetProxy == "" {
		targetProxy = constants.TargetProxySexytea
	}
	return &backupLoop{
		backuper:    backuper,
		targetProxy: targetProxy,
		interval:    interval,
		window:      window,
		now:         now,
	}
}

func (l *backupLoop) runOnce(ctx context.Context) {
	to := l.now()
	from := to.Add(-l.window)
	inserted, err := l.backuper.Backup(ctx, l.targetProxy, from, to)
	if err != nil {
		logger.Warnw("worker_proxy_order_backup_failed",
			"target_proxy", l.targetProxy,
			"inserted", inserted,
			"error", err,
		)
		return
	}
	logger.Infow("worker_proxy_order_backup_done", "target_proxy", l.targetProxy, "inserted", inserted)
}

func (l *backupLoop) run(ctx context.Context) {
	if l == nil {
		return
	}
	l.runOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}
