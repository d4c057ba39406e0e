// Package keepalive периодически опрашивает публичный URL сервиса,
// чтобы хостинг с автоусыплением не останавливал инстанс.
package keepalive

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const pingInterval = 14 * time.Minute

// Pinger выполняет периодические самопинги сервиса.
type Pinger struct {
	url      string
	interval time.Duration
	client   *retryablehttp.Client
	logger   *zap.Logger
}

// NewPinger создаёт новый Pinger. Пустой url означает, что пинги отключены.
func NewPinger(url string, logger *zap.Logger) *Pinger {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &Pinger{
		url:      url,
		interval: pingInterval,
		client:   client,
		logger:   logger,
	}
}

// Run запускает цикл пингов до отмены контекста.
func (p *Pinger) Run(ctx context.Context) error {
	if p.url == "" {
		p.logger.Info("keepalive disabled, no URL configured")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("keepalive request", zap.Error(err))
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("keepalive ping failed", zap.String("url", p.url), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	p.logger.Debug("keepalive ping", zap.Int("status", resp.StatusCode))
}
