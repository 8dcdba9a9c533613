// Package nats is the notification transport: fire-and-forget publishes
// of ledger updates (and mirrored log records) to NATS subjects.
// Duplicate suppression is the pipeline's job, not the transport's.
package nats

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/earlybird-ai/finledger/internal/infrastructure/resilience"
)

type Publisher struct {
	conn     *nats.Conn
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string) (*Publisher, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("finledger"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		executor: options.ResilienceExecutor,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := p.conn.Publish(topic, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}
