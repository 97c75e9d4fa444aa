package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	listenRetryInitial = time.Second
	listenRetryMax     = 30 * time.Second
)

type notificationSource interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// listenConn es la conexión dedicada al LISTEN.
type listenConn interface {
	notificationSource
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Release()
}

type acquireFunc func(ctx context.Context) (listenConn, error)

// pooledListenConn adapta *pgxpool.Conn a listenConn.
type pooledListenConn struct {
	conn *pgxpool.Conn
}

func (pooled pooledListenConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pooled.conn.Exec(ctx, sql, arguments...)
}

func (pooled pooledListenConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return pooled.conn.Conn().WaitForNotification(ctx)
}

func (pooled pooledListenConn) Release() {
	pooled.conn.Release()
}

// Listen toma una conexión dedicada del pool, ejecuta LISTEN y reenvía cada
// notificación a los suscriptores locales. Así varios procesos que comparten
// la misma DB ven las escrituras de los demás.
// Si la conexión se cae, reconecta con backoff. Bloquea hasta que ctx termina.
func (postgres *Postgres) Listen(ctx context.Context, pool *pgxpool.Pool) error {
	return postgres.listen(ctx, func(ctx context.Context) (listenConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledListenConn{conn: conn}, nil
	})
}

func (postgres *Postgres) listen(ctx context.Context, acquire acquireFunc) error {
	delay := postgres.listenRetry
	for {
		subscribed, err := postgres.listenOnce(ctx, acquire)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = postgres.listenRetry
		}

		postgres.logger.Warn("listen connection lost, retrying",
			zap.String("channel", ChangeChannel),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, listenRetryMax)
	}
}

// listenOnce devuelve subscribed=true si llegó a ejecutar LISTEN.
func (postgres *Postgres) listenOnce(ctx context.Context, acquire acquireFunc) (bool, error) {
	conn, err := acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return false, fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}
	postgres.logger.Info("listening for table changes", zap.String("channel", ChangeChannel))

	// Sin LISTEN pudimos perder cambios de otros procesos: forzamos una relectura.
	postgres.feed.publish()

	return true, postgres.relay(ctx, conn)
}

func (postgres *Postgres) relay(ctx context.Context, source notificationSource) error {
	for {
		notification, err := source.WaitForNotification(ctx)
		if err != nil {
			// Cancelar ctx es la forma normal de cortar el loop.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		postgres.logger.Debug("table change notification",
			zap.String("channel", notification.Channel),
			zap.Uint32("pid", notification.PID),
		)
		postgres.feed.publish()
	}
}
