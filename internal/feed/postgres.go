package feed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/matheus3301/freightdesk/internal/status"
	"go.uber.org/zap"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// PostgresListener holds a dedicated connection on LISTEN message_changes and
// republishes every notification through a Publisher. It reconnects with
// exponential backoff and reports its progress on the status machine.
type PostgresListener struct {
	databaseURL string
	publisher   *Publisher
	machine     *status.Machine
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewPostgresListener creates a listener. It does not connect until Start.
func NewPostgresListener(databaseURL string, p *Publisher, m *status.Machine, logger *zap.Logger) *PostgresListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresListener{
		databaseURL: databaseURL,
		publisher:   p,
		machine:     m,
		logger:      logger,
	}
}

// Start begins listening in the background.
func (l *PostgresListener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.loop(ctx)
}

// Stop closes the connection and waits for the loop to exit.
func (l *PostgresListener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *PostgresListener) loop(ctx context.Context) {
	defer close(l.done)
	backoff := minBackoff
	for {
		_ = l.machine.Transition(status.Connecting)
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("change feed connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		_ = l.machine.Transition(status.Reconnecting)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *PostgresListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	if err := l.machine.Transition(status.Ready); err != nil {
		l.logger.Debug("status transition skipped", zap.Error(err))
	}
	l.logger.Info("change feed listening", zap.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := DecodeChange([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("dropping malformed notification", zap.Error(err), zap.String("payload", n.Payload))
			continue
		}
		l.publisher.Notify(c)
	}
}
