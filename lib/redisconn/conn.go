// Package redisconn implements pool connections on top of go-redis. Each
// Conn owns a single-connection go-redis client and pins its one network
// connection, so database selection and MULTI state stay with the Conn.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/bdrosen96/aioredis/lib/errors"
	"github.com/bdrosen96/aioredis/lib/pool"
	"github.com/bdrosen96/aioredis/lib/validation"
)

var (
	// ErrConnClosed is returned by commands issued on a closed Conn.
	ErrConnClosed = fmt.Errorf("redisconn: connection %w", apperrors.ErrClosed)
	// ErrUnsupportedCommand is returned by Do for commands that change
	// connection state behind the Conn's back.
	ErrUnsupportedCommand = fmt.Errorf("redisconn: unsupported command: %w", apperrors.ErrInvalidInput)
	// ErrTransactionState is returned by Multi, Exec and Discard when
	// called in the wrong transaction state.
	ErrTransactionState = fmt.Errorf("redisconn: %w", apperrors.ErrInvalidState)
)

// Conn is one Redis connection. It satisfies pool.Conn.
type Conn struct {
	id       uuid.UUID
	address  string
	encoding string
	decode   decoder

	client *redis.Client
	conn   *redis.Conn

	mu     sync.Mutex
	db     int
	inTx   bool
	closed bool
	done   chan struct{}
}

var _ pool.Conn = (*Conn)(nil)

// Dial is a pool.Factory.
func Dial(ctx context.Context, opts pool.DialOptions) (pool.Conn, error) {
	c, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Open connects to opts.Address, authenticates, selects opts.DB and checks
// the connection with PING.
func Open(ctx context.Context, opts pool.DialOptions) (*Conn, error) {
	decode, err := newDecoder(opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, apperrors.ErrInvalidInput)
	}

	network, addr := "tcp", opts.Address
	if path, ok := validation.UnixPath(opts.Address); ok {
		network, addr = "unix", path
	}

	client := redis.NewClient(&redis.Options{
		Network:  network,
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
		Protocol: 2,
		PoolSize: 1,
		// Failures surface to the caller; the pool decides what to do.
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	rc := client.Conn()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		client.Close()
		return nil, fmt.Errorf("redisconn: dial %s: %w: %w", opts.Address, apperrors.ErrConnection, err)
	}

	c := &Conn{
		id:       uuid.New(),
		address:  opts.Address,
		encoding: opts.Encoding,
		decode:   decode,
		client:   client,
		conn:     rc,
		db:       opts.DB,
		done:     make(chan struct{}),
	}
	log.WithField("id", c.id.String()).
		WithField("address", opts.Address).
		WithField("db", opts.DB).
		Debug("redis connection established")
	return c, nil
}

// ID returns the connection's unique id.
func (c *Conn) ID() string {
	return c.id.String()
}

// Address returns the server address the connection was dialed with.
func (c *Conn) Address() string {
	return c.address
}

// Encoding returns the configured codec name.
func (c *Conn) Encoding() string {
	return c.encoding
}

func (c *Conn) String() string {
	return fmt.Sprintf("redisconn(%s %s db=%d)", c.id.String()[:8], c.address, c.DB())
}

// DB returns the selected database.
func (c *Conn) DB() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// InTransaction reports whether MULTI was issued without EXEC or DISCARD.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// Closed reports whether the connection was closed or broke.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close starts closing the connection and returns immediately.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	go func() {
		defer close(c.done)
		err := errors.Join(c.conn.Close(), c.client.Close())
		if err != nil && !errors.Is(err, redis.ErrClosed) {
			log.WithError(err).WithField("id", c.id.String()).Debug("error tearing down redis connection")
		}
	}()
}

// WaitClosed blocks until the network connection is torn down.
func (c *Conn) WaitClosed(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Select switches the connection to db.
func (c *Conn) Select(ctx context.Context, db int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.inTx {
		return fmt.Errorf("%w: select inside a transaction", ErrTransactionState)
	}
	if err := c.conn.Select(ctx, db).Err(); err != nil {
		c.checkLocked(err)
		return fmt.Errorf("redisconn: select %d: %w", db, err)
	}
	c.db = db
	return nil
}

// Ping sends PING.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "PING")
	return err
}

// Do sends a command and returns its reply. Bulk strings are returned as
// []byte, or decoded to string when an encoding is configured. A nil reply
// yields (nil, nil). Commands that would desync the tracked state (MULTI,
// EXEC, DISCARD, SELECT) are rejected; use the dedicated methods.
func (c *Conn) Do(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("redisconn: empty command: %w", apperrors.ErrInvalidInput)
	}
	if name, ok := args[0].(string); ok {
		switch strings.ToUpper(name) {
		case "MULTI", "EXEC", "DISCARD", "SELECT":
			return nil, fmt.Errorf("%w %s", ErrUnsupportedCommand, name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doLocked(ctx, args...)
}

func (c *Conn) doLocked(ctx context.Context, args ...any) (any, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	cmd := redis.NewCmd(ctx, args...)
	if err := c.conn.Process(ctx, cmd); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.checkLocked(err)
		return nil, err
	}
	return c.decode.decode(cmd.Val())
}

// Multi starts a transaction. Commands sent with Do until Exec or Discard
// are queued by the server.
func (c *Conn) Multi(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx {
		return fmt.Errorf("%w: MULTI calls can not be nested", ErrTransactionState)
	}
	if _, err := c.doLocked(ctx, "MULTI"); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

// Exec runs the queued commands and returns their replies.
func (c *Conn) Exec(ctx context.Context) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inTx {
		return nil, fmt.Errorf("%w: EXEC without MULTI", ErrTransactionState)
	}
	v, err := c.doLocked(ctx, "EXEC")
	c.endTxLocked(err)
	if err != nil {
		return nil, err
	}
	replies, _ := v.([]any)
	return replies, nil
}

// Discard drops the queued commands.
func (c *Conn) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inTx {
		return fmt.Errorf("%w: DISCARD without MULTI", ErrTransactionState)
	}
	_, err := c.doLocked(ctx, "DISCARD")
	c.endTxLocked(err)
	return err
}

// endTxLocked ends the transaction once the server answered. A transport
// failure leaves the connection closed, which ends it as well.
func (c *Conn) endTxLocked(err error) {
	if err == nil || isServerError(err) {
		c.inTx = false
	}
}

// checkLocked closes the connection after a failure that leaves the
// protocol stream in an unknown state.
func (c *Conn) checkLocked(err error) {
	if isServerError(err) {
		return
	}
	log.WithError(err).WithField("id", c.id.String()).Debug("closing broken redis connection")
	c.closeLocked()
}

func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}
