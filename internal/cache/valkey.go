package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

func (cfg *ValkeyConfig) applyDefaults() {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

// Valkey implements Provider over a plain RESP connection. Each operation
// dials, runs one command, and closes; a batch tool issues a handful of
// commands per run, so connection pooling earns nothing here.
type Valkey struct {
	cfg ValkeyConfig
}

// NewValkey creates a provider and pings the server once so bad credentials
// or connectivity fail at startup instead of mid-run.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	cfg.applyDefaults()
	v := &Valkey{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := v.ping(ctx); err != nil {
		return nil, fmt.Errorf("valkey ping %s: %w", cfg.Addr, err)
	}
	return v, nil
}

// Get fetches bytes by key, returning ErrMiss when the key is absent.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := v.do(ctx, func(c *conn) error {
		if err := c.send("GET", key); err != nil {
			return err
		}
		data, isNil, err := c.readBulk()
		if err != nil {
			return err
		}
		if isNil {
			return ErrMiss
		}
		payload = data
		return nil
	})
	return payload, err
}

// Set stores bytes under key. A non-zero ttl becomes a PX expiry.
func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return v.do(ctx, func(c *conn) error {
		if err := c.send(setArgs(key, value, ttl, false)...); err != nil {
			return err
		}
		return c.expectOK("SET")
	})
}

// SetNX stores the value only if the key does not already exist. It reports
// whether the write happened.
func (v *Valkey) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := v.do(ctx, func(c *conn) error {
		if err := c.send(setArgs(key, value, ttl, true)...); err != nil {
			return err
		}
		line, isNil, err := c.readSimpleOrNil()
		if err != nil {
			return err
		}
		ok = !isNil && strings.EqualFold(line, "OK")
		return nil
	})
	return ok, err
}

// Del removes a key.
func (v *Valkey) Del(ctx context.Context, key string) error {
	return v.do(ctx, func(c *conn) error {
		if err := c.send("DEL", key); err != nil {
			return err
		}
		_, _, err := c.readSimpleOrNil()
		return err
	})
}

// Close is a no-op; connections are per-operation.
func (v *Valkey) Close() error { return nil }

func (v *Valkey) ping(ctx context.Context) error {
	return v.do(ctx, func(c *conn) error {
		if err := c.send("PING"); err != nil {
			return err
		}
		line, _, err := c.readSimpleOrNil()
		if err != nil {
			return err
		}
		if !strings.EqualFold(line, "PONG") {
			return fmt.Errorf("unexpected PING reply %q", line)
		}
		return nil
	})
}

func setArgs(key string, value []byte, ttl time.Duration, nx bool) []string {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	if nx {
		args = append(args, "NX")
	}
	return args
}

func (v *Valkey) do(ctx context.Context, fn func(*conn) error) error {
	var lastErr error
	for attempt := 0; attempt < v.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := v.dial(ctx)
		if err == nil {
			err = fn(c)
			c.close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if !retryable(err) || attempt == v.cfg.MaxRetries-1 {
			return err
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return lastErr
}

func (v *Valkey) dial(ctx context.Context) (*conn, error) {
	dialer := net.Dialer{Timeout: v.cfg.DialTimeout}
	var (
		nc  net.Conn
		err error
	)
	if v.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(v.cfg.Addr)
		if splitErr != nil {
			host = v.cfg.Addr
		}
		nc, err = tls.DialWithDialer(&dialer, "tcp", v.cfg.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", v.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	c := &conn{
		nc:           nc,
		r:            bufio.NewReader(nc),
		w:            bufio.NewWriter(nc),
		readTimeout:  v.cfg.ReadTimeout,
		writeTimeout: v.cfg.WriteTimeout,
	}
	if err := c.handshake(v.cfg); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// conn wraps one network connection with the RESP read/write helpers the
// provider needs.
type conn struct {
	nc           net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *conn) close() { _ = c.nc.Close() }

func (c *conn) handshake(cfg ValkeyConfig) error {
	if cfg.Password != "" {
		args := []string{"AUTH", cfg.Password}
		if cfg.Username != "" {
			args = []string{"AUTH", cfg.Username, cfg.Password}
		}
		if err := c.send(args...); err != nil {
			return err
		}
		if err := c.expectOK("AUTH"); err != nil {
			return err
		}
	}
	if cfg.DB > 0 {
		if err := c.send("SELECT", strconv.Itoa(cfg.DB)); err != nil {
			return err
		}
		if err := c.expectOK("SELECT"); err != nil {
			return err
		}
	}
	return nil
}

// send writes one command as a RESP array of bulk strings.
func (c *conn) send(args ...string) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	fmt.Fprintf(c.w, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(c.w, "$%d\r\n%s\r\n", len(arg), arg)
	}
	return c.w.Flush()
}

// readSimpleOrNil consumes one reply, expecting a simple string, integer, or
// nil. Server errors come back as Go errors.
func (c *conn) readSimpleOrNil() (string, bool, error) {
	prefix, line, err := c.readHeader()
	if err != nil {
		return "", false, err
	}
	switch prefix {
	case '+', ':':
		return line, false, nil
	case '$':
		size, err := strconv.Atoi(line)
		if err != nil {
			return "", false, err
		}
		if size < 0 {
			return "", true, nil
		}
		data, err := c.readPayload(size)
		return string(data), false, err
	default:
		return "", false, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

// readBulk consumes one reply, expecting a bulk string or nil.
func (c *conn) readBulk() ([]byte, bool, error) {
	prefix, line, err := c.readHeader()
	if err != nil {
		return nil, false, err
	}
	if prefix != '$' {
		return nil, false, fmt.Errorf("expected bulk string, got prefix %q", prefix)
	}
	size, err := strconv.Atoi(line)
	if err != nil {
		return nil, false, err
	}
	if size < 0 {
		return nil, true, nil
	}
	data, err := c.readPayload(size)
	return data, false, err
}

func (c *conn) expectOK(op string) error {
	line, _, err := c.readSimpleOrNil()
	if err != nil {
		return err
	}
	if !strings.EqualFold(line, "OK") {
		return fmt.Errorf("unexpected %s reply %q", op, line)
	}
	return nil
}

// readHeader reads the type prefix and the first line of a reply.
func (c *conn) readHeader() (byte, string, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return 0, "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return 0, "", errors.New("empty RESP line")
	}
	if line[0] == '-' {
		return 0, "", errors.New(line[1:])
	}
	return line[0], line[1:], nil
}

func (c *conn) readPayload(size int) ([]byte, error) {
	buf := make([]byte, size+2)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	if buf[size] != '\r' || buf[size+1] != '\n' {
		return nil, errors.New("malformed bulk string terminator")
	}
	return buf[:size], nil
}
