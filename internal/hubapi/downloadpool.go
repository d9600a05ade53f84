package hubapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/retry"
)

// Errors mirroring the teacher's connection-pool error taxonomy
// (internal/ldap.ErrPoolClosed, ErrConnectionTimeout), adapted from LDAP
// connection leasing to bounded outbound HTTP client leasing for the
// download verb (spec §4.I "download": "Server-side GET of uri").
var (
	ErrPoolClosed        = errors.New("hubapi: download pool is closed")
	ErrConnectionTimeout = errors.New("hubapi: timeout acquiring download client")
)

// DownloadPoolConfig bounds concurrent outbound fetches the same way the
// teacher's PoolConfig bounds concurrent LDAP connections.
type DownloadPoolConfig struct {
	MaxConcurrent  int
	AcquireTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultDownloadPoolConfig mirrors the teacher's DefaultPoolConfig
// defaults, scaled to HTTP fetch workloads.
func DefaultDownloadPoolConfig() DownloadPoolConfig {
	return DownloadPoolConfig{
		MaxConcurrent:  10,
		AcquireTimeout: 10 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// DownloadPool leases a shared *http.Client under a bounded semaphore, the
// same "acquire from a fixed-capacity pool, release when done" discipline
// as internal/ldap.ConnectionPool, adapted from pooling authenticated LDAP
// binds to pooling an outbound transport for the hub data API's download
// verb.
type DownloadPool struct {
	config DownloadPoolConfig
	client *http.Client
	tokens chan struct{}
	closed int32

	acquired int64
	failed   int64
}

// NewDownloadPool constructs a pool sharing one *http.Transport across
// config.MaxConcurrent concurrent outbound requests.
func NewDownloadPool(config DownloadPoolConfig) *DownloadPool {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 10 * time.Second
	}

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxConcurrent,
		MaxIdleConnsPerHost: config.MaxConcurrent,
		IdleConnTimeout:     90 * time.Second,
	}

	p := &DownloadPool{
		config: config,
		client: &http.Client{Transport: transport, Timeout: config.RequestTimeout},
		tokens: make(chan struct{}, config.MaxConcurrent),
	}

	for i := 0; i < config.MaxConcurrent; i++ {
		p.tokens <- struct{}{}
	}

	return p
}

// SetClient overrides the pool's HTTP client, e.g. to disable TLS
// verification for a development deployment (internal/web wires this from
// options.Opts.TLSSkipVerify). Not safe to call concurrently with Fetch.
func (p *DownloadPool) SetClient(c *http.Client) { p.client = c }

// Fetch acquires a slot, performs a GET against uri, and streams the body
// into w, invoking onChunk after every read for progress tracking (spec
// §4.I "streaming into the destination with per-chunk progress records").
func (p *DownloadPool) Fetch(ctx context.Context, uri string, w io.Writer, maxBytes int64, onChunk func(n int64)) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return ErrPoolClosed
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()

	select {
	case <-p.tokens:
	case <-acquireCtx.Done():
		atomic.AddInt64(&p.failed, 1)

		return ErrConnectionTimeout
	}

	defer func() { p.tokens <- struct{}{} }()

	atomic.AddInt64(&p.acquired, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		atomic.AddInt64(&p.failed, 1)

		return err
	}

	// Transient transport failures (connection reset, dial timeout) get a
	// bounded retry with backoff; the request has no body, so resending it
	// is always safe.
	resp, err := retry.DoWithResultConfig(ctx, retry.DownloadConfig(), func() (*http.Response, error) {
		return p.client.Do(req)
	})
	if err != nil {
		atomic.AddInt64(&p.failed, 1)

		log.Warn().Err(err).Str("uri", uri).Msg("hub data API: download fetch failed")

		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		atomic.AddInt64(&p.failed, 1)

		return fmt.Errorf("hubapi: download: upstream status %s", resp.Status)
	}

	var total int64

	buf := make([]byte, 32*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if maxBytes > 0 && total > maxBytes {
				return errors.New("hubapi: download exceeds max_post_size")
			}

			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}

			if onChunk != nil {
				onChunk(int64(n))
			}
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			return readErr
		}
	}
}

// Close shuts the pool down; subsequent Fetch calls return ErrPoolClosed.
func (p *DownloadPool) Close() error {
	atomic.StoreInt32(&p.closed, 1)

	return nil
}

// Stats mirrors the teacher's PoolStats for observability parity.
type Stats struct {
	MaxConcurrent int
	InFlight      int
	Acquired      int64
	Failed        int64
}

// GetStats reports current pool utilization.
func (p *DownloadPool) GetStats() Stats {
	return Stats{
		MaxConcurrent: p.config.MaxConcurrent,
		InFlight:      p.config.MaxConcurrent - len(p.tokens),
		Acquired:      atomic.LoadInt64(&p.acquired),
		Failed:        atomic.LoadInt64(&p.failed),
	}
}
