package etcd

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	intetcd "github.com/imtaco/room-relay/internal/etcd"
	"github.com/imtaco/room-relay/internal/log"
	"github.com/imtaco/room-relay/internal/retry"
)

// Heartbeat keeps a lease-backed key alive for as long as the process runs.
// When the keep-alive stream ends (lease lost, etcd restarted) the lease and
// the key are recreated with exponential backoff. If the process dies the key
// disappears once the TTL runs out.
type Heartbeat[T any] struct {
	client intetcd.Lease
	key    string
	data   T
	ttl    time.Duration
	retry  retry.Retry

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *log.Logger
}

func New[T any](client intetcd.Lease, key string, data T, ttl time.Duration, logger *log.Logger) *Heartbeat[T] {
	if ttl < time.Second {
		panic("TTL must be at least one second")
	}
	if client == nil || logger == nil {
		panic("client and logger are required")
	}
	return &Heartbeat[T]{
		client: client,
		key:    key,
		data:   data,
		ttl:    ttl,
		retry:  retry.New(logger, 100*time.Millisecond, 10*time.Second, 0),
		logger: logger,
	}
}

func (h *Heartbeat[T]) Key() string {
	return h.key
}

func (h *Heartbeat[T]) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	keepAliveCh, err := h.setup(ctx)
	if err != nil {
		cancel()
		return err
	}
	h.cancel = cancel
	h.done = make(chan struct{})

	h.logger.Info("Heartbeat started",
		log.String("key", h.key),
		log.Duration("ttl", h.ttl))

	go h.monitor(ctx, keepAliveCh)
	return nil
}

// Stop ends the keep-alive loop and revokes the lease, removing the key at once.
func (h *Heartbeat[T]) Stop(ctx context.Context) error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done

	h.mu.Lock()
	leaseID := h.leaseID
	h.leaseID = 0
	h.mu.Unlock()
	if leaseID == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.client.Revoke(ctx, leaseID); err != nil {
		return errors.Wrap(err, "fail to revoke heartbeat lease")
	}
	h.logger.Debug("Heartbeat lease revoked", log.String("key", h.key))
	return nil
}

func (h *Heartbeat[T]) setup(ctx context.Context) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	leaseResp, err := h.client.Grant(ctx, int64(h.ttl.Seconds()))
	if err != nil {
		return nil, errors.Wrapf(err, "fail to grant lease for key: %s", h.key)
	}

	jsonData, err := json.Marshal(h.data)
	if err != nil {
		return nil, errors.Wrap(err, "fail to marshal data")
	}

	if _, err := h.client.Put(ctx, h.key, string(jsonData), clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, errors.Wrapf(err, "fail to put key: %s", h.key)
	}

	keepAliveCh, err := h.client.KeepAlive(ctx, leaseResp.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to start keep-alive for key: %s", h.key)
	}

	h.mu.Lock()
	h.leaseID = leaseResp.ID
	h.mu.Unlock()
	return keepAliveCh, nil
}

func (h *Heartbeat[T]) monitor(ctx context.Context, keepAliveCh <-chan *clientv3.LeaseKeepAliveResponse) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-keepAliveCh:
			if ok && resp != nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("Keep-alive stream ended, recreating lease", log.String("key", h.key))
			next, err := h.recreate(ctx)
			if err != nil {
				// only a cancelled context ends the retry
				return
			}
			keepAliveCh = next
		}
	}
}

func (h *Heartbeat[T]) recreate(ctx context.Context) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	var ch <-chan *clientv3.LeaseKeepAliveResponse
	err := h.retry.Do(ctx, func() error {
		next, err := h.setup(ctx)
		if err != nil {
			return err
		}
		ch = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("Heartbeat lease recreated", log.String("key", h.key))
	return ch, nil
}
