package etcd

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Lease is the part of the etcd client a lease-backed presence key needs.
// *clientv3.Client satisfies it.
type Lease interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

var _ Lease = (*clientv3.Client)(nil)
