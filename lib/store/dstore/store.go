package dstore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl talks to the record state machine of one raft shard through a
// Dragonboat NodeHost.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	closed  atomic.Bool
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The NodeHost is owned by the caller; Close does not stop it.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Raft requests
// --------------------------------------------------------------------------

// withRetry runs fn with a fresh timeout until it succeeds, fails with
// something other than ErrSystemBusy, or the retries are used up. The wait
// between attempts doubles, starting at a tenth of the timeout.
func (s *storeImpl) withRetry(op string, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "distributed store is closed")
	}
	wait := s.timeout / 10
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := fn(ctx)
		cancel()
		if !errors.Is(err, dragonboat.ErrSystemBusy) {
			return err
		}
		if attempt == retries {
			return store.Errorf(store.RetCInternalError, "%s: shard %d still busy after %d attempts", op, s.shardID, retries)
		}
		log.Infof("%s: shard %d busy, retrying in %s (%d/%d)", op, s.shardID, wait, attempt, retries)
		time.Sleep(wait)
		wait *= 2
	}
}

// propose replicates cmd and maps the state machine result to a store error.
func (s *storeImpl) propose(cmd internal.Command) error {
	return s.withRetry("propose "+cmd.Type.String(), func(ctx context.Context) error {
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		if err != nil {
			if errors.Is(err, dragonboat.ErrSystemBusy) {
				return err
			}
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	})
}

// query runs a linearizable read and asserts the result type.
func query[R any](s *storeImpl, q internal.Query) (R, error) {
	var out R
	err := s.withRetry("read "+q.Type.String(), func(ctx context.Context) error {
		res, err := s.nh.SyncRead(ctx, s.shardID, q)
		if err != nil {
			var se *store.Error
			switch {
			case errors.Is(err, dragonboat.ErrSystemBusy), errors.As(err, &se):
				return err
			default:
				return store.NewError(store.RetCInternalError, err.Error())
			}
		}
		v, ok := res.(R)
		if !ok {
			return store.Errorf(store.RetCInternalError, "state machine returned %T for %s, expected %T", res, q.Type, out)
		}
		out = v
		return nil
	})
	return out, err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	return s.propose(internal.Command{
		Type:  internal.CommandTSet,
		Key:   key,
		Value: value,
	})
}

func (s *storeImpl) Delete(key string) error {
	return s.propose(internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	res, err := query[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	return query[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	})
}

func (s *storeImpl) Keys() ([]string, error) {
	return query[[]string](s, internal.Query{
		Type: internal.QueryTKeys,
	})
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	return nil
}
