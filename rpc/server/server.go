package server

import (
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/rpc/common"
	"github.com/ValentinKolb/dStats/rpc/serializer"
	"github.com/ValentinKolb/dStats/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server hosting one master per configured shard.
// codec decodes the values inside sync messages and encodes query results.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//		values.NewCodec(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	codec *tree.Codec,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		codec:      codec,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves the masters of all configured shards over one transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	codec      *tree.Codec
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost

	closeOnce sync.Once
	closeErr  error
}

// handle processes one serialized request for a shard and returns the
// serialized response.
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		respMsg = shard.Adapter.Handle(&msg, shard.Master)
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dstats_rpc_requests_total{type=%q}`, msg.MsgType)).Inc()

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	/*
		Note: A single RPC Server can host any number of masters. Each shard has
		its own key schema and backing store. Only replicated shards need the
		Dragonboat NodeHost, so it is only created if one is configured.
	*/

	if s.config.HasRaftShard() {
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("duplicate shard id %d", shardConfig.ShardID)
		}
		shard, err := s.openShard(shardConfig, s.nodeHost)
		if err != nil {
			return err
		}
		s.shards.Store(shardConfig.ShardID, shard)
		Logger.Infof("created master for shard %s", shardConfig)
	}

	Logger.Infof("dStats setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// Serve initializes the shards and starts the transport layer. It blocks
// until the transport stops. Shards that were opened stay open until Close.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return errors.Join(err, s.Close())
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and closes every master and its store.
// It is safe to call Close more than once.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		errs := []error{s.transport.Close()}
		s.shards.Range(func(id uint64, shard serverShard) bool {
			if err := shard.close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close shard %d: %w", id, err))
			}
			return true
		})
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
