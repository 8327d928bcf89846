package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	grpcServiceName = "webbridge.channel.v1.Bridge"
	grpcExchange    = "/" + grpcServiceName + "/Exchange"
)

// BridgeServer receives renderer connections made through DialGRPC.
type BridgeServer interface {
	// Accept takes ownership of a new channel. The RPC stays open until the
	// channel is closed.
	Accept(ch Channel)
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*BridgeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "webbridge/channel/v1/bridge.proto",
}

type grpcServerBinding struct {
	srv  BridgeServer
	opts []Option
}

// ServerOptions sizes a grpc.Server's message limits for frames of up to maxFrameBytes.
func ServerOptions(maxFrameBytes int) []grpc.ServerOption {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxFrameBytes + 64),
		grpc.MaxSendMsgSize(maxFrameBytes + 64),
	}
}

// RegisterBridgeServer exposes the bidirectional Exchange stream on s.
func RegisterBridgeServer(s *grpc.Server, srv BridgeServer, opts ...Option) {
	s.RegisterService(&bridgeServiceDesc, &grpcServerBinding{srv: srv, opts: opts})
}

// Accept satisfies BridgeServer so the binding passes grpc's handler type check.
func (b *grpcServerBinding) Accept(ch Channel) { b.srv.Accept(ch) }

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	b := srv.(*grpcServerBinding)
	ch := newGRPC(stream, nil, b.opts...)
	b.srv.Accept(ch)

	select {
	case <-ch.Done():
	case <-stream.Context().Done():
		ch.Close()
	}
	return nil
}

// msgStream is the part of grpc.ClientStream and grpc.ServerStream we use.
type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
	Context() context.Context
}

// GRPC carries one frame per wrapperspb.BytesValue message over a bidi stream.
type GRPC struct {
	opts   options
	inbox  *mailbox
	stream msgStream
	conn   *grpc.ClientConn
	cancel context.CancelFunc

	wmu  sync.Mutex
	once sync.Once
}

func newGRPC(stream msgStream, conn *grpc.ClientConn, opts ...Option) *GRPC {
	g := &GRPC{
		opts:   buildOptions(opts),
		inbox:  newMailbox(),
		stream: stream,
		conn:   conn,
	}
	go g.readLoop()
	return g
}

// DialGRPC opens the Exchange stream on a bridge server at target.
func DialGRPC(ctx context.Context, target string, opts ...Option) (*GRPC, error) {
	o := buildOptions(opts)
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(o.maxFrameBytes+64),
			grpc.MaxCallSendMsgSize(o.maxFrameBytes+64),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}

	// The stream outlives the dial context, so it gets its own.
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := conn.NewStream(streamCtx, &bridgeServiceDesc.Streams[0], grpcExchange)
	stop()
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("failed to open exchange stream: %w", err)
	}

	g := newGRPC(stream, conn, opts...)
	g.cancel = cancel
	return g, nil
}

func (g *GRPC) readLoop() {
	for {
		msg := new(wrapperspb.BytesValue)
		if err := g.stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				g.inbox.shut(ErrClosed)
			} else {
				g.opts.logger.Debug("gRPC reader stopped", zap.Error(err))
				g.inbox.shut(err)
			}
			return
		}
		if env, ok := g.opts.decode(msg.GetValue()); ok {
			g.inbox.deliver(env)
		}
	}
}

// Send writes one frame as a BytesValue message.
func (g *GRPC) Send(env protocol.Envelope) error {
	if g.inbox.closed() {
		return ErrClosed
	}
	data, err := g.opts.encode(env)
	if err != nil {
		return err
	}

	g.wmu.Lock()
	err = g.stream.SendMsg(wrapperspb.Bytes(data))
	g.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	g.opts.sent(env.Message.Tag())
	return nil
}

func (g *GRPC) Recv(ctx context.Context) (protocol.Envelope, error) {
	return g.inbox.recv(ctx)
}

func (g *GRPC) Done() <-chan struct{} {
	return g.inbox.done
}

// Close ends the stream. On the dialing side it also closes the connection.
func (g *GRPC) Close() error {
	var err error
	g.once.Do(func() {
		g.inbox.shut(ErrClosed)
		if cs, ok := g.stream.(grpc.ClientStream); ok {
			g.wmu.Lock()
			cs.CloseSend()
			g.wmu.Unlock()
		}
		if g.cancel != nil {
			g.cancel()
		}
		if g.conn != nil {
			err = g.conn.Close()
		}
	})
	return err
}
