// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package pluginsdk

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mpps/mpps/pkg/plugin"
)

// Worker service identifiers on the wire.
const (
	WorkerServiceName = "mpps.plugin.v1.Worker"
	runMethod         = "/" + WorkerServiceName + "/Run"
)

// Message field names inside the wire Struct. Content travels base64
// encoded: it is an opaque payload and Struct strings must be valid UTF-8.
const (
	fieldID      = "id"
	fieldStatus  = "status"
	fieldContent = "content"
	fieldIssuer  = "issuer"
)

// WorkerServer is served by the worker process.
type WorkerServer interface {
	// Run starts the worker and streams its messages until the worker
	// returns and its queue is drained.
	Run(req *emptypb.Empty, stream MessageSender) error
}

// MessageSender is the server side of the Run stream.
type MessageSender interface {
	Send(m plugin.Message) error
	Context() context.Context
}

// WorkerClient is the supervisor's handle on a worker process.
type WorkerClient interface {
	// Run starts the worker and returns its message stream.
	Run(ctx context.Context) (MessageStream, error)
}

// MessageStream is the client side of the Run stream. Recv returns io.EOF
// once the worker is done.
type MessageStream interface {
	Recv() (plugin.Message, error)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkerServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Run",
			Handler:       runHandler,
			ServerStreams: true,
		},
	},
	Metadata: "mpps/plugin/v1/worker.proto",
}

// RegisterWorkerServer registers srv with a gRPC server.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

func runHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WorkerServer).Run(in, &messageSender{ServerStream: stream})
}

type messageSender struct {
	grpc.ServerStream
}

func (s *messageSender) Send(m plugin.Message) error {
	st, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return s.SendMsg(st)
}

type workerClient struct {
	cc     grpc.ClientConnInterface
	logger *slog.Logger
}

// ClientOption configures a WorkerClient.
type ClientOption func(*workerClient)

// WithClientLogger sets the logger that reports protocol violations.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *workerClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewWorkerClient returns a WorkerClient backed by cc.
func NewWorkerClient(cc grpc.ClientConnInterface, opts ...ClientOption) WorkerClient {
	c := &workerClient{cc: cc, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *workerClient) Run(ctx context.Context) (MessageStream, error) {
	stream, err := c.cc.NewStream(ctx, &workerServiceDesc.Streams[0], runMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &messageStream{ClientStream: stream, logger: c.logger}, nil
}

type messageStream struct {
	grpc.ClientStream
	logger *slog.Logger
}

func (s *messageStream) Recv() (plugin.Message, error) {
	st := new(structpb.Struct)
	if err := s.RecvMsg(st); err != nil {
		return plugin.Message{}, err
	}
	m, ok := DecodeMessage(st)
	if !ok {
		s.logger.Warn("worker protocol violation",
			"plugin", m.Issuer,
			"status", st.GetFields()[fieldStatus].GetStringValue(),
			"reason", m.Content)
	}
	return m, nil
}

// EncodeMessage converts m to its wire form.
func EncodeMessage(m plugin.Message) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]any{
		fieldID:      m.ID.String(),
		fieldStatus:  string(m.Status),
		fieldContent: base64.StdEncoding.EncodeToString([]byte(m.Content)),
		fieldIssuer:  m.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return st, nil
}

// DecodeMessage converts a wire Struct to a Message. A status outside the
// vocabulary or content that is not base64 is a protocol violation: the
// message is replaced by an error message from the same issuer and ok is
// false.
func DecodeMessage(st *structpb.Struct) (m plugin.Message, ok bool) {
	fields := st.GetFields()
	m.Issuer = fields[fieldIssuer].GetStringValue()
	if id, err := ulid.Parse(fields[fieldID].GetStringValue()); err == nil {
		m.ID = id
	}

	raw := fields[fieldStatus].GetStringValue()
	status, err := plugin.ParseStatus(raw)
	if err != nil {
		m.Status = plugin.StatusError
		m.Content = fmt.Sprintf("protocol violation: %v", err)
		return m, false
	}
	content, err := base64.StdEncoding.DecodeString(fields[fieldContent].GetStringValue())
	if err != nil {
		m.Status = plugin.StatusError
		m.Content = fmt.Sprintf("protocol violation: content is not base64: %v", err)
		return m, false
	}
	m.Status = status
	m.Content = string(content)
	return m, true
}
