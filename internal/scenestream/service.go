package scenestream

import (
	"context"
	"fmt"

	"github.com/banshee-data/pathview/internal/scene"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pathview.SceneService"

// StreamScenePath is the full method name of the frame stream.
const StreamScenePath = "/" + ServiceName + "/StreamScene"

// SceneServiceServer is the server API of the scene service.
type SceneServiceServer interface {
	// StreamScene sends rendered frames until the client goes away. The
	// request may carry "tags" (list of object tags to include) and
	// "max_frames" (stop after that many frames).
	StreamScene(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the scene service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SceneServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamScene",
			Handler:       streamSceneHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pathview/scene.proto",
}

func streamSceneHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(SceneServiceServer).StreamScene(req, stream)
}

// Request is the decoded form of a StreamScene request.
type Request struct {
	Tags      []scene.Tag
	MaxFrames int
}

// NewRequest encodes a StreamScene request.
func NewRequest(r Request) (*structpb.Struct, error) {
	fields := map[string]interface{}{}
	if len(r.Tags) > 0 {
		tags := make([]interface{}, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = string(t)
		}
		fields["tags"] = tags
	}
	if r.MaxFrames > 0 {
		fields["max_frames"] = float64(r.MaxFrames)
	}
	return structpb.NewStruct(fields)
}

// ParseRequest decodes and validates a StreamScene request.
func ParseRequest(req *structpb.Struct) (Request, error) {
	var r Request
	if req == nil {
		return r, nil
	}
	for k, v := range req.GetFields() {
		switch k {
		case "tags":
			list := v.GetListValue()
			if list == nil {
				return r, fmt.Errorf("tags must be a list")
			}
			for _, t := range list.GetValues() {
				s, ok := t.GetKind().(*structpb.Value_StringValue)
				if !ok {
					return r, fmt.Errorf("tags must be strings")
				}
				r.Tags = append(r.Tags, scene.Tag(s.StringValue))
			}
		case "max_frames":
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok || n.NumberValue < 0 || n.NumberValue != float64(int(n.NumberValue)) {
				return r, fmt.Errorf("max_frames must be a non-negative integer")
			}
			r.MaxFrames = int(n.NumberValue)
		default:
			return r, fmt.Errorf("unknown request field %q", k)
		}
	}
	return r, nil
}

type server struct {
	publisher *Publisher
}

// StreamScene implements SceneServiceServer.
func (s *server) StreamScene(req *structpb.Struct, stream grpc.ServerStream) error {
	p := s.publisher
	r, err := ParseRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if !p.running.Load() {
		return status.Error(codes.Unavailable, "publisher not running")
	}

	client := p.addClient()
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "too many clients (max %d)", p.config.MaxClients)
	}
	defer p.removeClient(client.id)

	ctx := stream.Context()
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return status.Error(codes.Unavailable, "server stopping")
		case frame := <-client.frameCh:
			msg, err := FrameToStruct(frame, r.Tags)
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame %d: %v", frame.Number, err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
			p.sentFrames.Add(1)
			sent++
			if r.MaxFrames > 0 && sent >= r.MaxFrames {
				return nil
			}
		}
	}
}

// SceneServiceClient is the client API of the scene service.
type SceneServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSceneServiceClient wraps a client connection.
func NewSceneServiceClient(cc grpc.ClientConnInterface) *SceneServiceClient {
	return &SceneServiceClient{cc: cc}
}

// SceneStream receives frames from StreamScene.
type SceneStream struct {
	grpc.ClientStream
}

// Recv blocks for the next frame.
func (s *SceneStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StreamScene opens a frame stream.
func (c *SceneServiceClient) StreamScene(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*SceneStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamScenePath, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SceneStream{ClientStream: stream}, nil
}
