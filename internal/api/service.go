// Package api exposes the sync engine over gRPC. Payloads are
// google.protobuf.Struct values holding the JSON form of the types in this
// package, so the service needs no generated code.
package api

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/pmsync/internal/bus"
	"github.com/matheus3301/pmsync/internal/store"
	intsync "github.com/matheus3301/pmsync/internal/sync"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pmsync.v1.Conversations"

// DefaultSearchLimit caps search results when the request sets none.
const DefaultSearchLimit = 50

// Engine is the part of the sync engine the service exposes.
type Engine interface {
	Status(ctx context.Context) intsync.Status
	Summaries(ctx context.Context) []store.ConversationSummary
	Reconcile(ctx context.Context) ([]store.ConversationSummary, error)
	Open(ctx context.Context, otherID int64) (intsync.Snapshot, error)
	Close()
	Messages() (intsync.Snapshot, error)
	LoadOlder(ctx context.Context) (int, error)
	Send(ctx context.Context, text string) (store.Message, error)
	SendMedia(ctx context.Context, typ store.MessageType, mediaURL, text string) (store.Message, error)
	CanRecall(id int64) bool
	Recall(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	ReEdit(id int64) (string, error)
	MarkRead(ctx context.Context) error
	SetViewing(viewing bool) error
	Search(ctx context.Context, otherID int64, query string, limit int) ([]store.SearchResult, error)
	Clear(ctx context.Context, otherID int64) error
}

var _ Engine = (*intsync.Engine)(nil)

// Service implements pmsync.v1.Conversations.
type Service struct {
	engine  Engine
	bus     *bus.Bus
	profile string
	logger  *zap.Logger
}

// NewService creates the service for one profile.
func NewService(engine Engine, b *bus.Bus, profile string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, bus: b, profile: profile, logger: logger}
}

// Register adds the service to a gRPC server.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&serviceDesc, svc)
}

// conversationsServer is the handler type checked by grpc.RegisterService.
type conversationsServer interface {
	watch(in *structpb.Struct, stream grpc.ServerStream) error
}

type unaryFunc func(s *Service, ctx context.Context, in *structpb.Struct) (any, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				out, err := fn(srv.(*Service), ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				s, err := encode(out)
				if err != nil {
					return nil, grpcstatus.Error(codes.Internal, err.Error())
				}
				return s, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*conversationsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", (*Service).status),
		unary("ListSummaries", (*Service).listSummaries),
		unary("Reconcile", (*Service).reconcile),
		unary("Open", (*Service).open),
		unary("Close", (*Service).close),
		unary("Messages", (*Service).messages),
		unary("LoadOlder", (*Service).loadOlder),
		unary("Send", (*Service).send),
		unary("SendMedia", (*Service).sendMedia),
		unary("Recall", (*Service).recall),
		unary("Delete", (*Service).delete),
		unary("ReEdit", (*Service).reEdit),
		unary("MarkRead", (*Service).markRead),
		unary("SetViewing", (*Service).setViewing),
		unary("Search", (*Service).search),
		unary("Clear", (*Service).clear),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(conversationsServer).watch(in, stream)
			},
		},
	},
	Metadata: "pmsync/v1/conversations.proto",
}

func (s *Service) status(ctx context.Context, _ *structpb.Struct) (any, error) {
	st := s.engine.Status(ctx)
	return Status{
		Profile:          s.profile,
		OwnerID:          st.OwnerID,
		OpenOtherID:      st.OpenOtherID,
		GlobalPush:       string(st.GlobalPush),
		ConversationPush: string(st.ConversationPush),
		Unread:           st.Unread,
		CacheAvailable:   st.Cache.Available,
		CachedMessages:   st.Cache.Messages,
	}, nil
}

func (s *Service) listSummaries(ctx context.Context, _ *structpb.Struct) (any, error) {
	return summariesResponse{Summaries: summariesFromStore(s.engine.Summaries(ctx))}, nil
}

func (s *Service) reconcile(ctx context.Context, _ *structpb.Struct) (any, error) {
	list, err := s.engine.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return summariesResponse{Summaries: summariesFromStore(list)}, nil
}

func (s *Service) open(ctx context.Context, in *structpb.Struct) (any, error) {
	var req otherRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	if req.OtherID <= 0 {
		return nil, invalid("otherId is required")
	}
	snap, err := s.engine.Open(ctx, req.OtherID)
	if err != nil {
		return nil, err
	}
	return snapshotFromEngine(snap, s.engine.CanRecall), nil
}

func (s *Service) close(_ context.Context, _ *structpb.Struct) (any, error) {
	s.engine.Close()
	return nil, nil
}

func (s *Service) messages(_ context.Context, _ *structpb.Struct) (any, error) {
	snap, err := s.engine.Messages()
	if err != nil {
		return nil, err
	}
	return snapshotFromEngine(snap, s.engine.CanRecall), nil
}

func (s *Service) loadOlder(ctx context.Context, _ *structpb.Struct) (any, error) {
	added, err := s.engine.LoadOlder(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.Messages()
	if err != nil {
		return nil, err
	}
	return LoadOlderResult{Added: added, HasMore: snap.HasMore}, nil
}

func (s *Service) send(ctx context.Context, in *structpb.Struct) (any, error) {
	var req sendRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, invalid("text is required")
	}
	m, err := s.engine.Send(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return messageFromStore(m), nil
}

func (s *Service) sendMedia(ctx context.Context, in *structpb.Struct) (any, error) {
	var req sendMediaRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	typ := store.MessageType(strings.ToUpper(req.Type))
	if typ != store.TypeImage && typ != store.TypeVideo {
		return nil, invalid("type must be IMAGE or VIDEO")
	}
	if req.MediaURL == "" {
		return nil, invalid("mediaUrl is required")
	}
	m, err := s.engine.SendMedia(ctx, typ, req.MediaURL, req.Text)
	if err != nil {
		return nil, err
	}
	return messageFromStore(m), nil
}

func (s *Service) messageID(in *structpb.Struct) (int64, error) {
	var req idRequest
	if err := decode(in, &req); err != nil {
		return 0, invalid("%v", err)
	}
	if req.ID <= 0 {
		return 0, invalid("id is required")
	}
	return req.ID, nil
}

func (s *Service) recall(ctx context.Context, in *structpb.Struct) (any, error) {
	id, err := s.messageID(in)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.Recall(ctx, id)
}

func (s *Service) delete(ctx context.Context, in *structpb.Struct) (any, error) {
	id, err := s.messageID(in)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.Delete(ctx, id)
}

func (s *Service) reEdit(_ context.Context, in *structpb.Struct) (any, error) {
	id, err := s.messageID(in)
	if err != nil {
		return nil, err
	}
	text, err := s.engine.ReEdit(id)
	if err != nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, err.Error())
	}
	return reEditResponse{Text: text}, nil
}

func (s *Service) markRead(ctx context.Context, _ *structpb.Struct) (any, error) {
	return nil, s.engine.MarkRead(ctx)
}

func (s *Service) setViewing(_ context.Context, in *structpb.Struct) (any, error) {
	var req viewingRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	return nil, s.engine.SetViewing(req.Viewing)
}

func (s *Service) search(ctx context.Context, in *structpb.Struct) (any, error) {
	var req searchRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, invalid("query is required")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	results, err := s.engine.Search(ctx, req.OtherID, req.Query, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "search: %v", err)
	}
	out := searchResponse{Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchHit{Message: messageFromStore(r.Message), Snippet: r.Snippet})
	}
	return out, nil
}

func (s *Service) clear(ctx context.Context, in *structpb.Struct) (any, error) {
	var req otherRequest
	if err := decode(in, &req); err != nil {
		return nil, invalid("%v", err)
	}
	if req.OtherID <= 0 {
		return nil, invalid("otherId is required")
	}
	return nil, s.engine.Clear(ctx, req.OtherID)
}

func (s *Service) watch(in *structpb.Struct, stream grpc.ServerStream) error {
	var req watchRequest
	if err := decode(in, &req); err != nil {
		return invalid("%v", err)
	}
	ch, sub := s.bus.Subscribe(req.Prefix, 256)
	defer func() {
		sub.Close()
		s.logger.Debug("watcher detached", zap.String("prefix", req.Prefix), zap.Uint64("dropped", sub.Dropped()))
	}()

	s.logger.Debug("watcher attached", zap.String("prefix", req.Prefix))
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := encode(Event{
				ID:        evt.ID,
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp.UnixMilli(),
				Payload:   payloadValue(evt.Payload),
			})
			if err != nil {
				s.logger.Warn("drop unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
