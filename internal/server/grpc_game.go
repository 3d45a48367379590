package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/game"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// BattleServiceName is the fully qualified gRPC service name.
const BattleServiceName = "battle.v1.BattleService"

// BattleServiceServer is the gRPC surface of game.Service. Payloads are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type BattleServiceServer interface {
	CreateGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JoinGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PlaceCard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PerformAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ForfeitGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailableGames(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMyGames(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlayerRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type battleCall func(BattleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call battleCall) grpc.MethodDesc {
	fullMethod := "/" + BattleServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BattleServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(BattleServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// BattleServiceDesc describes battle.v1.BattleService for grpc.Server.RegisterService.
var BattleServiceDesc = grpc.ServiceDesc{
	ServiceName: BattleServiceName,
	HandlerType: (*BattleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateGame", BattleServiceServer.CreateGame),
		unaryMethod("JoinGame", BattleServiceServer.JoinGame),
		unaryMethod("PlaceCard", BattleServiceServer.PlaceCard),
		unaryMethod("PerformAction", BattleServiceServer.PerformAction),
		unaryMethod("EndTurn", BattleServiceServer.EndTurn),
		unaryMethod("ForfeitGame", BattleServiceServer.ForfeitGame),
		unaryMethod("GetGame", BattleServiceServer.GetGame),
		unaryMethod("GetAvailableGames", BattleServiceServer.GetAvailableGames),
		unaryMethod("GetMyGames", BattleServiceServer.GetMyGames),
		unaryMethod("GetPlayerRecord", BattleServiceServer.GetPlayerRecord),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "battle/v1/battle.proto",
}

// RegisterBattleServiceServer registers srv on s.
func RegisterBattleServiceServer(s grpc.ServiceRegistrar, srv BattleServiceServer) {
	s.RegisterService(&BattleServiceDesc, srv)
}

// BattleServiceClient calls battle.v1.BattleService.
type BattleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBattleServiceClient creates a client on cc.
func NewBattleServiceClient(cc grpc.ClientConnInterface) *BattleServiceClient {
	return &BattleServiceClient{cc: cc}
}

// Call invokes method (e.g. "PlaceCard") with a JSON-shaped request.
func (c *BattleServiceClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BattleServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// battleServer implements BattleServiceServer on game.Service.
type battleServer struct {
	svc    *game.Service
	logger *zap.Logger
}

// NewBattleServer creates the gRPC adapter for svc.
func NewBattleServer(svc *game.Service, logger *zap.Logger) BattleServiceServer {
	return &battleServer{svc: svc, logger: logger}
}

type gameRequest struct {
	GameID     string `json:"gameId"`
	OpponentID string `json:"opponentId"`
	UserID     string `json:"userId"`
}

// fromStruct decodes a Struct payload into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return fmt.Errorf("encode payload: %w", game.ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", game.ErrMalformed)
	}
	return nil
}

// toStruct encodes v as a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return structpb.NewStruct(payload)
}

func (b *battleServer) reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, GRPCStatus(err)
	}
	out, err := toStruct(v)
	if err != nil {
		b.logger.Error("failed to encode gRPC response", zap.Error(err))
		return nil, GRPCStatus(err)
	}
	return out, nil
}

func (b *battleServer) session(s *game.Session, err error) (*structpb.Struct, error) {
	if err != nil {
		return b.reply(nil, err)
	}
	return b.reply(game.NewView(s), nil)
}

func (b *battleServer) sessions(list []*game.Session, err error) (*structpb.Struct, error) {
	if err != nil {
		return b.reply(nil, err)
	}
	return b.reply(map[string]any{"games": game.NewViews(list)}, nil)
}

func caller(ctx context.Context) string {
	id, _ := auth.UserIDFromContext(ctx)
	return id
}

func (b *battleServer) CreateGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	return b.session(b.svc.CreateGame(ctx, caller(ctx), req.OpponentID))
}

func (b *battleServer) JoinGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	return b.session(b.svc.JoinGame(ctx, req.GameID, caller(ctx)))
}

func (b *battleServer) PlaceCard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req game.PlaceRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	req.PlayerID = caller(ctx)
	return b.session(b.svc.PlaceCard(ctx, req))
}

func (b *battleServer) PerformAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req game.ActionRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	req.PlayerID = caller(ctx)
	return b.session(b.svc.PerformAction(ctx, req))
}

func (b *battleServer) EndTurn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	return b.session(b.svc.EndTurn(ctx, req.GameID, caller(ctx)))
}

func (b *battleServer) ForfeitGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	return b.session(b.svc.ForfeitGame(ctx, req.GameID, caller(ctx)))
}

func (b *battleServer) GetGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	return b.session(b.svc.GetGame(ctx, req.GameID))
}

func (b *battleServer) GetAvailableGames(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return b.sessions(b.svc.GetAvailableGames(ctx, caller(ctx)))
}

func (b *battleServer) GetMyGames(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return b.sessions(b.svc.GetMyGames(ctx, caller(ctx)))
}

func (b *battleServer) GetPlayerRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req gameRequest
	if err := fromStruct(in, &req); err != nil {
		return b.reply(nil, err)
	}
	userID := req.UserID
	if userID == "" {
		userID = caller(ctx)
	}
	rec, err := b.svc.GetPlayerRecord(ctx, userID)
	return b.reply(rec, err)
}
