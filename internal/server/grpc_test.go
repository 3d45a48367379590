package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type grpcHarness struct {
	conn     *grpc.ClientConn
	client   *BattleServiceClient
	verifier *auth.Verifier
}

func newGRPCHarness(t *testing.T) *grpcHarness {
	t.Helper()
	verifier := auth.NewVerifier(testSecret)
	srv, _ := NewGRPCServer(config.GRPCConfig{MaxConcurrentStreams: 10}, newTestService(t), verifier, zaptest.NewLogger(t))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &grpcHarness{conn: conn, client: NewBattleServiceClient(conn), verifier: verifier}
}

func (h *grpcHarness) as(t *testing.T, user string) context.Context {
	t.Helper()
	token, err := h.verifier.Issue(user, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func TestGRPC_Health(t *testing.T) {
	h := newGRPCHarness(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: BattleServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPC_RequiresToken(t *testing.T) {
	h := newGRPCHarness(t)
	_, err := h.client.Call(context.Background(), "GetMyGames", map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPC_GameFlow(t *testing.T) {
	h := newGRPCHarness(t)

	created, err := h.client.Call(h.as(t, "alice"), "CreateGame", map[string]any{"opponentId": "bob"})
	require.NoError(t, err)
	gameID := created.GetFields()["id"].GetStringValue()
	require.NotEmpty(t, gameID)
	assert.Equal(t, "IN_PROGRESS", created.GetFields()["status"].GetStringValue())

	_, err = h.client.Call(h.as(t, "bob"), "EndTurn", map[string]any{"gameId": gameID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.Call(h.as(t, "alice"), "PlaceCard", map[string]any{"gameId": gameID, "cardId": "storm-hawk", "position": 42})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	placed, err := h.client.Call(h.as(t, "alice"), "PlaceCard", map[string]any{"gameId": gameID, "cardId": "storm-hawk", "position": 4})
	require.NoError(t, err)
	assert.Equal(t, "bob", placed.GetFields()["currentTurnPlayerId"].GetStringValue())
	assert.Equal(t, float64(2), placed.GetFields()["turnNumber"].GetNumberValue())

	_, err = h.client.Call(h.as(t, "mallory"), "ForfeitGame", map[string]any{"gameId": gameID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.client.Call(h.as(t, "alice"), "GetGame", map[string]any{"gameId": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	mine, err := h.client.Call(h.as(t, "bob"), "GetMyGames", map[string]any{})
	require.NoError(t, err)
	assert.Len(t, mine.GetFields()["games"].GetListValue().GetValues(), 1)

	_, err = h.client.Call(h.as(t, "bob"), "ForfeitGame", map[string]any{"gameId": gameID})
	require.NoError(t, err)

	rec, err := h.client.Call(h.as(t, "bob"), "GetPlayerRecord", map[string]any{"userId": "alice"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), rec.GetFields()["wins"].GetNumberValue())
}

func TestGRPCStatus(t *testing.T) {
	assert.NoError(t, GRPCStatus(nil))
	assert.Equal(t, codes.Internal, status.Code(GRPCStatus(assert.AnError)))
}

func TestChainUnaryInterceptors_Order(t *testing.T) {
	var order []string
	mark := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mark("a"), mark("b"), RecoveryInterceptor(zaptest.NewLogger(t)))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		order = append(order, "handler")
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
