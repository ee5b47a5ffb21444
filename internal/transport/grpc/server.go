package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

type Server struct {
	svc    service.MarketService
	srv    *grpc.Server
	addr   string
	logger *slog.Logger
}

func NewServer(addr string, svc service.MarketService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, addr: addr, logger: logger}
	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(codec{}),
		grpc.UnaryInterceptor(s.logCalls),
	)
	RegisterMarketplaceServer(s.srv, s)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

func (s *Server) Purchase(ctx context.Context, req *model.PurchaseRequest) (*model.Receipt, error) {
	r, err := s.svc.Purchase(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return r, nil
}

func (s *Server) ResolveDispute(ctx context.Context, req *model.ResolveRequest) (*model.Outcome, error) {
	out, err := s.svc.ResolveDispute(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *Server) GetWallet(ctx context.Context, req *WalletRequest) (*model.Wallet, error) {
	w, err := s.svc.OpenWallet(ctx, req.OwnerID)
	if err != nil {
		return nil, toStatus(err)
	}
	return w, nil
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info("grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

var kindCode = map[apperr.Kind]codes.Code{
	apperr.InsufficientFunds:        codes.FailedPrecondition,
	apperr.OutOfStock:               codes.ResourceExhausted,
	apperr.WalletNotActive:          codes.FailedPrecondition,
	apperr.ProductNotFound:          codes.NotFound,
	apperr.DuplicateIdempotencyKey:  codes.AlreadyExists,
	apperr.InvalidDisputeTransition: codes.FailedPrecondition,
	apperr.UnitNotAssigned:          codes.FailedPrecondition,
	apperr.NotFound:                 codes.NotFound,
	apperr.InvalidRequest:           codes.InvalidArgument,
	apperr.Forbidden:                codes.PermissionDenied,
	apperr.Transient:                codes.Unavailable,
}

// toStatus maps a service error to a gRPC status. The apperr kind travels
// as the message prefix so clients can tell domain failures apart.
func toStatus(err error) error {
	kind := apperr.KindOf(err)
	code, ok := kindCode[kind]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, string(kind)+": "+apperr.Message(err))
}
