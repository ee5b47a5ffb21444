package grpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

const serviceName = "marketplace.v1.Marketplace"

type WalletRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

// MarketplaceServer is the server API of marketplace.v1.Marketplace.
type MarketplaceServer interface {
	Purchase(ctx context.Context, req *model.PurchaseRequest) (*model.Receipt, error)
	ResolveDispute(ctx context.Context, req *model.ResolveRequest) (*model.Outcome, error)
	GetWallet(ctx context.Context, req *WalletRequest) (*model.Wallet, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: unary("Purchase", MarketplaceServer.Purchase)},
		{MethodName: "ResolveDispute", Handler: unary("ResolveDispute", MarketplaceServer.ResolveDispute)},
		{MethodName: "GetWallet", Handler: unary("GetWallet", MarketplaceServer.GetWallet)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/marketplace.proto",
}

func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed method expression to a grpc method handler.
func unary[Req, Resp any](method string, call func(MarketplaceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketplaceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarketplaceServer), ctx, req.(*Req))
		})
	}
}

// Client calls marketplace.v1.Marketplace over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Purchase(ctx context.Context, req *model.PurchaseRequest) (*model.Receipt, error) {
	out := new(model.Receipt)
	if err := c.invoke(ctx, "Purchase", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResolveDispute(ctx context.Context, req *model.ResolveRequest) (*model.Outcome, error) {
	out := new(model.Outcome)
	if err := c.invoke(ctx, "ResolveDispute", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetWallet(ctx context.Context, req *WalletRequest) (*model.Wallet, error) {
	out := new(model.Wallet)
	if err := c.invoke(ctx, "GetWallet", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.ForceCodec(codec{}))
}
