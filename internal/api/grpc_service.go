package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"warehub/internal/lifecycle"
	"warehub/internal/models"
	"warehub/internal/pricing"
	"warehub/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The booking service speaks google.protobuf.Struct on the wire, carrying the
// same JSON documents as the HTTP API.
const bookingServiceName = "warehub.booking.v1.BookingService"

const (
	methodQuoteBooking      = "QuoteBooking"
	methodGetBooking        = "GetBooking"
	methodTransitionBooking = "TransitionBooking"
	methodAvailableSlots    = "AvailableSlots"
)

type BookingServiceServer interface {
	QuoteBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodQuoteBooking, Handler: structHandler(methodQuoteBooking, BookingServiceServer.QuoteBooking)},
		{MethodName: methodGetBooking, Handler: structHandler(methodGetBooking, BookingServiceServer.GetBooking)},
		{MethodName: methodTransitionBooking, Handler: structHandler(methodTransitionBooking, BookingServiceServer.TransitionBooking)},
		{MethodName: methodAvailableSlots, Handler: structHandler(methodAvailableSlots, BookingServiceServer.AvailableSlots)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "warehub/booking/v1/booking.proto",
}

func fullMethod(method string) string {
	return "/" + bookingServiceName + "/" + method
}

type structCall func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(method string, call structCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(BookingServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type bookingIDRequest struct {
	ID int64 `json:"id"`
}

type transitionRequest struct {
	ID     int64            `json:"id"`
	Action lifecycle.Action `json:"action"`
	ActionRequest
}

type slotsRequest struct {
	WarehouseID int64  `json:"warehouse_id"`
	Date        string `json:"date"`
}

type slotsResponse struct {
	Slots []models.Slot `json:"slots"`
}

type bookingGRPCService struct {
	svc Services
}

// NewBookingGRPCService adapts the booking services to the gRPC surface.
func NewBookingGRPCService(svc Services) BookingServiceServer {
	return &bookingGRPCService{svc: svc}
}

func (g *bookingGRPCService) QuoteBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	var req service.BookingRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	quote, err := g.svc.Bookings.QuoteBooking(ctx, req, actor)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(quote)
}

func (g *bookingGRPCService) GetBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	var req bookingIDRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	booking, err := g.svc.Bookings.GetBooking(ctx, req.ID, actor)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (g *bookingGRPCService) TransitionBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	var req transitionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if !lifecycle.IsKnown(req.Action) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown action %q", req.Action)
	}
	payload, err := req.payload()
	if err != nil {
		return nil, grpcError(err)
	}

	booking, err := g.svc.Bookings.TransitionBooking(ctx, req.ID, req.Action, actor, payload)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (g *bookingGRPCService) AvailableSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req slotsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.WarehouseID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "warehouse_id is required")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}

	slots, err := g.svc.Slots.AvailableSlots(ctx, req.WarehouseID, date)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(slotsResponse{Slots: slots})
}

func requireActor(ctx context.Context) (models.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return models.Actor{}, status.Error(codes.Unauthenticated, errMissingActor.Error())
	}
	return actor, nil
}

// fromStruct decodes a Struct into dst through its JSON form. Unknown fields
// are rejected.
func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	m, err := structMap(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func structMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// BookingClient calls the booking service over an established connection.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func (c *BookingClient) QuoteBooking(ctx context.Context, req service.BookingRequest, opts ...grpc.CallOption) (*pricing.Quote, error) {
	var out pricing.Quote
	if err := c.invoke(ctx, methodQuoteBooking, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) GetBooking(ctx context.Context, id int64, opts ...grpc.CallOption) (*models.Booking, error) {
	var out models.Booking
	if err := c.invoke(ctx, methodGetBooking, bookingIDRequest{ID: id}, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) TransitionBooking(ctx context.Context, id int64, action lifecycle.Action, body ActionRequest, opts ...grpc.CallOption) (*models.Booking, error) {
	var out models.Booking
	req := transitionRequest{ID: id, Action: action, ActionRequest: body}
	if err := c.invoke(ctx, methodTransitionBooking, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BookingClient) AvailableSlots(ctx context.Context, warehouseID int64, date time.Time, opts ...grpc.CallOption) ([]models.Slot, error) {
	var out slotsResponse
	req := slotsRequest{WarehouseID: warehouseID, Date: date.Format(dateLayout)}
	if err := c.invoke(ctx, methodAvailableSlots, req, &out, opts...); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (c *BookingClient) invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	m, err := structMap(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	in, err := structpb.NewStruct(m)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return err
	}

	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
