// Package grpcapi implements the sheetroll.v1.Roller gRPC service. Requests
// and responses are google.protobuf.Struct messages carrying the same JSON
// documents as the REST API.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/random"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/runtime"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/stdlib"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "sheetroll.v1.Roller"

// RollerServer is the server API for the Roller service.
type RollerServer interface {
	Roll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BuildContext(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RollAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements the Roller and health services.
type Server struct {
	store  store.Store
	funcs  *stdlib.Registry
	log    zerolog.Logger
	health *health.Server
	grpc   *grpc.Server
}

var _ RollerServer = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a new gRPC server reading sheets from s.
func New(s store.Store, opts ...Option) *Server {
	srv := &Server{
		store:  s,
		funcs:  stdlib.NewRegistry(),
		log:    zerolog.Nop(),
		health: health.NewServer(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(srv.logUnary),
	)
	gs.RegisterService(&rollerServiceDesc, srv)
	grpc_health_v1.RegisterHealthServer(gs, srv.health)
	srv.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves gRPC requests on lis.
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks the server as not serving and stops it gracefully.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("latency", time.Since(start)).
		Msg("grpc request")
	return resp, err
}

func (s *Server) engine(requested *int64) (*runtime.Engine, int64, random.SeedSource, error) {
	seed, source, err := random.ResolveSeed(requested, random.NewSeed)
	if err != nil {
		return nil, 0, "", status.Error(codes.Internal, err.Error())
	}
	e := runtime.NewEngine(s.funcs,
		runtime.WithSource(expr.NewSource(seed)),
		runtime.WithLogger(s.log),
	)
	return e, seed, source, nil
}

// --- Roller Service ---

type rollRequest struct {
	Expression string            `json:"expression"`
	Context    expr.Context      `json:"context"`
	Format     roll.FormatConfig `json:"format"`
	Seed       *seedParam        `json:"seed"`
}

// seedParam accepts a seed as a JSON string, which is exact, or as a number.
// Struct numbers are doubles, so only seeds below 2^53 survive as numbers.
type seedParam int64

func (p *seedParam) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*p = seedParam(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("invalid seed %s", data)
	}
	*p = seedParam(f)
	return nil
}

func (p *seedParam) value() *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

// Struct numbers are doubles, so seeds travel as strings to stay exact.
type rollResponse struct {
	*roll.Result
	Seed       int64             `json:"seed,string"`
	SeedSource random.SeedSource `json:"seedSource"`
}

// Roll rolls a free-form expression against an optional context.
func (s *Server) Roll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req rollRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Expression == "" {
		return nil, status.Error(codes.InvalidArgument, "expression is required")
	}
	e, seed, source, err := s.engine(req.Seed.value())
	if err != nil {
		return nil, err
	}
	out := e.Roll(req.Expression, req.Context, req.Format)
	if !out.OK() {
		return nil, outcomeError(out)
	}
	return toStruct(rollResponse{Result: out.Result, Seed: seed, SeedSource: source})
}

type sheetRequest struct {
	SheetID string `json:"sheetId"`
	// Source is an inline sheet document used instead of a stored sheet.
	Source string `json:"source"`
	Active string `json:"active"`
}

func (s *Server) loadSheet(ctx context.Context, req sheetRequest) (*sheet.Sheet, error) {
	if req.Source != "" {
		sh, err := parser.Parse([]byte(req.Source))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid sheet definition: %v", err)
		}
		return sh, nil
	}
	if req.SheetID == "" {
		return nil, status.Error(codes.InvalidArgument, "sheetId or source is required")
	}
	rec, err := s.store.GetSheet(ctx, req.SheetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return rec.Sheet, nil
}

// BuildContext resolves a stored or inline sheet.
func (s *Server) BuildContext(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sheetRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	sh, err := s.loadSheet(ctx, req)
	if err != nil {
		return nil, err
	}
	active := req.Active
	if active == "" {
		active = sh.ActiveSubSheetID
	}
	if active != "" && sh.SubSheet(active) == nil {
		return nil, status.Errorf(codes.NotFound, "sub-sheet '%s' not found", active)
	}

	e, _, _, err := s.engine(nil)
	if err != nil {
		return nil, err
	}
	return toStruct(e.BuildContextFor(sh, active))
}

type actionRequest struct {
	sheetRequest
	SubSheetID string            `json:"subSheetId"`
	ActionID   string            `json:"actionId"`
	Format     roll.FormatConfig `json:"format"`
	Seed       *seedParam        `json:"seed"`
}

type actionResponse struct {
	*roll.Result
	RollExpression string            `json:"rollExpression"`
	Modifications  []string          `json:"modifications"`
	Seed           int64             `json:"seed,string"`
	SeedSource     random.SeedSource `json:"seedSource"`
}

// RollAction rolls a sub-sheet action with its matching qualities applied.
func (s *Server) RollAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req actionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	sh, err := s.loadSheet(ctx, req.sheetRequest)
	if err != nil {
		return nil, err
	}
	e, seed, source, err := s.engine(req.Seed.value())
	if err != nil {
		return nil, err
	}
	ar, err := e.RollAction(sh, req.SubSheetID, req.ActionID, req.Format)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if !ar.Outcome.OK() {
		return nil, outcomeError(ar.Outcome)
	}
	return toStruct(actionResponse{
		Result:         ar.Outcome.Result,
		RollExpression: ar.Expression,
		Modifications:  ar.Modifications,
		Seed:           seed,
		SeedSource:     source,
	})
}

// --- Helpers ---

func outcomeError(out roll.Outcome) error {
	err := out.Err()
	if err == nil {
		return status.Error(codes.InvalidArgument, "roll failed")
	}
	var diag *types.DiagnosticError
	if errors.As(err, &diag) {
		return status.Error(codes.InvalidArgument, diag.Error())
	}
	return status.Error(codes.InvalidArgument, err.Error())
}

// toStruct converts a JSON-marshalable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into a Go value through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}
