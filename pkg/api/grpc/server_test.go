package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
)

const heroYAML = `
active: human
global:
  - level: 5
  - id: profBonus
    expression: floor(level / 4) + 2
subsheets:
  - id: human
    properties:
      - str: 16
      - id: fireMagic
        name: Fire Magic
        usage: Quality
        tags: [Fire]
      - id: rank
        expression: "3"
        parentId: fireMagic
    actions:
      - id: firebolt
        name: Fire Bolt
        qualityTags: [Fire]
        roll: d10
`

func startTestServer(t *testing.T) (*Client, *grpc.ClientConn, store.Store) {
	t.Helper()
	s := store.New()
	sh, err := parser.Parse([]byte(heroYAML))
	if err != nil {
		t.Fatalf("parse sheet: %v", err)
	}
	if _, err := s.CreateSheet(context.Background(), "hero", sh); err != nil {
		t.Fatalf("create sheet: %v", err)
	}
	srv := New(s)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.ServeListener(lis)
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), conn, s
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return st
}

func TestRoll(t *testing.T) {
	client, _, _ := startTestServer(t)
	ctx := context.Background()

	out, err := client.Roll(ctx, mustStruct(t, map[string]any{
		"expression": "Hit: str + 2",
		"context":    map[string]any{"str": 3},
	}))
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	m := out.AsMap()
	if m["value"] != float64(5) || m["title"] != "Hit" {
		t.Errorf("unexpected result %v", m)
	}

	seeded := mustStruct(t, map[string]any{"expression": "3d6", "seed": 99})
	first, err := client.Roll(ctx, seeded)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	second, _ := client.Roll(ctx, seeded)
	if first.AsMap()["formattedString"] != second.AsMap()["formattedString"] {
		t.Error("same seed gave different rolls")
	}
	if seed, _ := first.AsMap()["seed"].(string); seed != strconv.Itoa(99) {
		t.Errorf("expected seed \"99\", got %v", first.AsMap()["seed"])
	}
}

func TestRollReplaysServerSeed(t *testing.T) {
	client, _, _ := startTestServer(t)
	ctx := context.Background()

	first, err := client.Roll(ctx, mustStruct(t, map[string]any{"expression": "10d20"}))
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	m := first.AsMap()
	seed, ok := m["seed"].(string)
	if !ok || m["seedSource"] != "server" {
		t.Fatalf("expected a server seed string, got %v (%v)", m["seed"], m["seedSource"])
	}

	replay, err := client.Roll(ctx, mustStruct(t, map[string]any{"expression": "10d20", "seed": seed}))
	if err != nil {
		t.Fatalf("Roll with seed %s: %v", seed, err)
	}
	r := replay.AsMap()
	if r["seed"] != seed || r["seedSource"] != "client" {
		t.Errorf("replayed seed %v (%v), want %s", r["seed"], r["seedSource"], seed)
	}
	if fmt.Sprint(r["rolls"]) != fmt.Sprint(m["rolls"]) {
		t.Errorf("replay rolled %v, want %v", r["rolls"], m["rolls"])
	}

	action := map[string]any{"sheetId": "hero", "subSheetId": "human", "actionId": "firebolt"}
	firstAction, err := client.RollAction(ctx, mustStruct(t, action))
	if err != nil {
		t.Fatalf("RollAction: %v", err)
	}
	action["seed"] = firstAction.AsMap()["seed"]
	replayAction, err := client.RollAction(ctx, mustStruct(t, action))
	if err != nil {
		t.Fatalf("RollAction with seed: %v", err)
	}
	if fmt.Sprint(replayAction.AsMap()["rolls"]) != fmt.Sprint(firstAction.AsMap()["rolls"]) {
		t.Errorf("action replay rolled %v, want %v", replayAction.AsMap()["rolls"], firstAction.AsMap()["rolls"])
	}
}

func TestSeedParam(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{`"9192443646700629329"`, 9192443646700629329, false},
		{`"-42"`, -42, false},
		{`99`, 99, false},
		{`1.2e3`, 1200, false},
		{`"lots"`, 0, true},
		{`1.5`, 0, true},
		{`1e300`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p seedParam
			err := json.Unmarshal([]byte(tt.in), &p)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := *p.value(); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	var missing *seedParam
	if missing.value() != nil {
		t.Error("nil seed should stay nil")
	}
}

func TestRollErrors(t *testing.T) {
	client, _, _ := startTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   map[string]any
	}{
		{"missing expression", map[string]any{}},
		{"parse error", map[string]any{"expression": "2d6 >"}},
		{"undefined variable", map[string]any{"expression": "dex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Roll(ctx, mustStruct(t, tt.in))
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	client, _, _ := startTestServer(t)
	ctx := context.Background()

	out, err := client.BuildContext(ctx, mustStruct(t, map[string]any{"sheetId": "hero"}))
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	values := out.AsMap()["context"].(map[string]any)
	if values["profBonus"] != float64(3) || values["str"] != float64(16) {
		t.Errorf("unexpected context %v", values)
	}

	inline, err := client.BuildContext(ctx, mustStruct(t, map[string]any{"source": "global:\n  - a: b + 1\n  - b: a + 1\n"}))
	if err != nil {
		t.Fatalf("BuildContext inline: %v", err)
	}
	if unresolved, _ := inline.AsMap()["unresolved"].([]any); len(unresolved) != 2 {
		t.Errorf("expected 2 unresolved, got %v", inline.AsMap())
	}

	_, err = client.BuildContext(ctx, mustStruct(t, map[string]any{"sheetId": "nobody"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
	_, err = client.BuildContext(ctx, mustStruct(t, map[string]any{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestRollAction(t *testing.T) {
	client, _, _ := startTestServer(t)

	out, err := client.RollAction(context.Background(), mustStruct(t, map[string]any{
		"sheetId":    "hero",
		"subSheetId": "human",
		"actionId":   "firebolt",
	}))
	if err != nil {
		t.Fatalf("RollAction: %v", err)
	}
	m := out.AsMap()
	if m["rollExpression"] != "d10 + rank" {
		t.Errorf("unexpected expression %v", m["rollExpression"])
	}
	if mods, _ := m["modifications"].([]any); len(mods) != 1 {
		t.Errorf("expected one modification, got %v", m["modifications"])
	}

	_, err = client.RollAction(context.Background(), mustStruct(t, map[string]any{
		"sheetId": "hero", "subSheetId": "human", "actionId": "missing",
	}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, conn, _ := startTestServer(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.GetStatus())
	}
}
