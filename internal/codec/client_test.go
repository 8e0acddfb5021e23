package codec

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
)

// #region mock
type mockConn struct {
	resp   map[string]any
	err    error
	method string
	req    *structpb.Struct
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.method = method
	m.req = args.(*structpb.Struct)
	if m.err != nil {
		return m.err
	}
	resp, err := structpb.NewStruct(m.resp)
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), resp)
	return nil
}

func (m *mockConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}
// #endregion mock

// #region constructor-tests
func TestNewCodecClientLazyDial(t *testing.T) {
	client, err := NewCodecClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCloseWithoutConn(t *testing.T) {
	if err := NewCodecClientWithConn(&mockConn{}).Close(); err != nil {
		t.Fatalf("Close on injected conn should be a no-op: %v", err)
	}
}
// #endregion constructor-tests

// #region analyze-tests
func TestAnalyze_Success(t *testing.T) {
	mock := &mockConn{resp: map[string]any{
		"performanceEstimate": 71.5,
		"toneTags":            []any{"warm", "story"},
		"hookTags":            []any{"question"},
	}}
	c := NewCodecClientWithConn(mock)

	a, err := c.Analyze(context.Background(), analysis.Content{PostID: "post-1", Caption: "hi", Hashtags: []string{"diy"}, Brief: "[TASTE GENOME]"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if mock.method != MethodAnalyze {
		t.Errorf("wrong method %s", mock.method)
	}
	if mock.req.GetFields()["postId"].GetStringValue() != "post-1" {
		t.Errorf("request missing postId: %v", mock.req)
	}
	if mock.req.GetFields()["brief"].GetStringValue() != "[TASTE GENOME]" {
		t.Errorf("request missing brief: %v", mock.req)
	}
	if a.PerformanceEstimate != 71.5 || len(a.ToneTags) != 2 || a.HookTags[0] != "question" {
		t.Errorf("unexpected analysis %+v", a)
	}
	if a.Source != analysis.SourceAnalyzer {
		t.Errorf("expected analyzer source, got %s", a.Source)
	}
}

func TestAnalyze_MissingEstimate(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{resp: map[string]any{"toneTags": []any{"warm"}}})
	if _, err := c.Analyze(context.Background(), analysis.Content{PostID: "p"}); err == nil {
		t.Fatal("expected error for response without an estimate")
	}
}

func TestAnalyze_Error(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{err: status.Error(codes.Unavailable, "down")})
	_, err := c.Analyze(context.Background(), analysis.Content{PostID: "p"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("wrapped unavailable should be transient: %v", err)
	}
}
// #endregion analyze-tests

// #region fetch-tests
func TestFetchEngagement_Success(t *testing.T) {
	mock := &mockConn{resp: map[string]any{
		"platforms": map[string]any{
			"instagram": map[string]any{"save_rate": 2.5, "share_rate": nil, "card_ctr": "n/a"},
			"tiktok":    map[string]any{"watch_depth": 61.0},
		},
	}}
	c := NewCodecClientWithConn(mock)

	raw, err := c.FetchEngagement(context.Background(), "post-1", []string{"instagram", "tiktok"})
	if err != nil {
		t.Fatalf("FetchEngagement: %v", err)
	}
	if mock.method != MethodFetchEngagement {
		t.Errorf("wrong method %s", mock.method)
	}
	ig := raw["instagram"]
	if ig[eval.SignalSaveRate] != 2.5 {
		t.Errorf("save rate not decoded: %v", ig)
	}
	if _, ok := ig[eval.SignalShareRate]; ok {
		t.Error("null readings must be missing")
	}
	if _, ok := ig[eval.SignalCardCTR]; ok {
		t.Error("non-numeric readings must be missing")
	}
	if raw["tiktok"][eval.SignalWatchDepth] != 61 {
		t.Errorf("tiktok not decoded: %v", raw["tiktok"])
	}
}

func TestFetchEngagement_Empty(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{resp: map[string]any{}})
	raw, err := c.FetchEngagement(context.Background(), "post-1", nil)
	if err != nil {
		t.Fatalf("FetchEngagement: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("expected no platforms, got %v", raw)
	}
}
// #endregion fetch-tests

// #region transient-tests
func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{status.Error(codes.Unavailable, "x"), true},
		{fmt.Errorf("wrap: %w", status.Error(codes.ResourceExhausted, "x")), true},
		{context.DeadlineExceeded, true},
		{status.Error(codes.InvalidArgument, "x"), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
// #endregion transient-tests
