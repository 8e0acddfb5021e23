package codec

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
)

// Sidecar RPC methods. Requests and responses are generic structpb.Struct messages.
const (
	MethodAnalyze         = "/sidecar.ContentAnalysis/Analyze"
	MethodFetchEngagement = "/sidecar.PlatformMetrics/FetchEngagement"
)

// #region client-struct
// CodecClient talks to the analysis and metrics sidecar over gRPC.
type CodecClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewCodecClient connects to the sidecar. The connection is established lazily.
func NewCodecClient(addr string) (*CodecClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{conn: conn, cc: conn}, nil
}

// NewCodecClientWithConn creates a CodecClient over an injected connection.
// Used for testing without a real gRPC server.
func NewCodecClientWithConn(cc grpc.ClientConnInterface) *CodecClient {
	return &CodecClient{cc: cc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region analyze
// Analyze implements analysis.ContentAnalyzer against the sidecar.
func (c *CodecClient) Analyze(ctx context.Context, content analysis.Content) (analysis.Analysis, error) {
	req, err := structpb.NewStruct(map[string]any{
		"postId":    content.PostID,
		"caption":   content.Caption,
		"hashtags":  anyList(content.Hashtags),
		"mediaType": content.MediaType,
		"platforms": anyList(content.Platforms),
		"toneTags":  anyList(content.ToneTags),
		"hookTags":  anyList(content.HookTags),
		"brief":     content.Brief,
	})
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("build analyze request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodAnalyze, req, resp); err != nil {
		return analysis.Analysis{}, fmt.Errorf("analyze rpc: %w", err)
	}

	estimate, ok := resp.GetFields()["performanceEstimate"]
	if !ok {
		return analysis.Analysis{}, fmt.Errorf("analyze rpc: response missing performanceEstimate")
	}
	return analysis.Analysis{
		PerformanceEstimate: estimate.GetNumberValue(),
		ToneTags:            stringList(resp.GetFields()["toneTags"]),
		HookTags:            stringList(resp.GetFields()["hookTags"]),
		Source:              analysis.SourceAnalyzer,
	}, nil
}
// #endregion analyze

// #region fetch-engagement
// FetchEngagement returns raw per-platform engagement readings for a post.
// Null or non-numeric readings are treated as missing.
func (c *CodecClient) FetchEngagement(ctx context.Context, postID string, platforms []string) (map[string]eval.RawMetrics, error) {
	req, err := structpb.NewStruct(map[string]any{
		"postId":    postID,
		"platforms": anyList(platforms),
	})
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodFetchEngagement, req, resp); err != nil {
		return nil, fmt.Errorf("fetch engagement rpc: %w", err)
	}

	out := map[string]eval.RawMetrics{}
	for platform, v := range resp.GetFields()["platforms"].GetStructValue().GetFields() {
		raw := eval.RawMetrics{}
		for name, reading := range v.GetStructValue().GetFields() {
			if n, ok := reading.GetKind().(*structpb.Value_NumberValue); ok {
				raw[name] = n.NumberValue
			}
		}
		out[platform] = raw
	}
	return out, nil
}
// #endregion fetch-engagement

// #region errors
// IsTransient reports whether a sidecar error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}
// #endregion errors

// #region helpers
func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringList(v *structpb.Value) []string {
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
// #endregion helpers
