package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote evaluation service.
type Client struct {
	evaluate       *connect.Client[EvaluateRequest, EvaluateResponse]
	check          *connect.Client[CheckRequest, CheckResponse]
	disassemble    *connect.Client[DisassembleRequest, DisassembleResponse]
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
}

// NewClient creates a Client for the service at baseURL
// (e.g. "http://localhost:4567").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(defaultCodec)}, opts...)
	return &Client{
		evaluate:       connect.NewClient[EvaluateRequest, EvaluateResponse](httpClient, baseURL+EvaluateProcedure, opts...),
		check:          connect.NewClient[CheckRequest, CheckResponse](httpClient, baseURL+CheckProcedure, opts...),
		disassemble:    connect.NewClient[DisassembleRequest, DisassembleResponse](httpClient, baseURL+DisassembleProcedure, opts...),
		createSession:  connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](httpClient, baseURL+DestroySessionProcedure, opts...),
	}
}

// Evaluate runs source in the given session ("" for the default one).
func (c *Client) Evaluate(ctx context.Context, source, session string) (*EvaluateResponse, error) {
	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(&EvaluateRequest{Source: source, Session: session}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Check compiles source remotely without running it.
func (c *Client) Check(ctx context.Context, source string) (*CheckResponse, error) {
	resp, err := c.check.CallUnary(ctx, connect.NewRequest(&CheckRequest{Source: source}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Disassemble returns the remote bytecode listing for source.
func (c *Client) Disassemble(ctx context.Context, source string) (*DisassembleResponse, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(&DisassembleRequest{Source: source}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CreateSession starts a remote session and returns its id.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.Session, nil
}

// DestroySession stops a remote session.
func (c *Client) DestroySession(ctx context.Context, session string) error {
	_, err := c.destroySession.CallUnary(ctx, connect.NewRequest(&DestroySessionRequest{Session: session}))
	return err
}
