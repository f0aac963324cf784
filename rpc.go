package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type httpStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("rpc http status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("rpc http status %s", e.Status)
}

// RPCClient is a JSON-RPC 1.0 client for the node. Each call is a single
// attempt bounded by the configured timeout; callers retry on their own
// schedule (the synchronizer on its next tick, the pending replayer on its
// ticker).
type RPCClient struct {
	url     string
	user    string
	pass    string
	timeout time.Duration
	client  *http.Client
	metrics *proxyMetrics

	idMu   sync.Mutex
	nextID int

	connected   atomic.Bool
	unhealthy   atomic.Bool
	disconnects atomic.Uint64
}

func NewRPCClient(cfg Config, metrics *proxyMetrics) *RPCClient {
	// Shared transport so the 100ms poll reuses one keep-alive connection.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RPCTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &RPCClient{
		url:     cfg.RPCURL(),
		user:    cfg.RPCUser,
		pass:    cfg.RPCPass,
		timeout: timeout,
		metrics: metrics,
		client:  &http.Client{Transport: transport},
		nextID:  1,
	}
}

// GetBlockTemplate fetches the node's current template. Transport failures,
// timeouts and node-side errors (still syncing, warming up) are all
// errUpstreamUnavailable; an undecodable result is errMalformedTemplate.
func (c *RPCClient) GetBlockTemplate(ctx context.Context) (GetBlockTemplateResult, error) {
	var tpl GetBlockTemplateResult
	var raw json.RawMessage
	if err := c.callCtx(ctx, "getblocktemplate", getBlockTemplateParams, &raw); err != nil {
		if errors.Is(err, errUpstreamUnavailable) {
			return tpl, fmt.Errorf("getblocktemplate: %w", err)
		}
		return tpl, fmt.Errorf("%w: getblocktemplate: %w", errUpstreamUnavailable, err)
	}
	if err := fastJSONUnmarshal(raw, &tpl); err != nil {
		return tpl, fmt.Errorf("%w: decode getblocktemplate: %w", errMalformedTemplate, err)
	}
	return tpl, nil
}

// SubmitBlock submits a hex encoded block. The node answers null (or an
// empty string) on acceptance and a short reason such as "duplicate" or
// "high-hash" otherwise; that reason is returned with a nil error. A non-nil
// error means the node refused the call itself or could not be reached.
func (c *RPCClient) SubmitBlock(ctx context.Context, blockHex string) (string, error) {
	var raw json.RawMessage
	if err := c.callCtx(ctx, "submitblock", []any{blockHex}, &raw); err != nil {
		return "", err
	}
	return submitBlockReason(raw), nil
}

func submitBlockReason(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := fastJSONUnmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func (c *RPCClient) callCtx(ctx context.Context, method string, params any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.performCall(ctx, method, params, out)
	if err == nil {
		if c.unhealthy.Swap(false) {
			logger.Info("node rpc reachable again", "endpoint", c.endpointLabel())
		} else if !c.connected.Load() {
			logger.Info("node rpc connected", "endpoint", c.endpointLabel())
		}
		c.connected.Store(true)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.metrics.RecordRPCError(method)
	if isRPCConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		if !c.unhealthy.Swap(true) {
			c.disconnects.Add(1)
			logger.Warn("node rpc unreachable", "endpoint", c.endpointLabel(), "error", err)
		}
		return fmt.Errorf("%w: %w", errUpstreamUnavailable, err)
	}
	return err
}

func (c *RPCClient) endpointLabel() string {
	raw := strings.TrimSpace(c.url)
	if raw == "" {
		return "(unknown)"
	}
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u.Host
	}
	if idx := strings.Index(raw, "@"); idx != -1 && idx+1 < len(raw) {
		raw = raw[idx+1:]
	}
	return strings.TrimLeft(raw, "/")
}

func (c *RPCClient) Disconnects() uint64 {
	if c == nil {
		return 0
	}
	return c.disconnects.Load()
}

func isRPCConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode >= 500
	}
	return false
}

func (c *RPCClient) performCall(ctx context.Context, method string, params any, out any) error {
	c.idMu.Lock()
	id := c.nextID
	c.nextID++
	c.idMu.Unlock()

	body, err := fastJSONMarshal(rpcRequest{
		Jsonrpc: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.ObserveRPCLatency(method, time.Since(start))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		// The node reports RPC errors with a 500 status and a JSON body;
		// surface the RPC error rather than the status line.
		var rpcResp rpcResponse
		if err := fastJSONUnmarshal(data, &rpcResp); err == nil && rpcResp.Error != nil {
			return rpcResp.Error
		}
		return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bytes.TrimSpace(data))}
	}

	if len(data) == 0 {
		return fmt.Errorf("rpc empty response body")
	}

	var rpcResp rpcResponse
	if err := fastJSONUnmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], rpcResp.Result...)
		return nil
	}
	if err := fastJSONUnmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
