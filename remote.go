package strand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AgentCard is the discovery document a remote agent publishes at
// /.well-known/agent.json.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// URL is the JSON-RPC endpoint tasks are sent to. Empty means the card's
	// own base URL.
	URL     string `json:"url,omitempty"`
	Version string `json:"version,omitempty"`
}

// RemotePart is one content part of a remote message or artifact.
type RemotePart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// RemoteMessage is a message reply from a remote agent.
type RemoteMessage struct {
	Role      string       `json:"role,omitempty"`
	Parts     []RemotePart `json:"parts"`
	MessageID string       `json:"messageId,omitempty"`
	Kind      string       `json:"kind,omitempty"`
}

// RemoteTask is a task reply from a remote agent: terminal status plus any
// produced artifacts.
type RemoteTask struct {
	ID     string `json:"id,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Status struct {
		State   string         `json:"state,omitempty"`
		Message *RemoteMessage `json:"message,omitempty"`
	} `json:"status"`
	Artifacts []struct {
		Parts []RemotePart `json:"parts"`
	} `json:"artifacts,omitempty"`
}

// RemoteReply is the result of one remote exchange: exactly one of Message
// or Task is set.
type RemoteReply struct {
	Message *RemoteMessage
	Task    *RemoteTask
}

// Text joins the reply's text parts with newlines. A reply carrying no text
// parts yields the empty string; that is a valid result, not an error.
func (r RemoteReply) Text() string {
	var texts []string
	collect := func(parts []RemotePart) {
		for _, p := range parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
	}
	switch {
	case r.Message != nil:
		collect(r.Message.Parts)
	case r.Task != nil:
		for _, art := range r.Task.Artifacts {
			collect(art.Parts)
		}
		if len(texts) == 0 && r.Task.Status.Message != nil {
			collect(r.Task.Status.Message.Parts)
		}
	}
	return strings.Join(texts, "\n")
}

// RemoteClient talks to one remote agent.
type RemoteClient interface {
	// Card returns the remote agent's discovery document.
	Card(ctx context.Context) (AgentCard, error)
	// Send delivers one task message and waits for the reply.
	Send(ctx context.Context, text string) (RemoteReply, error)
}

// RemoteClientFunc opens a client for the agent behind cardURL.
type RemoteClientFunc func(ctx context.Context, cardURL string) (RemoteClient, error)

// remotePool caches one client per card URL across delegation calls.
type remotePool struct {
	mu      sync.Mutex
	open    RemoteClientFunc
	clients map[string]RemoteClient
}

func newRemotePool(open RemoteClientFunc) *remotePool {
	if open == nil {
		open = func(_ context.Context, cardURL string) (RemoteClient, error) {
			return NewHTTPRemoteClient(cardURL, nil), nil
		}
	}
	return &remotePool{open: open, clients: make(map[string]RemoteClient)}
}

func (p *remotePool) client(ctx context.Context, cardURL string) (RemoteClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[cardURL]; ok {
		return c, nil
	}
	c, err := p.open(ctx, cardURL)
	if err != nil {
		return nil, fmt.Errorf("open remote client for %s: %w", cardURL, err)
	}
	p.clients[cardURL] = c
	return c, nil
}

const wellKnownCardPath = "/.well-known/agent.json"

// httpRemoteClient is the default RemoteClient: it fetches the agent card
// over HTTP and exchanges messages via JSON-RPC "message/send".
type httpRemoteClient struct {
	baseURL string
	httpc   *http.Client

	mu   sync.Mutex
	card *AgentCard
}

// NewHTTPRemoteClient creates a client for the agent whose card lives at or
// under baseURL. A nil httpc uses a 60-second-timeout default client.
func NewHTTPRemoteClient(baseURL string, httpc *http.Client) RemoteClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &httpRemoteClient{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

func (c *httpRemoteClient) cardURL() string {
	if strings.HasSuffix(c.baseURL, "agent.json") {
		return c.baseURL
	}
	return c.baseURL + wellKnownCardPath
}

func (c *httpRemoteClient) Card(ctx context.Context) (AgentCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.card != nil {
		return *c.card, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cardURL(), nil)
	if err != nil {
		return AgentCard{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return AgentCard{}, fmt.Errorf("fetch agent card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AgentCard{}, fmt.Errorf("fetch agent card: unexpected status %d", resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&card); err != nil {
		return AgentCard{}, fmt.Errorf("decode agent card: %w", err)
	}
	c.card = &card
	return card, nil
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Message RemoteMessage `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *httpRemoteClient) Send(ctx context.Context, text string) (RemoteReply, error) {
	card, err := c.Card(ctx)
	if err != nil {
		return RemoteReply{}, err
	}
	endpoint := card.URL
	if endpoint == "" {
		endpoint = c.baseURL
	}

	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      NewID(),
		Method:  "message/send",
		Params: rpcParams{Message: RemoteMessage{
			Role:      "user",
			Parts:     []RemotePart{{Kind: "text", Text: text}},
			MessageID: NewID(),
			Kind:      "message",
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return RemoteReply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return RemoteReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return RemoteReply{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RemoteReply{}, fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&rpc); err != nil {
		return RemoteReply{}, fmt.Errorf("decode reply: %w", err)
	}
	if rpc.Error != nil {
		return RemoteReply{}, rpc.Error
	}
	return decodeRemoteResult(rpc.Result)
}

// decodeRemoteResult resolves the message-or-task shape of a reply by its
// "kind" discriminator, defaulting to message for untagged results.
func decodeRemoteResult(raw json.RawMessage) (RemoteReply, error) {
	if len(raw) == 0 {
		return RemoteReply{}, fmt.Errorf("empty rpc result")
	}
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return RemoteReply{}, fmt.Errorf("decode result: %w", err)
	}
	if probe.Kind == "task" {
		var task RemoteTask
		if err := json.Unmarshal(raw, &task); err != nil {
			return RemoteReply{}, fmt.Errorf("decode task: %w", err)
		}
		return RemoteReply{Task: &task}, nil
	}
	var msg RemoteMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return RemoteReply{}, fmt.Errorf("decode message: %w", err)
	}
	return RemoteReply{Message: &msg}, nil
}
