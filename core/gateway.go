// gateway.go – the HTTP Gateway client (spec §6): the external network
// surface this engine drives, a simple poll-and-push REST client. Style
// grounded on the stateless bridge client's request/decode loop
// (corpus-core-colibri-stateless), rebuilt here with net/http and plain
// Go error wrapping rather than that codebase's ad hoc logging.
package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

// Gateway is the network boundary named in spec §6: object submission,
// pubkey lookup by tag or ripe, and polling for newly arrived objects.
type Gateway interface {
	SubmitObject(ctx context.Context, objType ObjectType, data []byte) error
	FetchPubkeyByTag(ctx context.Context, tag [32]byte) ([]byte, error)
	FetchPubkeyByRipe(ctx context.Context, ripe [20]byte) ([]byte, error)
	PollMessages(ctx context.Context, addr Address, since int64) ([][]byte, error)
}

// HTTPGateway implements Gateway against a REST endpoint.
type HTTPGateway struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPGateway builds a Gateway client with the given base URL and
// request timeout.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type submitObjectRequest struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type pubkeyResponse struct {
	Data string `json:"data"`
}

type pollMessagesResponse struct {
	Objects []string `json:"objects"`
}

func objectTypeName(t ObjectType) string {
	switch t {
	case ObjectPubkey:
		return "pubkey"
	case ObjectMsg:
		return "msg"
	case ObjectAck:
		return "ack"
	case ObjectGetpubkey:
		return "getpubkey"
	default:
		return "unknown"
	}
}

// SubmitObject posts a fully-encoded, PoW-stamped object to the gateway.
func (g *HTTPGateway) SubmitObject(ctx context.Context, objType ObjectType, data []byte) error {
	body, err := json.Marshal(submitObjectRequest{
		Type: objectTypeName(objType),
		Data: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return newErr(KindInvalidParameter, "gateway.SubmitObject", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/object", bytes.NewReader(body))
	if err != nil {
		return newErr(KindNetworkError, "gateway.SubmitObject", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return newErr(KindNetworkError, "gateway.SubmitObject", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return newErr(KindNetworkError, "gateway.SubmitObject", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	log.WithField("type", objectTypeName(objType)).Debug("gateway: object submitted")
	return nil
}

func (g *HTTPGateway) fetchPubkey(ctx context.Context, query url.Values) ([]byte, error) {
	u := g.BaseURL + "/pubkey?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newErr(KindNetworkError, "gateway.fetchPubkey", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, newErr(KindNetworkError, "gateway.fetchPubkey", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, newErr(KindNotFound, "gateway.fetchPubkey", errString("pubkey not found on gateway"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newErr(KindNetworkError, "gateway.fetchPubkey", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var decoded pubkeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, newErr(KindMalformed, "gateway.fetchPubkey", err)
	}
	raw, err := base64.StdEncoding.DecodeString(decoded.Data)
	if err != nil {
		return nil, newErr(KindMalformed, "gateway.fetchPubkey", err)
	}
	return raw, nil
}

// FetchPubkeyByTag looks up a v4+ pubkey object by its 32-byte tag.
func (g *HTTPGateway) FetchPubkeyByTag(ctx context.Context, tag [32]byte) ([]byte, error) {
	q := url.Values{}
	q.Set("tag", base64.StdEncoding.EncodeToString(tag[:]))
	return g.fetchPubkey(ctx, q)
}

// FetchPubkeyByRipe looks up a v<4 pubkey object by its 20-byte ripe hash.
func (g *HTTPGateway) FetchPubkeyByRipe(ctx context.Context, ripe [20]byte) ([]byte, error) {
	q := url.Values{}
	q.Set("ripe", base64.StdEncoding.EncodeToString(ripe[:]))
	return g.fetchPubkey(ctx, q)
}

// PollMessages fetches objects addressed to addr since the given Unix
// timestamp; the Periodic Driver calls this on its polling interval.
func (g *HTTPGateway) PollMessages(ctx context.Context, addr Address, since int64) ([][]byte, error) {
	q := url.Values{}
	q.Set("address", addr.String())
	q.Set("since", fmt.Sprintf("%d", since))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, newErr(KindNetworkError, "gateway.PollMessages", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, newErr(KindNetworkError, "gateway.PollMessages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newErr(KindNetworkError, "gateway.PollMessages", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var decoded pollMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, newErr(KindMalformed, "gateway.PollMessages", err)
	}

	out := make([][]byte, 0, len(decoded.Objects))
	for _, s := range decoded.Objects {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, newErr(KindMalformed, "gateway.PollMessages", err)
		}
		out = append(out, raw)
	}
	return out, nil
}
