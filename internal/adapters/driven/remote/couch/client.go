// Package couch speaks the CouchDB replication surface over HTTP: database
// provisioning, the _changes feed and single-document reads and writes with
// inline attachments. Only the endpoints replication needs are implemented.
package couch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
)

// longpollTimeoutMS is the server-side wait of a longpoll _changes call.
// The HTTP client timeout stays above it so the server, not the client,
// ends an idle poll.
const (
	longpollTimeoutMS = 25000
	requestTimeout    = 40 * time.Second
)

var _ driven.RemoteFactory = (*Factory)(nil)

// Factory builds replicas sharing one HTTP client and rate limiter.
type Factory struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewFactory returns a factory with sane transport defaults. Requests
// across all replicas share a limiter so a burst of per-document puts does
// not flood the peer.
func NewFactory() *Factory {
	return &Factory{
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Open binds a replica to one database on the peer.
func (f *Factory) Open(baseURL, dbName string, auth *domain.Credentials) driven.RemoteReplica {
	return &Replica{
		base:    strings.TrimRight(baseURL, "/"),
		dbName:  dbName,
		auth:    auth,
		client:  f.client,
		limiter: f.limiter,
	}
}

// Replica is one database on a CouchDB-compatible peer.
type Replica struct {
	base    string
	dbName  string
	auth    *domain.Credentials
	client  *http.Client
	limiter *rate.Limiter
}

var _ driven.RemoteReplica = (*Replica)(nil)

func (r *Replica) Name() string { return r.dbName }

func (r *Replica) url(parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	segs = append(segs, url.PathEscape(r.dbName))
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return r.base + "/" + strings.Join(segs, "/")
}

func (r *Replica) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.auth != nil {
		req.SetBasicAuth(r.auth.Username, r.auth.Password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, domain.ErrUnreachable)
	}
	return resp, nil
}

// checkStatus maps HTTP status codes onto domain errors. The caller still
// owns the response body.
func checkStatus(resp *http.Response, context string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", context, domain.ErrDenied)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", context, domain.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", context, domain.ErrConflict)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", context, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}

// Ensure provisions the remote database, tolerating one that already
// exists.
func (r *Replica) Ensure(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodPut, r.base+"/"+url.PathEscape(r.dbName), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 412 is CouchDB's "database exists".
	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	return checkStatus(resp, "creating database "+r.dbName)
}

// Info fetches database statistics.
func (r *Replica) Info(ctx context.Context) (*driven.RemoteInfo, error) {
	resp, err := r.do(ctx, http.MethodGet, r.base+"/"+url.PathEscape(r.dbName), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "reading info of "+r.dbName); err != nil {
		return nil, err
	}

	var body struct {
		DocCount int64 `json:"doc_count"`
		Sizes    struct {
			File     int64 `json:"file"`
			External int64 `json:"external"`
		} `json:"sizes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding info of %s: %w", r.dbName, err)
	}
	return &driven.RemoteInfo{
		DocCount:  body.DocCount,
		FileSize:  body.Sizes.File,
		DiskAlloc: body.Sizes.External,
	}, nil
}

// Changes reads the change feed after since. With longpoll set the server
// holds the request until a change arrives or the feed timeout elapses.
func (r *Replica) Changes(ctx context.Context, since string, longpoll bool) (*driven.RemoteChanges, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	q.Set("include_docs", "true")
	q.Set("attachments", "true")
	q.Set("style", "main_only")
	if longpoll {
		q.Set("feed", "longpoll")
		q.Set("timeout", fmt.Sprint(longpollTimeoutMS))
	}

	resp, err := r.do(ctx, http.MethodGet, r.url("_changes")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "reading changes of "+r.dbName); err != nil {
		return nil, err
	}

	var body struct {
		Results []struct {
			ID      string          `json:"id"`
			Seq     json.RawMessage `json:"seq"`
			Deleted bool            `json:"deleted"`
			Doc     map[string]any  `json:"doc"`
		} `json:"results"`
		LastSeq json.RawMessage `json:"last_seq"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding changes of %s: %w", r.dbName, err)
	}

	out := &driven.RemoteChanges{LastSeq: rawSeq(body.LastSeq)}
	for _, res := range body.Results {
		change := driven.RemoteChange{
			ID:      res.ID,
			Seq:     rawSeq(res.Seq),
			Deleted: res.Deleted,
		}
		if res.Doc != nil {
			doc, err := decodeDoc(res.Doc)
			if err != nil {
				return nil, fmt.Errorf("decoding change %s: %w", res.ID, err)
			}
			change.Doc = doc
		}
		out.Results = append(out.Results, change)
	}
	return out, nil
}

// rawSeq keeps a remote sequence opaque: CouchDB 1.x emits numbers, 2.x
// emits strings. Either way it round-trips as text.
func rawSeq(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err == nil {
			return unquoted
		}
	}
	return s
}

// Get fetches one document with inline attachments.
func (r *Replica) Get(ctx context.Context, id string) (*domain.RemoteDocument, error) {
	resp, err := r.do(ctx, http.MethodGet, r.url(id)+"?attachments=true", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "reading "+r.dbName+"/"+id); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", r.dbName, id, err)
	}
	return decodeDoc(raw)
}

// Put writes one document with inline attachments.
func (r *Replica) Put(ctx context.Context, doc *domain.RemoteDocument) (string, error) {
	payload, err := json.Marshal(encodeDoc(doc))
	if err != nil {
		return "", fmt.Errorf("encoding %s/%s: %w", r.dbName, doc.ID, err)
	}

	resp, err := r.do(ctx, http.MethodPut, r.url(doc.ID), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "writing "+r.dbName+"/"+doc.ID); err != nil {
		return "", err
	}

	var body struct {
		Rev string `json:"rev"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding write response for %s: %w", doc.ID, err)
	}
	return body.Rev, nil
}

// Delete tombstones a remote document at the given revision.
func (r *Replica) Delete(ctx context.Context, id, rev string) error {
	resp, err := r.do(ctx, http.MethodDelete, r.url(id)+"?rev="+url.QueryEscape(rev), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "deleting "+r.dbName+"/"+id)
}
