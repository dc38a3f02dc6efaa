package couch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludex-app/ludex/internal/core/domain"
)

func testReplica(t *testing.T, handler http.Handler) *Replica {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r := NewFactory().Open(srv.URL, "ludex-game", &domain.Credentials{Username: "alice", Password: "secret"})
	return r.(*Replica)
}

func TestReplica_Ensure_Creates(t *testing.T) {
	var gotAuth bool
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/ludex-game", req.URL.Path)
		user, pass, ok := req.BasicAuth()
		gotAuth = ok && user == "alice" && pass == "secret"
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	require.NoError(t, r.Ensure(context.Background()))
	assert.True(t, gotAuth)
}

func TestReplica_Ensure_ToleratesExisting(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
		w.Write([]byte(`{"error":"file_exists"}`))
	}))

	assert.NoError(t, r.Ensure(context.Background()))
}

func TestReplica_Ensure_Denied(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	assert.ErrorIs(t, r.Ensure(context.Background()), domain.ErrDenied)
}

func TestReplica_Info(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/ludex-game", req.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"doc_count": 12,
			"sizes":     map[string]any{"file": 4096, "external": 1024},
		})
	}))

	info, err := r.Info(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 12, info.DocCount)
	assert.EqualValues(t, 4096, info.FileSize)
	assert.EqualValues(t, 1024, info.DiskAlloc)
}

func TestReplica_Changes_DecodesDocsAndAttachments(t *testing.T) {
	payload := map[string]any{
		"results": []any{
			map[string]any{
				"id":  "g1",
				"seq": "2-feed",
				"doc": map[string]any{
					"_id":  "g1",
					"_rev": "2-abc",
					"name": "Foo",
					"_attachments": map[string]any{
						"cover": map[string]any{
							"content_type": "image/png",
							"revpos":       2,
							"data":         base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
						},
					},
				},
			},
			map[string]any{
				"id":      "g2",
				"seq":     "3-feed",
				"deleted": true,
				"doc": map[string]any{
					"_id": "g2", "_rev": "3-def", "_deleted": true,
				},
			},
		},
		"last_seq": "3-feed",
	}

	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/ludex-game/_changes", req.URL.Path)
		q := req.URL.Query()
		assert.Equal(t, "true", q.Get("include_docs"))
		assert.Equal(t, "true", q.Get("attachments"))
		assert.Equal(t, "10-prev", q.Get("since"))
		assert.Empty(t, q.Get("feed"))
		json.NewEncoder(w).Encode(payload)
	}))

	batch, err := r.Changes(context.Background(), "10-prev", false)
	require.NoError(t, err)
	assert.Equal(t, "3-feed", batch.LastSeq)
	require.Len(t, batch.Results, 2)

	first := batch.Results[0]
	assert.Equal(t, "g1", first.ID)
	require.NotNil(t, first.Doc)
	assert.Equal(t, "2-abc", first.Doc.Rev)
	assert.Equal(t, "Foo", first.Doc.Body["name"])
	require.Len(t, first.Doc.Attachments, 1)
	assert.Equal(t, "cover", first.Doc.Attachments[0].Name)
	assert.Equal(t, []byte{1, 2, 3}, first.Doc.Attachments[0].Data)
	assert.EqualValues(t, 2, first.Doc.Attachments[0].RevPos)

	second := batch.Results[1]
	assert.True(t, second.Deleted)
	require.NotNil(t, second.Doc)
	assert.True(t, second.Doc.Deleted)
}

func TestReplica_Changes_LongpollParams(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		assert.Equal(t, "longpoll", q.Get("feed"))
		assert.Equal(t, "25000", q.Get("timeout"))
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}, "last_seq": 42})
	}))

	batch, err := r.Changes(context.Background(), "", true)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	// Numeric sequences round-trip as text.
	assert.Equal(t, "42", batch.LastSeq)
}

func TestReplica_Get_NotFound(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplica_PutGet_RoundTrip(t *testing.T) {
	var stored map[string]any
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPut:
			assert.Equal(t, "/ludex-game/g1", req.URL.Path)
			require.NoError(t, json.NewDecoder(req.Body).Decode(&stored))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": "g1", "rev": "4-new"})
		case http.MethodGet:
			json.NewEncoder(w).Encode(stored)
		}
	}))
	ctx := context.Background()

	rev, err := r.Put(ctx, &domain.RemoteDocument{
		Document: domain.Document{ID: "g1", Rev: "3-old", Body: map[string]any{"name": "Foo"}},
		Attachments: []domain.Attachment{
			{Name: "cover", ContentType: "image/png", RevPos: 3, Data: []byte{9, 9}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "4-new", rev)

	assert.Equal(t, "g1", stored["_id"])
	assert.Equal(t, "3-old", stored["_rev"])
	atts := stored["_attachments"].(map[string]any)
	cover := atts["cover"].(map[string]any)
	assert.Equal(t, "image/png", cover["content_type"])

	doc, err := r.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Foo", doc.Body["name"])
	require.Len(t, doc.Attachments, 1)
	assert.Equal(t, []byte{9, 9}, doc.Attachments[0].Data)
	assert.NotContains(t, doc.Body, "_attachments")
}

func TestReplica_Put_Conflict(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	_, err := r.Put(context.Background(), &domain.RemoteDocument{
		Document: domain.Document{ID: "g1", Body: map[string]any{}},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReplica_Delete(t *testing.T) {
	r := testReplica(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodDelete, req.Method)
		assert.Equal(t, "/ludex-game/g1", req.URL.Path)
		assert.Equal(t, "3-old", req.URL.Query().Get("rev"))
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))

	assert.NoError(t, r.Delete(context.Background(), "g1", "3-old"))
}

func TestReplica_Unreachable(t *testing.T) {
	r := NewFactory().Open("http://127.0.0.1:1", "ludex-game", nil).(*Replica)

	err := r.Ensure(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnreachable)
}
