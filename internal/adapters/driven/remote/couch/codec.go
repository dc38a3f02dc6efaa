package couch

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// wireAttachment is CouchDB's inline attachment shape.
type wireAttachment struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data,omitempty"`
	RevPos      int64  `json:"revpos,omitempty"`
	Stub        bool   `json:"stub,omitempty"`
}

// decodeDoc converts a wire document into a RemoteDocument, stripping the
// underscore-prefixed metadata fields out of the body.
func decodeDoc(raw map[string]any) (*domain.RemoteDocument, error) {
	doc := &domain.RemoteDocument{}
	body := make(map[string]any, len(raw))

	for k, v := range raw {
		switch k {
		case "_id":
			doc.ID, _ = v.(string)
		case "_rev":
			doc.Rev, _ = v.(string)
		case "_deleted":
			doc.Deleted, _ = v.(bool)
		case "_attachments":
			atts, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("malformed _attachments")
			}
			names := make([]string, 0, len(atts))
			for name := range atts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				meta, ok := atts[name].(map[string]any)
				if !ok {
					return nil, fmt.Errorf("malformed attachment %s", name)
				}
				att := domain.Attachment{Name: name}
				att.ContentType, _ = meta["content_type"].(string)
				if revpos, ok := meta["revpos"].(float64); ok {
					att.RevPos = int64(revpos)
				}
				if enc, ok := meta["data"].(string); ok {
					data, err := base64.StdEncoding.DecodeString(enc)
					if err != nil {
						return nil, fmt.Errorf("decoding attachment %s: %w", name, err)
					}
					att.Data = data
				}
				doc.Attachments = append(doc.Attachments, att)
			}
		default:
			body[k] = v
		}
	}

	doc.Body = body
	return doc, nil
}

// encodeDoc converts a RemoteDocument into CouchDB's wire shape. doc.Rev is
// included only when set; attachments travel inline, base64-encoded.
func encodeDoc(doc *domain.RemoteDocument) map[string]any {
	out := make(map[string]any, len(doc.Body)+4)
	for k, v := range doc.Body {
		out[k] = v
	}
	out["_id"] = doc.ID
	if doc.Rev != "" {
		out["_rev"] = doc.Rev
	}
	if doc.Deleted {
		out["_deleted"] = true
	}
	if len(doc.Attachments) > 0 {
		atts := make(map[string]wireAttachment, len(doc.Attachments))
		for _, att := range doc.Attachments {
			atts[att.Name] = wireAttachment{
				ContentType: att.ContentType,
				Data:        base64.StdEncoding.EncodeToString(att.Data),
				RevPos:      att.RevPos,
			}
		}
		out["_attachments"] = atts
	}
	return out
}
