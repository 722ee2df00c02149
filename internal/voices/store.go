package voices

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/narrator/internal/defra"
)

// DefraStore keeps the catalog in the Voice collection, one document per
// voice_id.
type DefraStore struct {
	client *defra.Client
}

func NewDefraStore(client *defra.Client) *DefraStore {
	return &DefraStore{client: client}
}

// Save upserts each voice by voice_id. It keeps going past a failed voice
// and reports the first error.
func (s *DefraStore) Save(ctx context.Context, vs []Voice) error {
	existing, err := s.List(ctx)
	if err != nil {
		return err
	}
	docs := make(map[string]string, len(existing))
	for _, v := range existing {
		docs[v.VoiceID] = v.DocID
	}

	var firstErr error
	for _, v := range vs {
		input := map[string]any{
			"voice_id":  v.VoiceID,
			"language":  v.Language,
			"gender":    v.Gender,
			"synced_at": v.SyncedAt.UTC().Format(time.RFC3339),
		}
		if id, ok := docs[v.VoiceID]; ok {
			err = s.client.Update(ctx, Collection, id, input)
		} else {
			_, err = s.client.Create(ctx, Collection, input)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to save voice %s: %w", v.VoiceID, err)
		}
	}
	return firstErr
}

func (s *DefraStore) List(ctx context.Context) ([]Voice, error) {
	docs, err := defra.NewQuery(Collection).
		Fields("_docID", "voice_id", "language", "gender", "synced_at").
		OrderBy("voice_id", defra.Ascending).
		Documents(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to query voices: %w", err)
	}

	out := make([]Voice, 0, len(docs))
	for _, doc := range docs {
		var v Voice
		v.DocID, _ = doc["_docID"].(string)
		v.VoiceID, _ = doc["voice_id"].(string)
		v.Language, _ = doc["language"].(string)
		v.Gender, _ = doc["gender"].(string)
		if ts, ok := doc["synced_at"].(string); ok {
			v.SyncedAt, _ = time.Parse(time.RFC3339, ts)
		}
		if v.VoiceID != "" {
			out = append(out, v)
		}
	}
	sortByID(out)
	return out, nil
}
