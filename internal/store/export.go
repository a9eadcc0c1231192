package store

import (
	"context"
	"fmt"

	"github.com/rcliao/context-window/internal/model"
)

// SessionExport is the portable form of one session.
type SessionExport struct {
	Session  string          `json:"session"`
	Messages []model.Message `json:"messages"`
}

// Export returns the messages of one session of src, or of every session
// when id is empty.
func Export(ctx context.Context, src Sessions, id string) ([]SessionExport, error) {
	var ids []string
	if id != "" {
		ids = []string{id}
	} else {
		sessions, err := src.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range sessions {
			ids = append(ids, info.ID)
		}
	}

	var out []SessionExport
	for _, sid := range ids {
		msgs, err := src.Session(sid).LoadMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", sid, err)
		}
		out = append(out, SessionExport{Session: sid, Messages: msgs})
	}
	return out, nil
}

// Import stores exported sessions. Messages whose ids already exist are
// replaced, so importing the same export twice is idempotent.
func Import(ctx context.Context, dst Sessions, exports []SessionExport) (int, error) {
	imported := 0
	for _, e := range exports {
		if err := dst.Session(e.Session).SaveMessages(ctx, e.Messages); err != nil {
			return imported, fmt.Errorf("import %s: %w", e.Session, err)
		}
		imported += len(e.Messages)
	}
	return imported, nil
}
