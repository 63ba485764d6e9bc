package giveaway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"giveawaybot/internal/storage"
	logx "giveawaybot/pkg/logx"
)

// DocumentName is the storage document holding every giveaway.
const DocumentName = "giveaways"

const documentVersion = 1

type document struct {
	Version   int                `json:"version"`
	Giveaways map[string]*Record `json:"giveaways"`
}

func encodeRecords(records map[string]*Record) ([]byte, error) {
	return json.MarshalIndent(document{Version: documentVersion, Giveaways: records}, "", "  ")
}

// decodeRecords parses a stored document. Unusable records are
// skipped and counted in dropped.
func decodeRecords(b []byte) (records map[string]*Record, dropped int, err error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if doc.Version > documentVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorruptStore, doc.Version)
	}
	records = make(map[string]*Record, len(doc.Giveaways))
	for id, rec := range doc.Giveaways {
		if rec == nil || !rec.normalize(id) {
			dropped++
			continue
		}
		records[id] = rec
	}
	return records, dropped, nil
}

// LoadRecords reads the giveaway document. A missing document is an empty
// store; a malformed one yields ErrCorruptStore.
func LoadRecords(ctx context.Context, st storage.Store) (map[string]*Record, int, error) {
	b, err := st.Load(ctx, DocumentName)
	if errors.Is(err, storage.ErrNotExist) {
		return map[string]*Record{}, 0, nil
	}
	if err != nil {
		return nil, 0, storeErr("load", err)
	}
	return decodeRecords(b)
}

// quarantine keeps a copy of an unreadable document so the next save does
// not destroy the only evidence.
func quarantine(ctx context.Context, st storage.Store, now time.Time, log logx.Logger) {
	b, err := st.Load(ctx, DocumentName)
	if err != nil {
		return
	}
	name := DocumentName + "-corrupt-" + strconv.FormatInt(now.Unix(), 10)
	if err := st.Save(ctx, name, b); err != nil {
		log.Error("quarantine of corrupt store failed", logx.Err(err))
		return
	}
	log.Warn("corrupt store quarantined", logx.String("document", name))
}
