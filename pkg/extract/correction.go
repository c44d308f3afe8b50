package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/quillworks/quill/pkg/memory"
)

// NamingConventionFields is the allow-list of fields whose corrections also
// update the persistent naming-convention map. Corrections to any other
// field stay session-scoped.
var NamingConventionFields = map[string]bool{
	FieldEntityName: true,
	FieldIndustry:   true,
	FieldGeography:  true,
}

// RecordCorrection appends a human correction to the session's ephemeral
// correction list and, for allow-listed fields, records the corrected
// phrasing as an organizational naming convention.
func (e *Engine) RecordCorrection(ctx context.Context, sessionID string, c memory.Correction) {
	if e.mem == nil {
		return
	}

	if c.At.IsZero() {
		c.At = e.now().UTC()
	}

	e.mem.AppendSessionCorrection(ctx, sessionID, c, 0)

	if NamingConventionFields[c.Field] {
		e.mem.RecordNamingConvention(ctx, c.Field, c.Corrected)
	}

	e.logger.Debug("recorded correction",
		zap.String("session_id", sessionID),
		zap.String("field", c.Field),
	)
}

// BackfillAccuracy updates a stored extraction episode with its reviewed
// accuracy score.
func (e *Engine) BackfillAccuracy(ctx context.Context, episodeKey string, accuracy float64) {
	if e.mem == nil {
		return
	}

	item := e.mem.Episode(ctx, episodeKey)
	if item == nil {
		e.logger.Warn("extraction episode not found for accuracy backfill",
			zap.String("episode_key", episodeKey),
		)
		return
	}

	item.Value["accuracy"] = accuracy
	if item.Metadata == nil {
		item.Metadata = map[string]string{}
	}
	item.Metadata["reviewed"] = "true"
	e.mem.StoreEpisode(ctx, item.Key, item.Value, item.Metadata)
}
