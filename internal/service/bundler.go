package service

import (
	"slices"

	"github.com/staffhub/notifications/internal/domain"
)

// BundleResult is the outcome of bundling legacy rows
type BundleResult struct {
	Bundled   []domain.BundledNotification `json:"bundled"`
	DeleteIDs []int64                      `json:"deleteIds"`
}

type bundleKey struct {
	receiverID string
	targetID   string
	kind       string
	content    string
}

// Bundle groups legacy rows by (receiver, target, type, content). The first
// row of each group survives with the sorted union of actor names; every
// other row id is returned for deletion. Groups keep the order of their
// first row. Bundle does not touch the store.
func Bundle(rows []domain.LegacyNotification) BundleResult {
	result := BundleResult{
		Bundled:   []domain.BundledNotification{},
		DeleteIDs: []int64{},
	}

	index := make(map[bundleKey]int)
	for _, row := range rows {
		key := bundleKey{row.ReceiverID, row.TargetID, row.Type, row.Content}

		i, seen := index[key]
		if !seen {
			index[key] = len(result.Bundled)
			result.Bundled = append(result.Bundled, domain.BundledNotification{
				ID:             row.ID,
				ReceiverID:     row.ReceiverID,
				TargetID:       row.TargetID,
				Type:           row.Type,
				Content:        row.Content,
				ActorUsernames: addActors(nil, row.ActorUsernames),
				Count:          1,
				IsRead:         row.IsRead,
				CreatedAt:      row.CreatedAt,
			})
			continue
		}

		b := &result.Bundled[i]
		b.ActorUsernames = addActors(b.ActorUsernames, row.ActorUsernames)
		b.Count++
		b.IsRead = b.IsRead && row.IsRead
		result.DeleteIDs = append(result.DeleteIDs, row.ID)
	}

	for i := range result.Bundled {
		slices.Sort(result.Bundled[i].ActorUsernames)
	}

	return result
}

func addActors(set, names []string) []string {
	if set == nil {
		set = []string{}
	}
	for _, name := range names {
		if name != "" && !slices.Contains(set, name) {
			set = append(set, name)
		}
	}
	return set
}
