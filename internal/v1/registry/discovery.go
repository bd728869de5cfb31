package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/pier0x/bottel/internal/v1/engine"
	"github.com/pier0x/bottel/internal/v1/store"
)

// RoomSummary is the discovery view of a room; live counts come from the
// engines' atomic counters, never from inside the engines themselves.
type RoomSummary struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Participants int    `json:"participants"`
	Spectators   int    `json:"spectators"`
	IsPublic     bool   `json:"isPublic"`
}

func summarize(r *engine.Room) RoomSummary {
	rec := r.Record()
	return RoomSummary{
		ID:           rec.ID,
		Slug:         rec.Slug,
		Name:         rec.Name,
		Description:  rec.Description,
		Participants: r.ParticipantCount(),
		Spectators:   r.SpectatorCount(),
		IsPublic:     rec.IsPublic,
	}
}

func summarizeRecord(rec *store.Room) RoomSummary {
	return RoomSummary{
		ID:          rec.ID,
		Slug:        rec.Slug,
		Name:        rec.Name,
		Description: rec.Description,
		IsPublic:    rec.IsPublic,
	}
}

// loadedSnapshot copies the engine list out from under the lock.
func (reg *Registry) loadedSnapshot() []*engine.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rooms := make([]*engine.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// ActiveRooms lists the canonical room plus every loaded room with at least
// one participant, most crowded first. When the canonical room is not
// loaded its entry is synthesized from persistence with zero counts.
func (reg *Registry) ActiveRooms(ctx context.Context) ([]RoomSummary, error) {
	var summaries []RoomSummary
	canonicalSeen := false
	for _, r := range reg.loadedSnapshot() {
		isCanonical := r.Slug() == reg.opts.CanonicalSlug
		if !isCanonical && r.ParticipantCount() == 0 {
			continue
		}
		canonicalSeen = canonicalSeen || isCanonical
		summaries = append(summaries, summarize(r))
	}

	if !canonicalSeen {
		rec, err := reg.store.FindRoomBySlug(ctx, reg.opts.CanonicalSlug)
		switch {
		case err == nil:
			summaries = append(summaries, summarizeRecord(rec))
		case errors.Is(err, store.ErrNotFound):
			// Nothing to synthesize; startup creates it on the next boot.
		default:
			return nil, err
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		aCanonicalEmpty := a.Slug == reg.opts.CanonicalSlug && a.Participants == 0
		bCanonicalEmpty := b.Slug == reg.opts.CanonicalSlug && b.Participants == 0
		if aCanonicalEmpty != bCanonicalEmpty {
			return aCanonicalEmpty
		}
		return a.Participants > b.Participants
	})
	return summaries, nil
}

// MostWatchedRooms lists loaded rooms ordered by spectator count.
func (reg *Registry) MostWatchedRooms() []RoomSummary {
	var summaries []RoomSummary
	for _, r := range reg.loadedSnapshot() {
		if r.SpectatorCount() > 0 {
			summaries = append(summaries, summarize(r))
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Spectators > summaries[j].Spectators
	})
	return summaries
}

// Search matches the query case-insensitively against public room names,
// loaded and persisted, and against room-owner usernames. Results are
// deduplicated by room id.
func (reg *Registry) Search(ctx context.Context, query string) ([]RoomSummary, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var results []RoomSummary
	add := func(s RoomSummary) {
		if !seen[s.ID] {
			seen[s.ID] = true
			results = append(results, s)
		}
	}

	loadedByID := make(map[string]*engine.Room)
	for _, r := range reg.loadedSnapshot() {
		loadedByID[r.ID()] = r
		if r.Record().IsPublic && strings.Contains(strings.ToLower(r.Name()), q) {
			add(summarize(r))
		}
	}

	persisted, err := reg.store.ListPublicRooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range persisted {
		rec := &persisted[i]
		nameMatch := strings.Contains(strings.ToLower(rec.Name), q)
		ownerMatch := false
		if !nameMatch && rec.OwnerID != nil {
			owner, uerr := reg.store.FindUserByID(ctx, *rec.OwnerID)
			if uerr == nil {
				ownerMatch = strings.Contains(strings.ToLower(owner.Username), q)
			} else if !errors.Is(uerr, store.ErrNotFound) {
				slog.Warn("failed to resolve owner during search", "room", rec.Slug, "error", uerr)
			}
		}
		if !nameMatch && !ownerMatch {
			continue
		}
		if r, ok := loadedByID[rec.ID]; ok {
			add(summarize(r))
		} else {
			add(summarizeRecord(rec))
		}
	}
	return results, nil
}
