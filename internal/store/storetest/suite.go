// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/flemzord/filebot/internal/store"
)

// RunRegistry exercises a Registry implementation. newRegistry must return
// an empty registry on every call.
func RunRegistry(t *testing.T, newRegistry func(t *testing.T) store.Registry) {
	t.Helper()
	ctx := context.Background()

	t.Run("channels by kind", func(t *testing.T) {
		r := newRegistry(t)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1001, Kind: store.KindDB, Title: "Movies", AddedAt: base}))
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1002, Kind: store.KindSub, Username: "news", AddedAt: base.Add(time.Second)}))
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1003, Kind: store.KindDB, Title: "Series", AddedAt: base.Add(2 * time.Second)}))

		dbs, err := r.Channels(ctx, store.KindDB)
		mustNil(t, err)
		if len(dbs) != 2 || dbs[0].ID != -1001 || dbs[1].ID != -1003 {
			t.Fatalf("db channels = %+v", dbs)
		}
		subs, err := r.Channels(ctx, store.KindSub)
		mustNil(t, err)
		if len(subs) != 1 || subs[0].Username != "news" {
			t.Fatalf("sub channels = %+v", subs)
		}

		if err := r.RemoveChannel(ctx, -1001, store.KindSub); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("RemoveChannel wrong kind = %v, want ErrNotFound", err)
		}
		mustNil(t, r.RemoveChannel(ctx, -1001, store.KindDB))
		if err := r.RemoveChannel(ctx, -1001, store.KindDB); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second RemoveChannel = %v, want ErrNotFound", err)
		}
		dbs, _ = r.Channels(ctx, store.KindDB)
		if len(dbs) != 1 {
			t.Errorf("db channels after remove = %d, want 1", len(dbs))
		}
	})

	t.Run("channel in both sets", func(t *testing.T) {
		r := newRegistry(t)
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1001, Kind: store.KindDB, Title: "Movies", AddedAt: base}))
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1001, Kind: store.KindSub, Title: "Movies", AddedAt: base.Add(time.Second)}))
		mustNil(t, r.AddChannel(ctx, store.Channel{ID: -1001, Kind: store.KindDB, Title: "Movies HD", AddedAt: base.Add(time.Hour)}))

		dbs, err := r.Channels(ctx, store.KindDB)
		mustNil(t, err)
		if len(dbs) != 1 || dbs[0].Title != "Movies HD" || !dbs[0].AddedAt.Equal(base) {
			t.Fatalf("db channels = %+v", dbs)
		}
		subs, err := r.Channels(ctx, store.KindSub)
		mustNil(t, err)
		if len(subs) != 1 || subs[0].ID != -1001 {
			t.Fatalf("sub channels = %+v", subs)
		}
		all, err := r.Channels(ctx, "")
		mustNil(t, err)
		if len(all) != 2 {
			t.Fatalf("all channels = %d, want 2", len(all))
		}

		mustNil(t, r.RemoveChannel(ctx, -1001, store.KindDB))
		subs, _ = r.Channels(ctx, store.KindSub)
		if len(subs) != 1 {
			t.Errorf("sub channels after removing db row = %d, want 1", len(subs))
		}
	})

	t.Run("admins", func(t *testing.T) {
		r := newRegistry(t)
		mustNil(t, r.AddAdmin(ctx, 9))
		mustNil(t, r.AddAdmin(ctx, 3))
		mustNil(t, r.AddAdmin(ctx, 9))
		admins, err := r.Admins(ctx)
		mustNil(t, err)
		if !slices.Equal(admins, []int64{3, 9}) {
			t.Errorf("admins = %v, want [3 9]", admins)
		}
		mustNil(t, r.RemoveAdmin(ctx, 3))
		if err := r.RemoveAdmin(ctx, 3); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("RemoveAdmin missing = %v, want ErrNotFound", err)
		}
	})

	t.Run("users", func(t *testing.T) {
		r := newRegistry(t)
		created, err := r.UpsertUser(ctx, store.User{ID: 1, Username: "a"})
		mustNil(t, err)
		if !created {
			t.Error("first upsert should report created")
		}
		created, err = r.UpsertUser(ctx, store.User{ID: 1, Username: "renamed"})
		mustNil(t, err)
		if created {
			t.Error("second upsert should not report created")
		}
		_, _ = r.UpsertUser(ctx, store.User{ID: 2})

		n, err := r.CountUsers(ctx)
		mustNil(t, err)
		if n != 2 {
			t.Errorf("CountUsers = %d, want 2", n)
		}
		users, _ := r.Users(ctx)
		if len(users) != 2 || users[0].Username != "renamed" {
			t.Errorf("users = %+v", users)
		}
		mustNil(t, r.RemoveUser(ctx, 2))
		if n, _ := r.CountUsers(ctx); n != 1 {
			t.Errorf("CountUsers after remove = %d, want 1", n)
		}
	})

	t.Run("covers", func(t *testing.T) {
		r := newRegistry(t)
		mustNil(t, r.SetCover(ctx, " Movie.mkv ", "photo-1"))
		got, err := r.Cover(ctx, "movie.MKV")
		mustNil(t, err)
		if got != "photo-1" {
			t.Errorf("Cover = %q, want photo-1", got)
		}
		mustNil(t, r.SetCover(ctx, "movie.mkv", "photo-2"))
		if got, _ := r.Cover(ctx, "movie.mkv"); got != "photo-2" {
			t.Errorf("Cover after overwrite = %q", got)
		}
		if _, err := r.Cover(ctx, "other"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Cover missing = %v, want ErrNotFound", err)
		}
		if n, _ := r.CountCovers(ctx); n != 1 {
			t.Errorf("CountCovers = %d, want 1", n)
		}
	})

	t.Run("batches", func(t *testing.T) {
		r := newRegistry(t)
		b := store.Batch{
			ID:         "abc123",
			Keyword:    "Season 1",
			ChannelID:  -1009,
			MessageIDs: []int{10, 11, 12},
			CreatedBy:  7,
			CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		mustNil(t, r.SaveBatch(ctx, b))

		got, err := r.Batch(ctx, "abc123")
		mustNil(t, err)
		if got.Keyword != "Season 1" || !slices.Equal(got.MessageIDs, []int{10, 11, 12}) || got.ChannelID != -1009 {
			t.Errorf("Batch = %+v", got)
		}
		byKw, err := r.BatchByKeyword(ctx, "season 1")
		mustNil(t, err)
		if byKw.ID != "abc123" {
			t.Errorf("BatchByKeyword = %+v", byKw)
		}
		if _, err := r.Batch(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Batch missing = %v, want ErrNotFound", err)
		}
		if _, err := r.BatchByKeyword(ctx, "season"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("BatchByKeyword partial = %v, want ErrNotFound", err)
		}
		if n, _ := r.CountBatches(ctx); n != 1 {
			t.Errorf("CountBatches = %d, want 1", n)
		}
	})
}

// RunIndex exercises an Index implementation.
func RunIndex(t *testing.T, newIndex func(t *testing.T) store.Index) {
	t.Helper()
	ctx := context.Background()

	seed := func(t *testing.T, x store.Index) {
		t.Helper()
		docs := []store.Document{
			{ChannelID: -1001, MessageID: 1, FileID: "f1", FileName: "The.Matrix.1999.mkv", FileSize: 1 << 30},
			{ChannelID: -1001, MessageID: 2, FileID: "f2", FileName: "Matrix.Reloaded.mkv", Caption: "sequel"},
			{ChannelID: -1001, MessageID: 3, FileID: "f3", FileName: "Inception.mp4", Caption: "Nolan matrix-free"},
			{ChannelID: -1002, MessageID: 1, FileID: "g1", FileName: "matrix_soundtrack.mp3"},
		}
		for _, d := range docs {
			mustNil(t, x.Add(ctx, d))
		}
	}

	t.Run("search per channel", func(t *testing.T) {
		x := newIndex(t)
		seed(t, x)

		got, err := x.Search(ctx, -1001, "matrix", 50)
		mustNil(t, err)
		if len(got) != 3 {
			t.Fatalf("Search(-1001, matrix) = %d docs, want 3: %+v", len(got), got)
		}
		for _, d := range got {
			if d.ChannelID != -1001 {
				t.Errorf("document from channel %d leaked into -1001 results", d.ChannelID)
			}
		}

		got, _ = x.Search(ctx, -1002, "MATRIX", 50)
		if len(got) != 1 || got[0].FileID != "g1" {
			t.Errorf("Search(-1002) = %+v", got)
		}
	})

	t.Run("all terms must match", func(t *testing.T) {
		x := newIndex(t)
		seed(t, x)
		got, err := x.Search(ctx, -1001, "matrix reloaded", 50)
		mustNil(t, err)
		if len(got) != 1 || got[0].MessageID != 2 {
			t.Errorf("Search(matrix reloaded) = %+v", got)
		}
	})

	t.Run("limit", func(t *testing.T) {
		x := newIndex(t)
		seed(t, x)
		got, err := x.Search(ctx, -1001, "matrix", 2)
		mustNil(t, err)
		if len(got) != 2 {
			t.Errorf("limited search returned %d docs, want 2", len(got))
		}
	})

	t.Run("replace and delete", func(t *testing.T) {
		x := newIndex(t)
		seed(t, x)
		mustNil(t, x.Add(ctx, store.Document{ChannelID: -1001, MessageID: 1, FileID: "f1b", FileName: "Renamed.mkv"}))
		if n, _ := x.Count(ctx); n != 4 {
			t.Errorf("Count after replace = %d, want 4", n)
		}
		got, _ := x.Search(ctx, -1001, "renamed", 10)
		if len(got) != 1 || got[0].FileID != "f1b" {
			t.Errorf("Search(renamed) = %+v", got)
		}

		removed, err := x.DeleteChannel(ctx, -1001)
		mustNil(t, err)
		if removed != 3 {
			t.Errorf("DeleteChannel removed %d, want 3", removed)
		}
		if n, _ := x.Count(ctx); n != 1 {
			t.Errorf("Count after delete = %d, want 1", n)
		}
	})

	t.Run("no match", func(t *testing.T) {
		x := newIndex(t)
		seed(t, x)
		got, err := x.Search(ctx, -1001, "zzz", 10)
		mustNil(t, err)
		if len(got) != 0 {
			t.Errorf("Search(zzz) = %+v, want none", got)
		}
	})
}

// RunSearchCache exercises a SearchCache implementation. advance moves the
// backend's clock forward.
func RunSearchCache(t *testing.T, c store.SearchCache, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	docs := []store.Document{{ChannelID: -1, MessageID: 5, FileName: "a.mkv", FileSize: 42}}
	mustNil(t, c.Put(ctx, 100, docs, time.Minute))

	got, err := c.Get(ctx, 100)
	mustNil(t, err)
	if len(got) != 1 || got[0].FileName != "a.mkv" || got[0].FileSize != 42 {
		t.Fatalf("Get = %+v", got)
	}
	if _, err := c.Get(ctx, 200); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get unknown chat = %v, want ErrNotFound", err)
	}

	advance(2 * time.Minute)
	if _, err := c.Get(ctx, 100); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after expiry = %v, want ErrNotFound", err)
	}
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
