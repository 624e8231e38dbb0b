package library_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/library"
	"github.com/JakeFAU/tubeshelf/internal/progress"
	queueMemory "github.com/JakeFAU/tubeshelf/internal/queue/memory"
	storageMemory "github.com/JakeFAU/tubeshelf/internal/storage/memory"
)

const (
	rickURL   = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	rickShort = "https://youtu.be/dQw4w9WgXcQ?si=share"
)

func TestSubmitCreatesPendingLink(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(context.Background(), rickShort, "Music", false)
	require.NoError(t, err)
	require.False(t, res.IsDuplicate)
	require.Equal(t, int64(1), res.Link.ID)
	require.Equal(t, rickURL, res.Link.NormalizedURL)
	require.Equal(t, rickShort, res.Link.OriginalURL)
	require.Equal(t, []string{"Music"}, res.Link.Categories)
	require.Equal(t, "Music", res.Link.PrimaryCategory)
	require.Equal(t, library.StatusPending, res.Link.MetadataStatus)
	require.Equal(t, f.clock.now, res.Link.CreatedAt)

	require.Equal(t, 1, f.queue.Len())
	items := f.lib.QueueSnapshot()
	require.Len(t, items, 1)
	require.Equal(t, library.QueueWaiting, items[0].Status)
	require.Equal(t, rickURL, items[0].NormalizedURL)

	require.Equal(t, []string{"Unsorted", "Music"}, f.lib.Categories())
	require.Equal(t, 1, f.store.Saves())

	events := f.events.all()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageQueued, events[0].Stage)
	require.Equal(t, int64(1), events[0].LinkID)
}

func TestSubmitBlankCategoryUsesDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(context.Background(), rickURL, "  ", false)
	require.NoError(t, err)
	require.Equal(t, []string{"Unsorted"}, res.Link.Categories)
}

func TestSubmitRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	_, err := f.lib.Submit(context.Background(), "https://www.youtube.com/@someone", "", false)
	require.ErrorIs(t, err, library.ErrInvalidURL)
	require.Empty(t, f.lib.Links())
	require.Zero(t, f.queue.Len())
	require.Zero(t, f.store.Saves())
}

func TestSubmitDuplicateBlockCategory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	_, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)

	_, err = f.lib.Submit(ctx, rickShort, "Music", false)
	require.ErrorIs(t, err, library.ErrCategoryConflict)

	res, err := f.lib.Submit(ctx, rickShort, "Later", false)
	require.NoError(t, err)
	require.True(t, res.IsDuplicate)
	require.Empty(t, res.Warning)
	require.Equal(t, []string{"Music", "Later"}, res.Link.Categories)
	require.Equal(t, "Music", res.Link.PrimaryCategory)

	res, err = f.lib.Submit(ctx, rickURL, "Music", true)
	require.NoError(t, err)
	require.True(t, res.IsDuplicate)
	require.Equal(t, []string{"Music", "Later"}, res.Link.Categories, "categories are a set")

	require.Len(t, f.lib.Links(), 1)
	require.Equal(t, 1, f.queue.Len(), "duplicates are never re-queued")
}

func TestSubmitDuplicateWarnGlobal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, func(s *library.Settings) { s.DuplicatePolicy = library.PolicyWarnGlobal })
	_, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)

	res, err := f.lib.Submit(ctx, rickShort, "Music", false)
	require.NoError(t, err)
	require.True(t, res.IsDuplicate)
	require.Equal(t, "link already exists in: Music", res.Warning)
	require.Equal(t, []string{"Music"}, res.Link.Categories)
}

func TestSubmitDuplicateAllowAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, func(s *library.Settings) { s.DuplicatePolicy = library.PolicyAllowAll })
	_, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)

	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	require.True(t, res.IsDuplicate)
	require.Empty(t, res.Warning)
	require.Equal(t, []string{"Music"}, res.Link.Categories)
}

func TestConcurrentSubmitsCollapse(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, func(s *library.Settings) { s.DuplicatePolicy = library.PolicyAllowAll })
	forms := []string{
		rickURL,
		rickShort,
		"http://m.youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
		"youtube.com/watch?v=dQw4w9WgXcQ",
	}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.lib.Submit(context.Background(), forms[i%len(forms)], "Music", false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	links := f.lib.Links()
	require.Len(t, links, 1)
	require.Equal(t, 1, f.queue.Len())
}

func TestGetDeleteNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	_, err := f.lib.Get(42)
	require.ErrorIs(t, err, library.ErrNotFound)
	require.ErrorIs(t, f.lib.Delete(ctx, 42), library.ErrNotFound)

	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	require.NoError(t, f.lib.Delete(ctx, res.Link.ID))
	_, err = f.lib.Get(res.Link.ID)
	require.ErrorIs(t, err, library.ErrNotFound)

	// The queued task outlives the link; the worker's BeginFetch sees it gone.
	_, err = f.lib.BeginFetch(ctx, res.Link.ID)
	require.ErrorIs(t, err, library.ErrNotFound)
	require.Empty(t, f.lib.QueueSnapshot())

	again, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	require.False(t, again.IsDuplicate)
	require.Equal(t, int64(2), again.Link.ID, "ids are never reused")
}

func TestChangeCategoryAndTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	_, err = f.lib.Submit(ctx, rickURL, "Later", false)
	require.NoError(t, err)

	link, err := f.lib.ChangeCategory(ctx, res.Link.ID, "Talks")
	require.NoError(t, err)
	require.Equal(t, "Talks", link.PrimaryCategory)
	require.Equal(t, []string{"Later", "Talks"}, link.Categories)
	require.Contains(t, f.lib.Categories(), "Talks")

	_, err = f.lib.ChangeCategory(ctx, res.Link.ID, " ")
	require.ErrorIs(t, err, library.ErrInvalidSettings)
	_, err = f.lib.ChangeCategory(ctx, 99, "Talks")
	require.ErrorIs(t, err, library.ErrNotFound)

	link, err = f.lib.UpdateTags(ctx, res.Link.ID, []string{" go ", "", "music"})
	require.NoError(t, err)
	require.Equal(t, []string{"go", "music"}, link.Tags)
	_, err = f.lib.UpdateTags(ctx, 99, nil)
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestAddCategory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	require.NoError(t, f.lib.AddCategory(ctx, "Cooking"))
	saves := f.store.Saves()
	require.NoError(t, f.lib.AddCategory(ctx, " Cooking "))
	require.Equal(t, saves, f.store.Saves(), "existing category is a no-op")
	require.ErrorIs(t, f.lib.AddCategory(ctx, ""), library.ErrInvalidSettings)
	require.Equal(t, []string{"Unsorted", "Cooking"}, f.lib.Categories())
}

func TestFetchLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	id := res.Link.ID

	link, err := f.lib.BeginFetch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, library.StatusFetching, link.MetadataStatus)
	require.Equal(t, library.QueueFetching, f.lib.QueueSnapshot()[0].Status)

	link, err = f.lib.CompleteFetch(ctx, id, library.Metadata{
		Title:           "Never Gonna Give You Up",
		Author:          "Rick Astley",
		DurationSeconds: 213,
		Duration:        "3:33",
	})
	require.NoError(t, err)
	require.Equal(t, library.StatusDone, link.MetadataStatus)
	require.Equal(t, "Never Gonna Give You Up", link.Title)
	require.NotNil(t, link.LastRefreshed)
	require.Equal(t, f.clock.now, *link.LastRefreshed)
	require.Equal(t, library.QueueDone, f.lib.QueueSnapshot()[0].Status)

	// A later attempt that yields less keeps what is already known.
	link, err = f.lib.CompleteFetch(ctx, id, library.Metadata{ThumbnailURL: "https://i.ytimg.com/x.jpg"})
	require.NoError(t, err)
	require.Equal(t, "Never Gonna Give You Up", link.Title)
	require.Equal(t, "Rick Astley", link.Author)
	require.Equal(t, 213, link.DurationSeconds)
	require.Equal(t, "https://i.ytimg.com/x.jpg", link.ThumbnailURL)

	require.NoError(t, f.lib.FailFetch(ctx, id))
	link, err = f.lib.Get(id)
	require.NoError(t, err)
	require.Equal(t, library.StatusFailed, link.MetadataStatus)
	require.Equal(t, "Never Gonna Give You Up", link.Title, "failure keeps prior metadata")
	require.Equal(t, library.QueueFailed, f.lib.QueueSnapshot()[0].Status)

	_, err = f.lib.CompleteFetch(ctx, 99, library.Metadata{})
	require.ErrorIs(t, err, library.ErrNotFound)
	require.ErrorIs(t, f.lib.FailFetch(ctx, 99), library.ErrNotFound)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)

	_, err = f.lib.Refresh(ctx, res.Link.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.queue.Len(), "pending links are not queued twice")

	_, err = f.lib.BeginFetch(ctx, res.Link.ID)
	require.NoError(t, err)
	_, err = f.lib.CompleteFetch(ctx, res.Link.ID, library.Metadata{Title: "x"})
	require.NoError(t, err)

	link, err := f.lib.Refresh(ctx, res.Link.ID)
	require.NoError(t, err)
	require.Equal(t, library.StatusPending, link.MetadataStatus)
	require.Equal(t, 2, f.queue.Len())
	items := f.lib.QueueSnapshot()
	require.Len(t, items, 1, "one visibility record per link")
	require.Equal(t, library.QueueWaiting, items[0].Status)

	_, err = f.lib.Refresh(ctx, 99)
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestResumeRequeuesUnfinishedLinks(t *testing.T) {
	t.Parallel()

	snap := map[string]any{
		"next_id":    5,
		"categories": []string{"Music"},
		"links": []map[string]any{
			{"id": 1, "normalized_url": "https://www.youtube.com/watch?v=a", "categories": []string{"Music"}, "metadata_status": "pending"},
			{"id": 2, "normalized_url": "https://www.youtube.com/watch?v=b", "categories": []string{"Music"}, "metadata_status": "done", "title": "B"},
			{"id": 3, "normalized_url": "https://www.youtube.com/watch?v=c", "categories": []string{"Music"}, "metadata_status": "fetching"},
			{"id": 4, "normalized_url": "https://www.youtube.com/watch?v=d", "categories": []string{"Music"}, "metadata_status": "failed"},
		},
	}
	f := newFixture(t, mustJSON(t, snap), nil)
	ctx := context.Background()

	count, err := f.lib.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	var ids []int64
	for f.queue.Len() > 0 {
		task, err := f.queue.Dequeue(ctx)
		require.NoError(t, err)
		ids = append(ids, task.LinkID)
	}
	require.Equal(t, []int64{1, 3, 4}, ids)

	for _, id := range ids {
		link, err := f.lib.Get(id)
		require.NoError(t, err)
		require.Equal(t, library.StatusPending, link.MetadataStatus)
	}
	done, err := f.lib.Get(2)
	require.NoError(t, err)
	require.Equal(t, library.StatusDone, done.MetadataStatus)

	count, err = newFixture(t, nil, nil).lib.Resume(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestLegacySnapshotMigration(t *testing.T) {
	t.Parallel()

	snap := `{
  "next_id": 2,
  "categories": ["Music"],
  "links": [
    {"id": 3, "normalized_url": "https://www.youtube.com/watch?v=a", "category": "Music",
     "title": "(unknown)", "author": "(unknown)", "duration_seconds": 125},
    {"id": 7, "normalized_url": "https://www.youtube.com/watch?v=b", "category": "Talks", "title": "Known"},
    {"id": 8, "normalized_url": "https://www.youtube.com/watch?v=a", "category": "Dupes", "tags": ["live", "x"]},
    {"id": 9, "normalized_url": "https://www.youtube.com/watch?v=a", "categories": ["Music"], "tags": ["x"]}
  ]
}`
	f := newFixture(t, []byte(snap), nil)

	first, err := f.lib.Get(3)
	require.NoError(t, err)
	require.Equal(t, []string{"Music", "Dupes"}, first.Categories, "repeated URLs fold into the first entry")
	require.Equal(t, []string{"live", "x"}, first.Tags)
	require.Equal(t, "Music", first.PrimaryCategory)
	require.Empty(t, first.Title)
	require.Empty(t, first.Author)
	require.Equal(t, "2:05", first.Duration)
	require.Equal(t, library.StatusPending, first.MetadataStatus)
	require.NotNil(t, first.Tags)

	second, err := f.lib.Get(7)
	require.NoError(t, err)
	require.Equal(t, library.StatusDone, second.MetadataStatus)

	_, err = f.lib.Get(8)
	require.ErrorIs(t, err, library.ErrNotFound)
	require.Len(t, f.lib.Links(), 2)

	require.Equal(t, []string{"Music", "Talks", "Dupes", "Unsorted"}, f.lib.Categories())
	require.Equal(t, int64(8), f.lib.Draft().NextID, "next id stays above every kept id")
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := library.New(ctx, library.Options{Queue: queueMemory.NewQueue(), Defaults: defaultSettings()})
	require.Error(t, err)
	_, err = library.New(ctx, library.Options{Store: storageMemory.NewSnapshotStore(), Defaults: defaultSettings()})
	require.Error(t, err)

	bad := defaultSettings()
	bad.RateLimitPerMinute = 0
	_, err = library.New(ctx, library.Options{
		Store:    storageMemory.NewSnapshotStore(),
		Queue:    queueMemory.NewQueue(),
		Defaults: bad,
	})
	require.ErrorIs(t, err, library.ErrInvalidSettings)

	_, err = library.New(ctx, library.Options{
		Store:    storageMemory.NewSnapshotStoreWith([]byte("{not json")),
		Queue:    queueMemory.NewQueue(),
		Defaults: defaultSettings(),
	})
	require.Error(t, err)
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	perSecond := 2
	policy := library.PolicyWarnGlobal
	category := "Inbox"
	settings, err := f.lib.UpdateSettings(ctx, library.SettingsPatch{
		RateLimitPerSecond: &perSecond,
		DuplicatePolicy:    &policy,
		DefaultCategory:    &category,
	})
	require.NoError(t, err)
	require.Equal(t, 2, settings.RateLimitPerSecond)
	require.Equal(t, 150, settings.RateLimitPerMinute)
	require.Equal(t, library.PolicyWarnGlobal, settings.DuplicatePolicy)
	require.Contains(t, f.lib.Categories(), "Inbox")

	ps, pm := f.lib.Limits()
	require.Equal(t, 2, ps)
	require.Equal(t, 150, pm)

	zero := 0
	_, err = f.lib.UpdateSettings(ctx, library.SettingsPatch{RateLimitPerMinute: &zero})
	require.ErrorIs(t, err, library.ErrInvalidSettings)
	unknown := library.DuplicatePolicy("sometimes")
	_, err = f.lib.UpdateSettings(ctx, library.SettingsPatch{DuplicatePolicy: &unknown})
	require.ErrorIs(t, err, library.ErrInvalidSettings)
	require.Equal(t, 2, f.lib.Settings().RateLimitPerSecond, "rejected patches change nothing")

	// Saved settings override configured defaults on the next start.
	data, err := f.store.Load(ctx)
	require.NoError(t, err)
	reopened := newFixture(t, data, nil)
	require.Equal(t, 2, reopened.lib.Settings().RateLimitPerSecond)
	require.Equal(t, "Inbox", reopened.lib.Settings().DefaultCategory)
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	f.store.FailWith(errors.New("disk full"))

	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.ErrorIs(t, err, library.ErrPersist)
	require.Equal(t, rickURL, res.Link.NormalizedURL)
	_, err = f.lib.Get(res.Link.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.lib.Save(ctx), library.ErrPersist)

	f.store.FailWith(nil)
	require.NoError(t, f.lib.Save(ctx))
}

func TestEnqueueFailureLeavesLinkPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, nil)
	f.queue.Close()

	res, err := f.lib.Submit(context.Background(), rickURL, "Music", false)
	require.NoError(t, err)
	require.Equal(t, library.StatusPending, res.Link.MetadataStatus)
	require.Empty(t, f.events.all(), "no queued event without a queued task")
}

func TestQueueHistoryIsBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixtureWith(t, nil, nil, 2)
	for _, u := range []string{
		"https://youtu.be/a",
		"https://youtu.be/b",
		"https://youtu.be/c",
	} {
		res, err := f.lib.Submit(ctx, u, "", false)
		require.NoError(t, err)
		_, err = f.lib.BeginFetch(ctx, res.Link.ID)
		require.NoError(t, err)
		_, err = f.lib.CompleteFetch(ctx, res.Link.ID, library.Metadata{})
		require.NoError(t, err)
	}
	items := f.lib.QueueSnapshot()
	require.Len(t, items, 2)
	require.Equal(t, int64(2), items[0].LinkID)
	require.Equal(t, int64(3), items[1].LinkID)
}

func TestExports(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	require.Empty(t, f.lib.ExportText())
	_, err := f.lib.Submit(ctx, "https://youtu.be/a", "", false)
	require.NoError(t, err)
	_, err = f.lib.Submit(ctx, "https://youtu.be/b?t=9", "", false)
	require.NoError(t, err)

	require.Equal(t,
		"https://www.youtube.com/watch?v=a\nhttps://www.youtube.com/watch?v=b&t=9",
		f.lib.ExportText())
	links := f.lib.ExportJSON()
	require.Len(t, links, 2)
	links[0].Categories[0] = "mutated"
	require.Equal(t, "Unsorted", f.lib.ExportJSON()[0].Categories[0], "exports are copies")
}

func TestDraftRoundTripsThroughSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil, nil)
	res, err := f.lib.Submit(ctx, rickURL, "Music", false)
	require.NoError(t, err)
	_, err = f.lib.UpdateTags(ctx, res.Link.ID, []string{"classic"})
	require.NoError(t, err)

	data, err := f.store.Load(ctx)
	require.NoError(t, err)
	reopened := newFixture(t, data, nil)

	before := f.lib.Draft()
	after := reopened.lib.Draft()
	require.Equal(t, before.NextID, after.NextID)
	require.Equal(t, before.Categories, after.Categories)
	require.Equal(t, before.Links, after.Links)
	require.Equal(t, before.Config, after.Config)
}

// --- helpers/fakes ---

type fixture struct {
	lib    *library.Library
	store  *storageMemory.SnapshotStore
	queue  *queueMemory.Queue
	clock  *fakeClock
	events *recordingEmitter
}

func newFixture(t *testing.T, snapshot []byte, tweak func(*library.Settings)) *fixture {
	t.Helper()
	return newFixtureWith(t, snapshot, tweak, 0)
}

func newFixtureWith(t *testing.T, snapshot []byte, tweak func(*library.Settings), history int) *fixture {
	t.Helper()
	store := storageMemory.NewSnapshotStore()
	if snapshot != nil {
		store = storageMemory.NewSnapshotStoreWith(snapshot)
	}
	settings := defaultSettings()
	if tweak != nil {
		tweak(&settings)
	}
	f := &fixture{
		store:  store,
		queue:  queueMemory.NewQueue(),
		clock:  &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		events: &recordingEmitter{},
	}
	lib, err := library.New(context.Background(), library.Options{
		Store:        f.store,
		Queue:        f.queue,
		Clock:        f.clock,
		Defaults:     settings,
		QueueHistory: history,
		Logger:       zap.NewNop(),
		Events:       f.events,
	})
	require.NoError(t, err)
	f.lib = lib
	return f
}

func defaultSettings() library.Settings {
	return library.Settings{
		RateLimitPerSecond: 20,
		RateLimitPerMinute: 150,
		DuplicatePolicy:    library.PolicyBlockCategory,
		DefaultCategory:    "Unsorted",
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
