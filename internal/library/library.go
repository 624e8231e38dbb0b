package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/clock/system"
	"github.com/JakeFAU/tubeshelf/internal/progress"
)

const defaultQueueHistory = 200

// Options wires a Library to its collaborators.
type Options struct {
	Store    SnapshotStore
	Queue    Queue
	Clock    Clock
	Defaults Settings
	// QueueHistory bounds how many finished QueueItems stay visible.
	QueueHistory int
	Logger       *zap.Logger
	// Events receives an ENRICH_QUEUED event per enqueue. Optional.
	Events progress.Emitter
}

// Library is the authoritative link collection. It owns every Link, the
// category list, runtime settings and the queue visibility records, and
// snapshots the whole state after each mutation.
//
// All methods are safe for concurrent use; normalize, lookup and insert run
// under one lock so concurrent duplicate submissions collapse into one Link.
type Library struct {
	mu sync.Mutex

	store   SnapshotStore
	queue   Queue
	clock   Clock
	logger  *zap.Logger
	events  progress.Emitter
	history int

	nextID     int64
	categories []string
	links      map[int64]*Link
	order      []int64
	byURL      map[string]int64
	settings   Settings
	queueItems []QueueItem
}

// New builds a Library from the snapshot held by opts.Store, falling back to
// an empty collection when no snapshot exists yet.
func New(ctx context.Context, opts Options) (*Library, error) {
	if opts.Store == nil {
		return nil, errors.New("snapshot store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	defaults, err := validateSettings(opts.Defaults)
	if err != nil {
		return nil, err
	}
	l := &Library{
		store:    opts.Store,
		queue:    opts.Queue,
		clock:    opts.Clock,
		logger:   opts.Logger,
		events:   opts.Events,
		history:  opts.QueueHistory,
		nextID:   1,
		links:    make(map[int64]*Link),
		byURL:    make(map[string]int64),
		settings: defaults,
	}
	if l.clock == nil {
		l.clock = system.New()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.history <= 0 {
		l.history = defaultQueueHistory
	}

	data, err := opts.Store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		l.logger.Info("no snapshot found, starting empty library")
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		snap, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		l.restore(snap)
	}
	l.ensureCategory(l.settings.DefaultCategory)
	return l, nil
}

// Submit normalizes rawURL and files it under category. An existing link with
// the same canonical URL absorbs the category instead of creating a new link;
// under PolicyBlockCategory a repeat in the same category is a conflict unless
// force is set. Only newly created links are queued for enrichment.
func (l *Library) Submit(ctx context.Context, rawURL, category string, force bool) (SubmitResult, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return SubmitResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	category = strings.TrimSpace(category)
	if category == "" {
		category = l.settings.DefaultCategory
	}

	if id, ok := l.byURL[normalized]; ok {
		link := l.links[id]
		policy := l.settings.DuplicatePolicy
		if link.HasCategory(category) && policy == PolicyBlockCategory && !force {
			return SubmitResult{}, fmt.Errorf("%w: %q", ErrCategoryConflict, category)
		}
		others := cloneStrings(link.Categories)
		if !link.HasCategory(category) {
			link.Categories = append(link.Categories, category)
		}
		if link.PrimaryCategory == "" {
			link.PrimaryCategory = category
		}
		l.ensureCategory(category)
		result := SubmitResult{Link: link.clone(), IsDuplicate: true}
		if policy == PolicyWarnGlobal && len(others) > 0 {
			result.Warning = "link already exists in: " + strings.Join(others, ", ")
		}
		l.logger.Info("duplicate link merged",
			zap.Int64("link_id", id),
			zap.String("url", normalized),
			zap.String("category", category),
		)
		return result, l.persistLocked(ctx)
	}

	now := l.clock.Now()
	link := &Link{
		ID:              l.nextID,
		OriginalURL:     strings.TrimSpace(rawURL),
		NormalizedURL:   normalized,
		Categories:      []string{category},
		PrimaryCategory: category,
		Tags:            []string{},
		MetadataStatus:  StatusPending,
		CreatedAt:       now,
	}
	l.nextID++
	l.insert(link)
	l.ensureCategory(category)
	l.enqueueLocked(ctx, link)
	l.logger.Info("link created",
		zap.Int64("link_id", link.ID),
		zap.String("url", normalized),
		zap.String("category", category),
	)
	return SubmitResult{Link: link.clone()}, l.persistLocked(ctx)
}

// Get returns a copy of the link with the given id.
func (l *Library) Get(id int64) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		return Link{}, notFound(id)
	}
	return link.clone(), nil
}

// Links returns copies of all links in creation order.
func (l *Library) Links() []Link {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.linksLocked()
}

// ChangeCategory moves a link from its primary category to category.
func (l *Library) ChangeCategory(ctx context.Context, id int64, category string) (Link, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return Link{}, fmt.Errorf("%w: category is required", ErrInvalidSettings)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		return Link{}, notFound(id)
	}
	if link.PrimaryCategory != category {
		link.Categories = removeString(link.Categories, link.PrimaryCategory)
	}
	if !link.HasCategory(category) {
		link.Categories = append(link.Categories, category)
	}
	link.PrimaryCategory = category
	l.ensureCategory(category)
	return link.clone(), l.persistLocked(ctx)
}

// UpdateTags replaces the link's tags.
func (l *Library) UpdateTags(ctx context.Context, id int64, tags []string) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		return Link{}, notFound(id)
	}
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	link.Tags = cleaned
	return link.clone(), l.persistLocked(ctx)
}

// Delete removes a link. Queued work for it is dropped when dequeued.
func (l *Library) Delete(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		return notFound(id)
	}
	delete(l.links, id)
	delete(l.byURL, link.NormalizedURL)
	l.order = removeID(l.order, id)
	l.logger.Info("link deleted", zap.Int64("link_id", id))
	return l.persistLocked(ctx)
}

// AddCategory appends name to the category list if it is new.
func (l *Library) AddCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalidSettings)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ensureCategory(name) {
		return nil
	}
	return l.persistLocked(ctx)
}

// Categories returns the ordered category list.
func (l *Library) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneStrings(l.categories)
}

// Refresh re-queues a finished link for enrichment. Links already pending or
// fetching are left alone so at most one attempt per link is in flight.
func (l *Library) Refresh(ctx context.Context, id int64) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		return Link{}, notFound(id)
	}
	switch link.MetadataStatus {
	case StatusPending, StatusFetching:
		return link.clone(), nil
	}
	l.enqueueLocked(ctx, link)
	return link.clone(), l.persistLocked(ctx)
}

// Resume re-queues every link left pending, failed or interrupted mid-fetch
// by a previous process. It is meant to run once at start.
func (l *Library) Resume(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, id := range l.order {
		link := l.links[id]
		switch link.MetadataStatus {
		case StatusPending, StatusFailed, StatusFetching:
			l.enqueueLocked(ctx, link)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	l.logger.Info("resumed enrichment queue", zap.Int("links", count))
	return count, l.persistLocked(ctx)
}

// BeginFetch moves a dequeued link to fetching. A link deleted since it was
// queued yields ErrNotFound and its queue record is dropped.
func (l *Library) BeginFetch(ctx context.Context, id int64) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		l.dropQueueItem(id)
		return Link{}, notFound(id)
	}
	link.MetadataStatus = StatusFetching
	l.setQueueStatus(id, QueueFetching)
	return link.clone(), l.persistLocked(ctx)
}

// CompleteFetch merges meta into the link and marks it done. Empty fields in
// meta leave stored values untouched.
func (l *Library) CompleteFetch(ctx context.Context, id int64, meta Metadata) (Link, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		l.dropQueueItem(id)
		return Link{}, notFound(id)
	}
	mergeMetadata(link, meta)
	now := l.clock.Now()
	link.LastRefreshed = &now
	link.MetadataStatus = StatusDone
	l.setQueueStatus(id, QueueDone)
	return link.clone(), l.persistLocked(ctx)
}

// FailFetch marks a link failed; it is retried on the next Resume.
func (l *Library) FailFetch(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.links[id]
	if !ok {
		l.dropQueueItem(id)
		return notFound(id)
	}
	link.MetadataStatus = StatusFailed
	l.setQueueStatus(id, QueueFailed)
	return l.persistLocked(ctx)
}

// QueueSnapshot returns the queue visibility records in enqueue order.
func (l *Library) QueueSnapshot() []QueueItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]QueueItem, len(l.queueItems))
	copy(out, l.queueItems)
	return out
}

// Settings returns the current runtime settings.
func (l *Library) Settings() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneSettings(l.settings)
}

// Limits reports the configured per-second and per-minute request ceilings.
func (l *Library) Limits() (perSecond, perMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings.RateLimitPerSecond, l.settings.RateLimitPerMinute
}

// UpdateSettings applies patch. Changes take effect on the next limiter check
// or Submit call; nothing already processed is revisited.
func (l *Library) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := applyPatch(cloneSettings(l.settings), patch)
	validated, err := validateSettings(next)
	if err != nil {
		return Settings{}, err
	}
	l.settings = validated
	l.ensureCategory(validated.DefaultCategory)
	return cloneSettings(l.settings), l.persistLocked(ctx)
}

// Draft returns the whole visible state.
func (l *Library) Draft() Draft {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := make([]QueueItem, len(l.queueItems))
	copy(queue, l.queueItems)
	return Draft{
		NextID:     l.nextID,
		Categories: cloneStrings(l.categories),
		Links:      l.linksLocked(),
		Config:     cloneSettings(l.settings),
		Queue:      queue,
	}
}

// Save writes a snapshot of the current state.
func (l *Library) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked(ctx)
}

func (l *Library) insert(link *Link) {
	l.links[link.ID] = link
	l.order = append(l.order, link.ID)
	l.byURL[link.NormalizedURL] = link.ID
}

func (l *Library) linksLocked() []Link {
	out := make([]Link, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.links[id].clone())
	}
	return out
}

// ensureCategory appends name to the category list and reports whether it
// was new.
func (l *Library) ensureCategory(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range l.categories {
		if c == name {
			return false
		}
	}
	l.categories = append(l.categories, name)
	return true
}

func (l *Library) enqueueLocked(ctx context.Context, link *Link) {
	now := l.clock.Now()
	link.MetadataStatus = StatusPending
	l.dropQueueItem(link.ID)
	l.queueItems = append(l.queueItems, QueueItem{
		LinkID:        link.ID,
		NormalizedURL: link.NormalizedURL,
		Status:        QueueWaiting,
		EnqueuedAt:    now,
	})
	l.trimQueueHistory()
	if err := l.queue.Enqueue(ctx, Task{LinkID: link.ID, EnqueuedAt: now}); err != nil {
		// The link stays pending and is picked up again by the next Resume.
		l.logger.Error("enqueue link failed", zap.Int64("link_id", link.ID), zap.Error(err))
		return
	}
	if l.events != nil {
		l.events.Emit(progress.NewEvent(progress.StageQueued, link.ID, link.NormalizedURL, now))
	}
}

func (l *Library) setQueueStatus(id int64, status QueueStatus) {
	for i := range l.queueItems {
		if l.queueItems[i].LinkID == id {
			l.queueItems[i].Status = status
			l.trimQueueHistory()
			return
		}
	}
	// Visibility records are derived; rebuild a missing one.
	link := l.links[id]
	l.queueItems = append(l.queueItems, QueueItem{
		LinkID:        id,
		NormalizedURL: link.NormalizedURL,
		Status:        status,
		EnqueuedAt:    l.clock.Now(),
	})
	l.trimQueueHistory()
}

func (l *Library) dropQueueItem(id int64) {
	for i := range l.queueItems {
		if l.queueItems[i].LinkID == id {
			l.queueItems = append(l.queueItems[:i], l.queueItems[i+1:]...)
			return
		}
	}
}

// trimQueueHistory drops the oldest finished records beyond the history cap.
func (l *Library) trimQueueHistory() {
	finished := 0
	for _, item := range l.queueItems {
		if item.Status == QueueDone || item.Status == QueueFailed {
			finished++
		}
	}
	excess := finished - l.history
	if excess <= 0 {
		return
	}
	kept := l.queueItems[:0]
	for _, item := range l.queueItems {
		if excess > 0 && (item.Status == QueueDone || item.Status == QueueFailed) {
			excess--
			continue
		}
		kept = append(kept, item)
	}
	l.queueItems = kept
}

func (l *Library) persistLocked(ctx context.Context) error {
	data, err := encodeSnapshot(l.snapshotLocked())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := l.store.Save(ctx, data); err != nil {
		l.logger.Error("snapshot save failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func mergeMetadata(link *Link, meta Metadata) {
	setIfPresent(&link.Title, meta.Title)
	setIfPresent(&link.Author, meta.Author)
	setIfPresent(&link.ThumbnailURL, meta.ThumbnailURL)
	setIfPresent(&link.ChannelAvatar, meta.ChannelAvatar)
	setIfPresent(&link.Duration, meta.Duration)
	setIfPresent(&link.PublishDate, meta.PublishDate)
	setIfPresent(&link.VideoType, meta.VideoType)
	if meta.DurationSeconds > 0 {
		link.DurationSeconds = meta.DurationSeconds
	}
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func removeID(ids []int64, target int64) []int64 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
