package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/keylock"
	"github.com/okian/scout/pkg/metrics"
)

// MemoryDirectory is an in-process Directory. Writes to one profile hold
// that profile's lock; the index mutex only guards map structure and is
// never held across a merge.
type MemoryDirectory struct {
	opts  options
	locks *keylock.Map

	mu       sync.RWMutex
	profiles map[string]*model.TalentProfile
	byRecord map[string]string              // record id -> profile id
	byOrigin map[string]string              // origin record id -> profile id
	bySource map[string]string              // source item key -> profile id
	blocks   map[string]map[string]struct{} // blocking key -> profile ids
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory(opts ...Option) *MemoryDirectory {
	return &MemoryDirectory{
		opts:     applyOptions(opts),
		locks:    keylock.New(),
		profiles: make(map[string]*model.TalentProfile),
		byRecord: make(map[string]string),
		byOrigin: make(map[string]string),
		bySource: make(map[string]string),
		blocks:   make(map[string]map[string]struct{}),
	}
}

// Get implements Directory.
func (d *MemoryDirectory) Get(_ context.Context, id string) (model.TalentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	if !ok {
		return model.TalentProfile{}, notFound("directory.get", id)
	}
	return p.Clone(), nil
}

// ProfileForRecord implements Directory.
func (d *MemoryDirectory) ProfileForRecord(ctx context.Context, recordID string) (model.TalentProfile, error) {
	d.mu.RLock()
	id, ok := d.byRecord[recordID]
	d.mu.RUnlock()
	if !ok {
		return model.TalentProfile{}, model.NewKind("directory.profile_for_record", model.ErrNotFound, "record %s", recordID)
	}
	return d.Get(ctx, id)
}

// ProfileForSource implements Directory.
func (d *MemoryDirectory) ProfileForSource(ctx context.Context, sourceID, nativeID string) (model.TalentProfile, error) {
	d.mu.RLock()
	id, ok := d.bySource[sourceKey(sourceID, nativeID)]
	if ok && d.profiles[id].Archived {
		ok = false
	}
	d.mu.RUnlock()
	if !ok {
		return model.TalentProfile{}, model.NewKind("directory.profile_for_source", model.ErrNotFound, "item %s/%s", sourceID, nativeID)
	}
	return d.Get(ctx, id)
}

// Create implements Directory.
func (d *MemoryDirectory) Create(_ context.Context, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordDirectoryLatency("create", time.Since(start)) }()

	unlock := d.locks.Lock("record:" + rec.ID)
	defer unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byRecord[rec.ID]; ok {
		if d.byOrigin[rec.ID] == id {
			return d.profiles[id].Clone(), nil
		}
		return model.TalentProfile{}, model.WrapKind("directory.create", model.ErrInvalidState, ErrRecordLinked)
	}

	p := model.NewProfile(d.opts.newID(), rec, link, d.opts.now())
	d.profiles[p.ID] = &p
	d.byRecord[rec.ID] = p.ID
	d.byOrigin[rec.ID] = p.ID
	d.indexSource(link, p.ID)
	d.index(p.ID, rec.Attributes)

	metrics.RecordDirectoryCreate()
	metrics.UpdateDirectoryProfiles(d.activeLocked())
	return p.Clone(), nil
}

// UpsertProvenance implements Directory.
func (d *MemoryDirectory) UpsertProvenance(_ context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordDirectoryLatency("upsert", time.Since(start)) }()

	unlock := d.locks.Lock(id)
	defer unlock()

	d.mu.RLock()
	cur, ok := d.profiles[id]
	owner, linked := d.byRecord[rec.ID]
	var next model.TalentProfile
	if ok {
		next = cur.Clone()
	}
	d.mu.RUnlock()

	switch {
	case !ok:
		return model.TalentProfile{}, notFound("directory.upsert", id)
	case linked && owner == id:
		return next, nil
	case linked:
		return model.TalentProfile{}, model.WrapKind("directory.upsert", model.ErrInvalidState, ErrRecordLinked)
	case next.Archived:
		return model.TalentProfile{}, model.WrapKind("directory.upsert", model.ErrInvalidState, ErrArchived)
	}

	// The merge runs outside the index mutex; the profile lock keeps other
	// writers to this profile out.
	prev, refresh := next.LinkFor(link)
	if !next.Link(rec, link, d.opts.now()) {
		return next, nil
	}

	d.mu.Lock()
	if owner, ok := d.byRecord[rec.ID]; ok && owner != id {
		d.mu.Unlock()
		return model.TalentProfile{}, model.WrapKind("directory.upsert", model.ErrInvalidState, ErrRecordLinked)
	}
	d.profiles[id] = &next
	if refresh {
		delete(d.byRecord, prev.RecordID)
	}
	d.byRecord[rec.ID] = id
	d.indexSource(link, id)
	d.index(id, rec.Attributes)
	d.index(id, next.Attributes)
	d.mu.Unlock()

	metrics.RecordDirectoryMerge()
	return next.Clone(), nil
}

// DetachProvenance implements Directory.
func (d *MemoryDirectory) DetachProvenance(_ context.Context, id, recordID string) (model.TalentProfile, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.profiles[id]
	if !ok {
		return model.TalentProfile{}, notFound("directory.detach", id)
	}
	next := cur.Clone()
	now := d.opts.now()
	var removed model.SourceLink
	for _, l := range next.Provenance {
		if l.RecordID == recordID {
			removed = l
		}
	}
	if !next.Unlink(recordID, now) {
		return next, nil
	}
	if len(next.Provenance) == 0 {
		next.Archived = true
	}
	d.profiles[id] = &next
	delete(d.byRecord, recordID)
	if key := sourceKey(removed.SourceID, removed.NativeID); d.bySource[key] == id {
		delete(d.bySource, key)
	}
	metrics.UpdateDirectoryProfiles(d.activeLocked())
	return next.Clone(), nil
}

// Archive implements Directory.
func (d *MemoryDirectory) Archive(_ context.Context, id string) (model.TalentProfile, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.profiles[id]
	if !ok {
		return model.TalentProfile{}, notFound("directory.archive", id)
	}
	if cur.Archived {
		return cur.Clone(), nil
	}
	next := cur.Clone()
	next.Archived = true
	next.Version++
	next.UpdatedAt = d.opts.now()
	d.profiles[id] = &next
	metrics.UpdateDirectoryProfiles(d.activeLocked())
	return next.Clone(), nil
}

// Block implements Directory.
func (d *MemoryDirectory) Block(_ context.Context, keys []string, limit int) ([]model.TalentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make(map[string]struct{})
	for _, k := range keys {
		for id := range d.blocks[k] {
			if !d.profiles[id].Archived {
				ids[id] = struct{}{}
			}
		}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]model.TalentProfile, len(sorted))
	for i, id := range sorted {
		out[i] = d.profiles[id].Clone()
	}
	return out, nil
}

// Search implements Directory.
func (d *MemoryDirectory) Search(_ context.Context, filter Filter) (Page, error) {
	filter = normalizeFilter(filter)
	d.mu.RLock()
	matched := make([]*model.TalentProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		if filter.matches(p) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	page := Page{Total: len(matched), Page: filter.Page, PageSize: filter.PageSize}
	from := (filter.Page - 1) * filter.PageSize
	for i := from; i < len(matched) && i < from+filter.PageSize; i++ {
		page.Items = append(page.Items, matched[i].Clone())
	}
	d.mu.RUnlock()
	return page, nil
}

// Count implements Directory.
func (d *MemoryDirectory) Count(_ context.Context) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeLocked()
}

func (d *MemoryDirectory) activeLocked() int {
	n := 0
	for _, p := range d.profiles {
		if !p.Archived {
			n++
		}
	}
	return n
}

func (d *MemoryDirectory) index(id string, attrs model.Attributes) {
	for _, k := range scoring.BlockingKeys(attrs) {
		set, ok := d.blocks[k]
		if !ok {
			set = make(map[string]struct{})
			d.blocks[k] = set
		}
		set[id] = struct{}{}
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

func normalizeFilter(f Filter) Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.Query = scoring.Fold(f.Query)
	f.Affiliation = scoring.Fold(f.Affiliation)
	return f
}

func (f Filter) matches(p *model.TalentProfile) bool {
	if p.Archived && !f.IncludeArchived {
		return false
	}
	if f.Affiliation != "" && scoring.Fold(p.Attributes.Affiliation) != f.Affiliation {
		return false
	}
	return f.Query == "" || strings.Contains(searchText(p.Attributes), f.Query)
}

// searchText is the folded haystack Search matches queries against.
func searchText(a model.Attributes) string {
	parts := []string{scoring.Fold(a.Name), scoring.Fold(a.Affiliation)}
	parts = append(parts, a.Identifiers()...)
	return strings.Join(parts, " ")
}

func (d *MemoryDirectory) indexSource(link model.SourceLink, id string) {
	if link.NativeID != "" {
		d.bySource[sourceKey(link.SourceID, link.NativeID)] = id
	}
}

func sourceKey(sourceID, nativeID string) string {
	return sourceID + "\x00" + nativeID
}

func notFound(op, id string) error {
	return model.NewKind(op, model.ErrNotFound, "profile %s", id)
}
