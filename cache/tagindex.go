package cache

import "sync"

// tagIndex maintains the tag->keys and key->tags inverse maps described in
// SPEC_FULL.md §3 invariant 6. clearByTag copies the key set before
// iterating, per the Open Question decision in SPEC_FULL.md §9 (the
// source sometimes mutated a set while iterating it; this spec always
// copies first).
type tagIndex struct {
	mu        sync.Mutex
	tagToKeys map[string]map[string]struct{}
	keyToTags map[string]map[string]struct{}
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		tagToKeys: make(map[string]map[string]struct{}),
		keyToTags: make(map[string]map[string]struct{}),
	}
}

// add registers key under every tag in tags, updating both maps.
func (t *tagIndex) add(key string, tags []string) {
	if len(tags) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kt, ok := t.keyToTags[key]
	if !ok {
		kt = make(map[string]struct{}, len(tags))
		t.keyToTags[key] = kt
	}
	for _, tag := range tags {
		kt[tag] = struct{}{}
		tk, ok := t.tagToKeys[tag]
		if !ok {
			tk = make(map[string]struct{})
			t.tagToKeys[tag] = tk
		}
		tk[key] = struct{}{}
	}
}

// remove deletes key from every tag it belongs to, and drops any tag left
// with no keys.
func (t *tagIndex) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(key)
}

func (t *tagIndex) removeLocked(key string) {
	tags, ok := t.keyToTags[key]
	if !ok {
		return
	}
	for tag := range tags {
		if ks, ok := t.tagToKeys[tag]; ok {
			delete(ks, key)
			if len(ks) == 0 {
				delete(t.tagToKeys, tag)
			}
		}
	}
	delete(t.keyToTags, key)
}

// keysForTags returns the union of keys for the given tags. A copy of each
// tag's key set is taken under the lock, then merged outside it.
func (t *tagIndex) keysForTags(tags []string) []string {
	t.mu.Lock()
	snapshots := make([]map[string]struct{}, 0, len(tags))
	for _, tag := range tags {
		ks, ok := t.tagToKeys[tag]
		if !ok {
			continue
		}
		cp := make(map[string]struct{}, len(ks))
		for k := range ks {
			cp[k] = struct{}{}
		}
		snapshots = append(snapshots, cp)
	}
	t.mu.Unlock()

	union := make(map[string]struct{})
	for _, snap := range snapshots {
		for k := range snap {
			union[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	return keys
}

// removeKeys removes every key in keys from both maps.
func (t *tagIndex) removeKeys(keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		t.removeLocked(k)
	}
}

// clear empties both maps.
func (t *tagIndex) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tagToKeys = make(map[string]map[string]struct{})
	t.keyToTags = make(map[string]map[string]struct{})
}

// tagsForKey returns a snapshot of the tags registered for key.
func (t *tagIndex) tagsForKey(key string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tags, ok := t.keyToTags[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	return out
}
