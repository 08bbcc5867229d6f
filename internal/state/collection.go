package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// Collection is one ordered entity list. Records are stored under an
// 8-byte big-endian sequence key so bbolt's key order is insertion order.
// All methods are safe for concurrent use; they share the owning State's
// lock.
type Collection[T any] struct {
	st     *State
	name   string
	bucket []byte

	// identity returns the lookup key of an item. Nil means items have no
	// identity and only All, Create and ReplaceAll are meaningful.
	identity func(T) string
	// assignID stamps a fresh id on Create. Nil means Create keeps the
	// item as given.
	assignID func(*T, string)
	clone    func(T) T

	items []T
	keys  []uint64
	next  uint64
}

func newCollection[T any](st *State, name string, identity func(T) string, assignID func(*T, string), clone func(T) T) *Collection[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}

	return &Collection[T]{
		st:       st,
		name:     name,
		bucket:   []byte(name),
		identity: identity,
		assignID: assignID,
		clone:    clone,
		next:     1,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) bucketName() []byte {
	return c.bucket
}

func (c *Collection[T]) loadFrom(b *bolt.Bucket) error {
	c.items = nil
	c.keys = nil
	c.next = 1

	return b.ForEach(func(k, v []byte) error {
		if len(k) != 8 {
			return fmt.Errorf("%s: malformed key %x", c.name, k)
		}

		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("%s: decoding record: %w", c.name, err)
		}

		seq := binary.BigEndian.Uint64(k)
		c.items = append(c.items, item)
		c.keys = append(c.keys, seq)

		if seq >= c.next {
			c.next = seq + 1
		}

		return nil
	})
}

// snapshot copies the items. Caller holds st.mu.
func (c *Collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = c.clone(it)
	}

	return out
}

func (c *Collection[T]) indexOf(id string) int {
	if c.identity == nil || id == "" {
		return -1
	}

	for i, it := range c.items {
		if c.identity(it) == id {
			return i
		}
	}

	return -1
}

// All returns the items in order. It never fails; an empty collection
// yields an empty slice.
func (c *Collection[T]) All() []T {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	return c.snapshot()
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	return len(c.items)
}

// Get returns the item with the given identity.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		var zero T
		return zero, false
	}

	return c.clone(c.items[i]), true
}

// Create appends item, assigning a fresh id when the collection owns ids,
// and persists it. The returned item carries the id.
func (c *Collection[T]) Create(item T) (T, error) {
	c.st.mu.Lock()

	if c.assignID != nil {
		c.assignID(&item, c.st.ids.New())
	}

	item = c.clone(item)
	seq := c.next
	c.next++
	c.items = append(c.items, item)
	c.keys = append(c.keys, seq)

	err := c.put(seq, item)
	c.st.mu.Unlock()

	var id string
	if c.identity != nil {
		id = c.identity(item)
	}

	c.st.notify(Change{Collection: c.name, Op: OpCreate, ID: id})

	return c.clone(item), err
}

// Update applies fn to the item with the given identity and persists the
// result. It returns apperrors.ErrNotFound when no item matches.
func (c *Collection[T]) Update(id string, fn func(*T)) (T, error) {
	c.st.mu.Lock()

	i := c.indexOf(id)
	if i < 0 {
		c.st.mu.Unlock()

		var zero T

		return zero, fmt.Errorf("%s %q: %w", c.name, id, apperrors.ErrNotFound)
	}

	item := c.clone(c.items[i])
	fn(&item)
	c.items[i] = item

	err := c.put(c.keys[i], item)
	c.st.mu.Unlock()

	c.st.notify(Change{Collection: c.name, Op: OpUpdate, ID: id})

	return c.clone(item), err
}

// Delete removes the item with the given identity. Deleting a missing id
// is a no-op.
func (c *Collection[T]) Delete(id string) error {
	c.st.mu.Lock()

	i := c.indexOf(id)
	if i < 0 {
		c.st.mu.Unlock()
		return nil
	}

	seq := c.keys[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.keys = append(c.keys[:i], c.keys[i+1:]...)

	err := c.st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).Delete(seqKey(seq))
	})
	c.st.mu.Unlock()

	c.st.notify(Change{Collection: c.name, Op: OpDelete, ID: id})

	return persistErr(err)
}

// ReplaceAll atomically overwrites the collection with items.
func (c *Collection[T]) ReplaceAll(items []T) error {
	return c.st.Replace(c.Replacement(items))
}

// Replacement stages a full overwrite for State.Replace.
func (c *Collection[T]) Replacement(items []T) Replacement {
	staged := make([]T, len(items))
	for i, it := range items {
		staged[i] = c.clone(it)
	}

	return Replacement{
		collection: c.name,
		persist: func(tx *bolt.Tx) error {
			if err := tx.DeleteBucket(c.bucket); err != nil && !errors.Is(err, berrors.ErrBucketNotFound) {
				return err
			}

			b, err := tx.CreateBucket(c.bucket)
			if err != nil {
				return err
			}

			for i, it := range staged {
				data, err := encode(it)
				if err != nil {
					return err
				}

				if err := b.Put(seqKey(uint64(i+1)), data); err != nil {
					return err
				}
			}

			return nil
		},
		commit: func() {
			c.items = staged
			c.keys = make([]uint64, len(staged))

			for i := range staged {
				c.keys[i] = uint64(i + 1)
			}

			c.next = uint64(len(staged) + 1)
		},
	}
}

// put writes one record. Caller holds st.mu.
func (c *Collection[T]) put(seq uint64, item T) error {
	data, err := encode(item)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", c.name, err)
	}

	err = c.st.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).Put(seqKey(seq), data)
	})

	return persistErr(err)
}
