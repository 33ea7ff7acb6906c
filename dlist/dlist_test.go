package dlist

import (
	"fmt"
	"testing"

	"github.com/Zaire404/cachecore/item"
	"github.com/stretchr/testify/assert"
)

type memStore struct {
	items map[item.Handle]*item.Item
}

func newMemStore() *memStore { return &memStore{items: make(map[item.Handle]*item.Item)} }

func (s *memStore) Get(h item.Handle) *item.Item { return s.items[h] }

func (s *memStore) put(h item.Handle, size uint32, cid int32) *item.Item {
	key := []byte(fmt.Sprintf("key%d", h))
	it := item.NewItem(0, uint32(len(key)), func(off, sz uint32) []byte { return key[off : off+sz] }, size, cid)
	s.items[h] = it
	return it
}

func TestDListLinkAtHeadAndRemove(t *testing.T) {
	store := newMemStore()
	l := New(store)

	var handles []item.Handle
	for i := 1; i <= 5; i++ {
		h := item.Handle(i)
		store.put(h, 64, 0)
		l.LinkAtHead(h)
		handles = append(handles, h)
	}
	fmt.Printf("dlist after inserts: size=%d head=%d tail=%d\n", l.Size(), l.GetHead(), l.GetTail())

	assert.Equal(t, 5, l.Size())
	assert.Equal(t, item.Handle(5), l.GetHead())
	assert.Equal(t, item.Handle(1), l.GetTail())

	l.Remove(item.Handle(3))
	assert.Equal(t, 4, l.Size())
	assert.Equal(t, item.Handle(2), l.GetNext(item.Handle(4)))
	assert.Equal(t, item.Handle(4), l.GetPrev(item.Handle(2)))

	l.Remove(l.GetHead())
	assert.Equal(t, item.Handle(4), l.GetHead())

	l.Remove(l.GetTail())
	assert.Equal(t, item.Handle(2), l.GetTail())
}

func TestDListReplace(t *testing.T) {
	store := newMemStore()
	l := New(store)
	for i := 1; i <= 3; i++ {
		store.put(item.Handle(i), 64, 0)
		l.LinkAtHead(item.Handle(i))
	}
	store.put(item.Handle(9), 64, 0)

	l.Replace(item.Handle(2), item.Handle(9))
	assert.Equal(t, item.Handle(9), l.GetNext(item.Handle(3)))
	assert.Equal(t, item.Handle(3), l.GetPrev(item.Handle(9)))
}

func TestDListMoveToHead(t *testing.T) {
	store := newMemStore()
	l := New(store)
	for i := 1; i <= 3; i++ {
		store.put(item.Handle(i), 64, 0)
		l.LinkAtHead(item.Handle(i))
	}
	l.MoveToHead(item.Handle(1))
	assert.Equal(t, item.Handle(1), l.GetHead())
	assert.Equal(t, 3, l.Size())

	l.MoveToHead(item.Handle(1))
	assert.Equal(t, item.Handle(1), l.GetHead())
}

func TestDListSaveLoadState(t *testing.T) {
	store := newMemStore()
	l := New(store)
	for i := 1; i <= 3; i++ {
		store.put(item.Handle(i), 64, 0)
		l.LinkAtHead(item.Handle(i))
	}
	s := l.SaveState()

	l2 := New(store)
	l2.LoadState(s)
	assert.Equal(t, l.Size(), l2.Size())
	assert.Equal(t, l.GetHead(), l2.GetHead())
	assert.Equal(t, l.GetTail(), l2.GetTail())
}
