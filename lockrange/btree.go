package lockrange

import (
	"sync"

	"github.com/google/btree"
)

// Range 半开区间 [Offset, Offset+Length)
type Range struct {
	Offset int64
	Length int64
}

func (r Range) end() int64 { return r.Offset + r.Length }

// 两个区间是否有重叠
func (r Range) overlaps(o Range) bool {
	return r.Offset < o.end() && o.Offset < r.end()
}

// Table 已持有锁区间表 对 google 的 btree 库的封装, 按起始偏移排序
// https://github.com/google/btree
// 表中区间互不重叠
type Table struct {
	tree *btree.BTree
	// 底层实现非线程安全 需要加锁
	lock *sync.RWMutex
}

// Item 区间在 btree 中的元素
type Item struct {
	r Range
}

func (ai *Item) Less(bi btree.Item) bool {
	return ai.r.Offset < bi.(*Item).r.Offset
}

func NewTable() *Table {
	return &Table{
		tree: btree.New(32),
		lock: new(sync.RWMutex),
	}
}

// Add 登记一个区间, 与已有区间重叠时返回 false
func (t *Table) Add(r Range) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.overlapping(r) {
		return false
	}
	t.tree.ReplaceOrInsert(&Item{r: r})
	return true
}

// 只需检查起点不大于 r 的最后一个区间与起点不小于 r 的第一个区间
func (t *Table) overlapping(r Range) bool {
	found := false
	t.tree.DescendLessOrEqual(&Item{r: r}, func(i btree.Item) bool {
		found = i.(*Item).r.overlaps(r)
		return false
	})
	if found {
		return true
	}
	t.tree.AscendGreaterOrEqual(&Item{r: r}, func(i btree.Item) bool {
		found = i.(*Item).r.overlaps(r)
		return false
	})
	return found
}

// Remove 移除与 r 完全相同的区间, 不存在时返回 false
func (t *Table) Remove(r Range) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	old := t.tree.Get(&Item{r: r})
	if old == nil || old.(*Item).r != r {
		return false
	}
	t.tree.Delete(old)
	return true
}

// Contains 是否持有与 r 完全相同的区间
func (t *Table) Contains(r Range) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	old := t.tree.Get(&Item{r: r})
	return old != nil && old.(*Item).r == r
}

// Ranges 按起始偏移升序返回全部区间
func (t *Table) Ranges() []Range {
	t.lock.RLock()
	defer t.lock.RUnlock()

	ranges := make([]Range, 0, t.tree.Len())
	t.tree.Ascend(func(i btree.Item) bool {
		ranges = append(ranges, i.(*Item).r)
		return true
	})
	return ranges
}

// Clear 清空并返回全部区间
func (t *Table) Clear() []Range {
	t.lock.Lock()
	defer t.lock.Unlock()

	ranges := make([]Range, 0, t.tree.Len())
	t.tree.Ascend(func(i btree.Item) bool {
		ranges = append(ranges, i.(*Item).r)
		return true
	})
	t.tree.Clear(false)
	return ranges
}

func (t *Table) Size() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.tree.Len()
}
