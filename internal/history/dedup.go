package history

import (
	"sort"

	"stackbot/internal/model"
)

// DedupSet 为不可再次回答的问题集合。
// 历史文件中的 /q/ 链接只给出裸 ID，对所有站点生效；索引与本轮新发帖的问题按（站点, ID）记录。
// 每轮开始时从持久化数据重建，本轮新发帖的问题再追加进来。
type DedupSet struct {
	ids    map[string]struct{}
	scoped map[model.QuestionKey]struct{}
}

func NewDedupSet(ids ...string) *DedupSet {
	s := &DedupSet{ids: make(map[string]struct{}, len(ids)), scoped: map[model.QuestionKey]struct{}{}}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *DedupSet) Add(id string) {
	if id == "" {
		return
	}
	s.ids[id] = struct{}{}
}

// Has 对 nil 集合返回 false，便于调用方不做判空。
func (s *DedupSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// AddFor 记录站点内的问题，不影响其他站点的同号问题。
func (s *DedupSet) AddFor(site model.Site, id string) {
	if id == "" {
		return
	}
	s.scoped[model.QuestionKey{Site: site, ID: id}] = struct{}{}
}

// HasFor 判断站点内的问题是否已回答：裸 ID 或（站点, ID）任一命中即可。
func (s *DedupSet) HasFor(site model.Site, id string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return true
	}
	_, ok := s.scoped[model.QuestionKey{Site: site, ID: id}]
	return ok
}

// MergeKeys 并入按站点区分的问题。
func (s *DedupSet) MergeKeys(keys ...model.QuestionKey) {
	for _, k := range keys {
		s.AddFor(k.Site, k.ID)
	}
}

func (s *DedupSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids) + len(s.scoped)
}

// Merge 将其他集合并入当前集合。
func (s *DedupSet) Merge(ids ...string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// IDs 返回排序后的裸 ID 副本（不含按站点记录的问题）。
func (s *DedupSet) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
