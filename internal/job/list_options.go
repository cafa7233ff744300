package job

import (
	"sort"
	"strings"
)

// SortOrder 决定列表的排序方向。
type SortOrder int

const (
	// SortByUpdatedDesc 最近更新的在前。
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc 最早更新的在前。
	SortByUpdatedAsc
)

// ListOptions 控制任务列表的筛选条件。
type ListOptions struct {
	Limit     int
	Statuses  []Status
	SessionID string
	Order     SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	opts.Statuses = normalizeStatuses(opts.Statuses)
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回数量。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithStatuses 按状态过滤。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = append(opts.Statuses[:0], statuses...) }
}

// WithSession 只返回指定会话的任务。
func WithSession(id string) ListOption {
	return func(opts *ListOptions) { opts.SessionID = id }
}

// WithSortOrder 修改排序方向。
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func (opts ListOptions) matches(j *Job) bool {
	if opts.SessionID != "" && j.SessionID != opts.SessionID {
		return false
	}
	if len(opts.Statuses) == 0 {
		return true
	}
	for _, status := range opts.Statuses {
		if j.Status == status {
			return true
		}
	}
	return false
}

// sortAndLimit 按更新时间排序后截断，时间相同时依次比较创建时间与 ID。
func (opts ListOptions) sortAndLimit(jobs []*Job) []*Job {
	sort.Slice(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if opts.Order == SortByUpdatedAsc {
			a, b = b, a
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID > b.ID
	})
	if len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs
}
