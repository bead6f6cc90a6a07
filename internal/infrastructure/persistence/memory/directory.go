package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/halaqa-hub/hifz-core/internal/domain/halaqa"
	"github.com/halaqa-hub/hifz-core/internal/domain/shared"
)

// Directory implements halaqa.Directory over an in-process roster.
type Directory struct {
	mu       sync.RWMutex
	halaqat  map[string]*halaqa.Halaqa
	students map[string]*halaqa.Student
}

// NewDirectory creates an empty roster.
func NewDirectory() *Directory {
	return &Directory{
		halaqat:  make(map[string]*halaqa.Halaqa),
		students: make(map[string]*halaqa.Student),
	}
}

// AddHalaqa stores or replaces a halaqa.
func (d *Directory) AddHalaqa(h *halaqa.Halaqa) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *h
	d.halaqat[h.ID] = &cp
}

// AddStudent stores or replaces a student.
func (d *Directory) AddStudent(s *halaqa.Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[s.ID] = copyStudent(s)
}

// GetHalaqa implements halaqa.Directory.
func (d *Directory) GetHalaqa(ctx context.Context, id string) (*halaqa.Halaqa, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.halaqat[id]
	if !ok {
		return nil, shared.ErrHalaqaNotFound
	}
	cp := *h
	return &cp, nil
}

// GetStudent implements halaqa.Directory.
func (d *Directory) GetStudent(ctx context.Context, id string) (*halaqa.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return copyStudent(s), nil
}

// ListHalaqat implements halaqa.Directory.
func (d *Directory) ListHalaqat(ctx context.Context, scope halaqa.Scope) ([]*halaqa.Halaqa, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*halaqa.Halaqa, 0, len(d.halaqat))
	for _, h := range d.halaqat {
		if scope.Matches(h) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListStudents implements halaqa.Directory.
func (d *Directory) ListStudents(ctx context.Context, scope halaqa.Scope) ([]*halaqa.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*halaqa.Student, 0, len(d.students))
	for _, s := range d.students {
		if d.inScope(s, scope) {
			out = append(out, copyStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) inScope(s *halaqa.Student, scope halaqa.Scope) bool {
	if scope.IsUnrestricted() {
		return true
	}
	for _, id := range s.HalaqaIDs {
		if h, ok := d.halaqat[id]; ok && scope.Matches(h) {
			return true
		}
	}
	return false
}

func copyStudent(s *halaqa.Student) *halaqa.Student {
	cp := *s
	cp.HalaqaIDs = append([]string(nil), s.HalaqaIDs...)
	return &cp
}
