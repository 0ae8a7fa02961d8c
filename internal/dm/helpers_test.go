package dm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hackhub/internal/eviction"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

var errRemoteDown = errors.New("connection refused")

// fakeRemote is an in-memory remote.Structured. Setting failing makes every
// call return errRemoteDown.
type fakeRemote struct {
	mu      sync.Mutex
	tables  map[string][]remote.Row
	failing bool
	failOn  map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tables: map[string][]remote.Row{}, failOn: map[string]bool{}}
}

func (f *fakeRemote) fail(op, table string) error {
	if f.failing || f.failOn[op] || f.failOn[op+":"+table] {
		return errRemoteDown
	}
	return nil
}

func (f *fakeRemote) Select(_ context.Context, table string, q remote.Query) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("select", table); err != nil {
		return nil, err
	}
	var out []remote.Row
	for _, row := range f.tables[table] {
		if matches(row, q.Where) {
			out = append(out, copyRow(row))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return lessValue(out[j][q.OrderBy], out[i][q.OrderBy])
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRemote) Insert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("insert", table); err != nil {
		return nil, err
	}
	for _, existing := range f.tables[table] {
		if existing["id"] == row["id"] {
			return nil, fmt.Errorf("duplicate key %v", row["id"])
		}
	}
	f.tables[table] = append(f.tables[table], copyRow(row))
	return copyRow(row), nil
}

func (f *fakeRemote) Update(_ context.Context, table string, where []remote.Cond, patch remote.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("update", table); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range f.tables[table] {
		if !matches(row, where) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		n++
	}
	return n, nil
}

func (f *fakeRemote) Delete(_ context.Context, table string, where []remote.Cond) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("delete", table); err != nil {
		return 0, err
	}
	kept := f.tables[table][:0]
	var n int64
	for _, row := range f.tables[table] {
		if matches(row, where) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	f.tables[table] = kept
	return n, nil
}

func (f *fakeRemote) Count(_ context.Context, table string, where []remote.Cond) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("count", table); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range f.tables[table] {
		if matches(row, where) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRemote) rows(table string) []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Row(nil), f.tables[table]...)
}

func matches(row remote.Row, where []remote.Cond) bool {
	for _, c := range where {
		v := row[c.Column]
		switch c.Op {
		case remote.OpEq:
			if !reflect.DeepEqual(v, c.Value) {
				return false
			}
		case remote.OpNeq:
			if reflect.DeepEqual(v, c.Value) {
				return false
			}
		case remote.OpIn:
			found := false
			rv := reflect.ValueOf(c.Value)
			for i := 0; i < rv.Len(); i++ {
				if reflect.DeepEqual(v, rv.Index(i).Interface()) {
					found = true
				}
			}
			if !found {
				return false
			}
		case remote.OpLt:
			if !lessValue(v, c.Value) {
				return false
			}
		case remote.OpGt:
			if !lessValue(c.Value, v) {
				return false
			}
		}
	}
	return true
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Before(bv)
	case int64:
		bv, _ := b.(int64)
		return av < bv
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

func copyRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]storedObject
	failing bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]storedObject{}}
}

func (o *fakeObjects) Upload(_ context.Context, bucket, path string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failing {
		return errRemoteDown
	}
	o.objects[bucket+"/"+path] = storedObject{data: data, contentType: contentType}
	return nil
}

func (o *fakeObjects) PublicURL(bucket, path string) string {
	return "https://files.example.test/" + bucket + "/" + path
}

func (o *fakeObjects) Remove(_ context.Context, bucket string, paths ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failing {
		return errRemoteDown
	}
	for _, p := range paths {
		delete(o.objects, bucket+"/"+p)
	}
	return nil
}

func (o *fakeObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

type fixture struct {
	svc     *Service
	remote  *fakeRemote
	objects *fakeObjects
	local   *storage.LocalStore
	now     time.Time
}

// newLocalFixture builds a service with no remote configured.
func newLocalFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, nil, nil)
}

// newRemoteFixture builds a service backed by healthy fakes.
func newRemoteFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, newFakeRemote(), newFakeObjects())
}

func buildFixture(t *testing.T, rem *fakeRemote, objs *fakeObjects) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	local := storage.NewLocalStore(storage.NewMemoryMedium(0), storage.Options{Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = local.Close() })
	clock := func() time.Time { return now }
	deps := Deps{
		Local:  local,
		Policy: eviction.NewPolicy(local, eviction.DefaultLimits(), zerolog.Nop()).WithClock(clock),
		Logger: zerolog.Nop(),
		Now:    clock,
	}
	if rem != nil {
		deps.Remote = rem
	}
	if objs != nil {
		deps.Objects = objs
	}
	return &fixture{svc: NewService(deps), remote: rem, objects: objs, local: local, now: now}
}
