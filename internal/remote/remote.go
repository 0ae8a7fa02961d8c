// Package remote declares the two collaborators behind the hybrid router: a
// table-oriented structured store and a bucketed object store.
package remote

import "context"

// Tables the direct-message layer reads and writes.
const (
	TableMessages    = "messages"
	TableAttachments = "message_attachments"
	TableProfiles    = "profiles"
)

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpIn  Op = "in"
	OpLt  Op = "lt"
	OpGt  Op = "gt"
)

// Cond is one predicate of a WHERE clause. OpIn expects a []string or []any.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Cond  { return Cond{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Cond { return Cond{Column: column, Op: OpNeq, Value: v} }
func In(column string, v any) Cond  { return Cond{Column: column, Op: OpIn, Value: v} }
func Lt(column string, v any) Cond  { return Cond{Column: column, Op: OpLt, Value: v} }
func Gt(column string, v any) Cond  { return Cond{Column: column, Op: OpGt, Value: v} }

// Query narrows a Select.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

// Row is one record keyed by column name.
type Row map[string]any

// Structured is the subset of the remote table store this layer uses.
type Structured interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, where []Cond, patch Row) (int64, error)
	Delete(ctx context.Context, table string, where []Cond) (int64, error)
	Count(ctx context.Context, table string, where []Cond) (int64, error)
}

// Objects stores binary payloads in named buckets.
type Objects interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths ...string) error
}

// Buckets names the object store bucket for each upload context.
type Buckets struct {
	Messages string
	Avatars  string
	Blog     string
}

func DefaultBuckets() Buckets {
	return Buckets{Messages: "message-attachments", Avatars: "avatars", Blog: "blog-images"}
}

// For returns the bucket for an upload context, defaulting to messages.
func (b Buckets) For(uploadContext string) string {
	switch uploadContext {
	case "avatar":
		return b.Avatars
	case "blog":
		return b.Blog
	default:
		return b.Messages
	}
}
