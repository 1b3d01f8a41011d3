// Package query implements the hand-written, single-pass SQL-subset
// parser: SELECT with WHERE/ORDER BY/LIMIT/OFFSET and aggregates, plus
// INSERT/UPDATE/DELETE, tokenized and parsed in one pass with no
// generated parser or combinator library.
package query

// Op is a comparison or predicate operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpGt   Op = ">"
	OpLe   Op = "<="
	OpGe   Op = ">="
	OpLike Op = "LIKE"
	OpIn   Op = "IN"
)

// Aggregate is a single aggregate-function column, e.g. COUNT(*).
type Aggregate struct {
	Func   string // COUNT, SUM, AVG, MIN, MAX
	Column string // "*" for COUNT(*)
}

// Cond is one WHERE condition.
type Cond struct {
	Column    string
	Op        Op
	Value     string   // literal operand for comparison/LIKE
	ValueList []string // literal_list operand for IN
	SubQuery  *Query   // recognized syntactically, never executed
}

// OrderTerm is one ORDER BY column with direction.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Query is the parsed AST of one SELECT statement.
type Query struct {
	Columns []string // nil/empty when Agg is set, ["*"] for SELECT *
	Agg     *Aggregate
	Table   string
	Where   []Cond
	OrderBy []OrderTerm
	Limit   *int
	Offset  *int
}
