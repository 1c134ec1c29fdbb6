package query

import (
	"github.com/pkg/errors"
)

var (
	ErrNoColumnMatch    = errors.New("no column match")
	ErrInvalidCondition = errors.New("invalid condition")
)

// Connective 条件之间的布尔连接词
type Connective string

const (
	And Connective = "and"
	Or  Connective = "or"
)

// Operator 比较运算符
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLike    Operator = "like"
	OpNotLike Operator = "not like"
	OpLt      Operator = "<"
	OpGt      Operator = ">"
	OpLe      Operator = "<="
	OpGe      Operator = ">="
)

// ColumnResolver 字段名到列名的解析接口，meta.TableDescriptor 实现了它
type ColumnResolver interface {
	ColumnOf(field string) (string, bool)
}

// Node 过滤树节点，叶子是 Cond，内部节点是 Group
type Node interface {
	connective() Connective
}

// Cond 叶子条件：字段、运算符、操作数，外加与前一个兄弟的连接词
// 第一个兄弟的连接词在渲染时被忽略
type Cond struct {
	Field      string
	Op         Operator
	Value      any
	Connective Connective
}

func (c Cond) connective() Connective {
	if c.Connective == "" {
		return And
	}
	return c.Connective
}

// Group 条件组，子节点有序，整组带着自己相对父节点的连接词
type Group struct {
	Connective Connective
	Children   []Node
}

func (g *Group) connective() Connective {
	if g.Connective == "" {
		return And
	}
	return g.Connective
}

// NewGroup 创建 and 连接的条件组
func NewGroup(children ...Node) *Group {
	return &Group{Connective: And, Children: children}
}

// NewOrGroup 创建 or 连接的条件组
func NewOrGroup(children ...Node) *Group {
	return &Group{Connective: Or, Children: children}
}

// AddAnd 以 and 追加子节点
func (g *Group) AddAnd(node Node) *Group {
	g.Children = append(g.Children, withConnective(node, And))
	return g
}

// AddOr 以 or 追加子节点
func (g *Group) AddOr(node Node) *Group {
	g.Children = append(g.Children, withConnective(node, Or))
	return g
}

func withConnective(node Node, conn Connective) Node {
	switch n := node.(type) {
	case Cond:
		n.Connective = conn
		return n
	case *Group:
		n.Connective = conn
		return n
	}
	return node
}

// 叶子条件构造器

func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value, Connective: And}
}

func Ne(field string, value any) Cond {
	return Cond{Field: field, Op: OpNe, Value: value, Connective: And}
}

func Like(field string, value any) Cond {
	return Cond{Field: field, Op: OpLike, Value: value, Connective: And}
}

func NotLike(field string, value any) Cond {
	return Cond{Field: field, Op: OpNotLike, Value: value, Connective: And}
}

func Lt(field string, value any) Cond {
	return Cond{Field: field, Op: OpLt, Value: value, Connective: And}
}

func Gt(field string, value any) Cond {
	return Cond{Field: field, Op: OpGt, Value: value, Connective: And}
}

func Le(field string, value any) Cond {
	return Cond{Field: field, Op: OpLe, Value: value, Connective: And}
}

func Ge(field string, value any) Cond {
	return Cond{Field: field, Op: OpGe, Value: value, Connective: And}
}
