package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/builder"
)

// Identity 恒真片段，空树的编译结果，也是顶层编译的种子：
// 有了它，第一个节点的连接词可以统一渲染再统一剥掉
const Identity = "(1=1)"

// Compile 把过滤树编译为 WHERE 片段
// 只做归一化剥前缀，不改变片段的真值；nil 节点编译为恒真片段
func Compile(node Node, columns ColumnResolver) (string, error) {
	return CompileDialect(node, columns, builder.DialectMySQL)
}

// CompileDialect 指定方言编译，方言只影响字面量转义
func CompileDialect(node Node, columns ColumnResolver, dialect Dialect) (string, error) {
	if node == nil {
		return Identity, nil
	}

	frag, err := render(node, false, columns, dialect)
	if err != nil {
		return "", err
	}

	out := Identity + " " + frag
	if trimmed, ok := strings.CutPrefix(out, Identity+" "+string(And)+" "); ok {
		return trimmed, nil
	}
	if trimmed, ok := strings.CutPrefix(out, Identity+" "+string(Or)+" "); ok {
		return trimmed, nil
	}
	return out, nil
}

// Dialect 方言别名，避免调用方多引一个包
type Dialect = builder.Dialect

// render 渲染单个节点，first 为 true 时不渲染连接词前缀
func render(node Node, first bool, columns ColumnResolver, dialect Dialect) (string, error) {
	switch n := node.(type) {
	case Cond:
		frag, err := renderCond(n, columns, dialect)
		if err != nil {
			return "", err
		}
		if first {
			return frag, nil
		}
		return string(n.connective()) + " " + frag, nil

	case *Group:
		if len(n.Children) == 0 {
			if first {
				return Identity, nil
			}
			return string(n.connective()) + " " + Identity, nil
		}
		parts := make([]string, 0, len(n.Children))
		for i, child := range n.Children {
			frag, err := render(child, i == 0, columns, dialect)
			if err != nil {
				return "", err
			}
			parts = append(parts, frag)
		}
		inner := "(" + strings.Join(parts, " ") + ")"
		if first {
			return inner, nil
		}
		return string(n.connective()) + " " + inner, nil
	}

	return "", errors.WithMessagef(ErrInvalidCondition, "unknown node %T", node)
}

func renderCond(cond Cond, columns ColumnResolver, dialect Dialect) (string, error) {
	column, ok := columns.ColumnOf(cond.Field)
	if !ok {
		return "", errors.WithMessagef(ErrNoColumnMatch, "field %s", cond.Field)
	}

	value := cond.Value
	if isNilValue(value) {
		// null 操作数的等值比较要渲染为 is [not] null，而不是 = null
		switch cond.Op {
		case OpEq:
			return column + " is null", nil
		case OpNe:
			return column + " is not null", nil
		}
	}

	return fmt.Sprintf("%s %s %s", column, cond.Op, builder.EscapeValue(dialect, value)), nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
