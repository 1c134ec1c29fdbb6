package query

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ParsePath 解析字段路径 DSL
// 路径由字段名用字面量 And / Or 连接而成，如 nameAndActive、ageOrScore，
// 按顺序与 values 里的值配对；值可以是 Cond（沿用其运算符），
// 其他值一律按等值比较处理
//
// fields 是实体已知字段名集合，匹配采用最长优先、忽略首字母大小写；
// 路径里出现未知字段返回 ErrNoColumnMatch，
// 段数与值数不一致返回 ErrInvalidCondition
func ParsePath(path string, values []any, fields []string) (*Group, error) {
	if path == "" {
		return nil, errors.WithMessage(ErrInvalidCondition, "empty path")
	}

	segments, conns, err := splitPath(path, fields)
	if err != nil {
		return nil, err
	}
	if len(segments) != len(values) {
		return nil, errors.WithMessagef(ErrInvalidCondition,
			"path %s has %d segments but %d values", path, len(segments), len(values))
	}

	group := NewGroup()
	for i, segment := range segments {
		cond := Cond{Field: segment, Op: OpEq, Value: values[i], Connective: conns[i]}
		switch v := values[i].(type) {
		case Cond:
			cond.Op = v.Op
			cond.Value = v.Value
		case *Cond:
			cond.Op = v.Op
			cond.Value = v.Value
		}
		group.Children = append(group.Children, cond)
	}
	return group, nil
}

// splitPath 按 And / Or 中缀切分路径，返回规范字段名和每段的连接词
func splitPath(path string, fields []string) ([]string, []Connective, error) {
	// 最长优先，避免短字段名吃掉长字段名的前缀
	candidates := make([]string, len(fields))
	copy(candidates, fields)
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	var segments []string
	var conns []Connective

	rest := path
	conn := And
	for rest != "" {
		matched := ""
		for _, field := range candidates {
			if len(rest) < len(field) {
				continue
			}
			if !strings.EqualFold(rest[:len(field)], field) {
				continue
			}
			tail := rest[len(field):]
			if tail == "" || strings.HasPrefix(tail, "And") || strings.HasPrefix(tail, "Or") {
				matched = field
				break
			}
		}
		if matched == "" {
			return nil, nil, errors.WithMessagef(ErrNoColumnMatch, "path %s at %q", path, rest)
		}

		segments = append(segments, matched)
		conns = append(conns, conn)

		rest = rest[len(matched):]
		switch {
		case rest == "":
		case strings.HasPrefix(rest, "And"):
			conn = And
			rest = rest[len("And"):]
		case strings.HasPrefix(rest, "Or"):
			conn = Or
			rest = rest[len("Or"):]
		}
		if rest == "" && len(segments) > 0 && (strings.HasSuffix(path, "And") || strings.HasSuffix(path, "Or")) {
			return nil, nil, errors.WithMessagef(ErrInvalidCondition, "path %s ends with a connective", path)
		}
	}

	return segments, conns, nil
}
