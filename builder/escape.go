package builder

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// DatetimeFormat 时间值渲染格式
const DatetimeFormat = "2006-01-02 15:04:05"

// EscapeValue 把类型化的值转义为方言安全的 SQL 字面量
// nil 渲染为不带引号的 null 关键字，字符串用单引号包裹并转义内嵌引号，
// 布尔按方言渲染，时间按 DatetimeFormat 渲染
func (b *Builder) EscapeValue(v any) string {
	return EscapeValue(b.dialect, v)
}

func EscapeValue(dialect Dialect, v any) string {
	if v == nil {
		return "null"
	}

	// 指针统一解引用，空指针等价于 null
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}
	v = rv.Interface()

	switch x := v.(type) {
	case string:
		return quoteString(dialect, x)
	case bool:
		if dialect == DialectPostgres {
			if x {
				return "true"
			}
			return "false"
		}
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return "'" + x.Format(DatetimeFormat) + "'"
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return quoteString(dialect, x.String())
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.String:
		return quoteString(dialect, rv.String())
	}

	return quoteString(dialect, fmt.Sprintf("%v", v))
}

// quoteString 单引号双写，mysql 额外双写反斜杠
func quoteString(dialect Dialect, s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			out = append(out, '\'', '\'')
		case '\\':
			if dialect == DialectMySQL {
				out = append(out, '\\', '\\')
			} else {
				out = append(out, '\\')
			}
		default:
			out = append(out, s[i])
		}
	}
	out = append(out, '\'')
	return string(out)
}
