package orm

import (
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/ormx/meta"
)

// zeroDates 一批等价于 null 的"零日期"字面量，
// 无论列声明成什么类型，读到它们都协变成空
var zeroDates = map[string]bool{
	"0000-00-00":                 true,
	"0000-00-00 00:00:00":        true,
	"0000-00-00 00:00:00.0":      true,
	"0000-00-00 00:00:00.000":    true,
	"0000-00-00 00:00:00.000000": true,
}

// coerceValue 按列声明的类型协变驱动返回的原始值
// 返回统一的类型族：bool / int64 / float64 / time.Time / string，空值返回 nil
func coerceValue(raw any, column *meta.ColumnMeta) any {
	if raw == nil {
		return nil
	}

	if s, ok := raw.(string); ok && zeroDates[s] {
		return nil
	}

	switch column.Type {
	case meta.ColumnTypeBool:
		return truthy(raw)
	case meta.ColumnTypeInt:
		return coerceInt(raw)
	case meta.ColumnTypeFloat:
		return coerceFloat(raw)
	case meta.ColumnTypeDatetime:
		return coerceDatetime(raw, column.Format)
	}

	// 其余类型原样透传，[]byte 在网关层已经转成 string
	return raw
}

// truthy 数值非零或字符串 "1"/"true"/"yes" 视为真
func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f != 0
		}
		return false
	}
	return false
}

func coerceInt(raw any) any {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f)
		}
		return nil
	}
	return raw
}

func coerceFloat(raw any) any {
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
		return nil
	}
	return raw
}

// coerceDatetime 按固定格式解析，超出 19 个字符的小数秒后缀直接截掉
func coerceDatetime(raw any, format string) any {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		s := v
		if len(s) > 19 {
			s = s[:19]
		}
		if format == "" {
			format = meta.DefaultDatetimeFormat
		}
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t
		}
		return nil
	}
	return raw
}
