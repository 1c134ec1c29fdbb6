package builder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrNoTable = errors.New("no table")

// Dialect SQL 方言，影响布尔字面量和字符串转义规则
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

type verb int

const (
	verbNone verb = iota
	verbSelect
	verbInsert
	verbUpdate
	verbDelete
)

// Builder 增量式 SQL 语句构建器
// 各子句按固定顺序渲染，与调用顺序无关；
// 多次调用 Where 时片段用 and 连接
type Builder struct {
	dialect Dialect

	verb       verb
	table      string
	selectCols []string
	fields     []string
	values     []string
	sets       []string
	wheres     []string
	orders     []string
	limit      int
	offset     int
}

// New 创建构建器，缺省方言为 mysql
func New(dialect Dialect) *Builder {
	if dialect == "" {
		dialect = DialectMySQL
	}
	return &Builder{
		dialect: dialect,
		limit:   -1,
		offset:  -1,
	}
}

func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Select 选择列，不指定时渲染为 *
func (b *Builder) Select(cols ...string) *Builder {
	b.verb = verbSelect
	b.selectCols = append(b.selectCols, cols...)
	return b
}

func (b *Builder) From(table string) *Builder {
	b.table = table
	return b
}

func (b *Builder) InsertInto(table string) *Builder {
	b.verb = verbInsert
	b.table = table
	return b
}

func (b *Builder) Fields(cols ...string) *Builder {
	b.fields = append(b.fields, cols...)
	return b
}

// Values 追加一组值，渲染为转义后的字面量
func (b *Builder) Values(vals ...any) *Builder {
	for _, v := range vals {
		b.values = append(b.values, b.EscapeValue(v))
	}
	return b
}

func (b *Builder) Update(table string) *Builder {
	b.verb = verbUpdate
	b.table = table
	return b
}

func (b *Builder) Set(col string, val any) *Builder {
	b.sets = append(b.sets, fmt.Sprintf("%s = %s", col, b.EscapeValue(val)))
	return b
}

func (b *Builder) DeleteFrom(table string) *Builder {
	b.verb = verbDelete
	b.table = table
	return b
}

// Where 追加过滤片段，片段是内部由元数据拼出来的可信输入
func (b *Builder) Where(frag string) *Builder {
	if strings.TrimSpace(frag) == "" {
		return b
	}
	b.wheres = append(b.wheres, frag)
	return b
}

func (b *Builder) OrderBy(col string, desc bool) *Builder {
	direction := "asc"
	if desc {
		direction = "desc"
	}
	b.orders = append(b.orders, fmt.Sprintf("%s %s", col, direction))
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Page 1 起始的页码换算为 limit/offset
func (b *Builder) Page(page int, size int) *Builder {
	if page < 1 {
		page = 1
	}
	return b.Limit(size).Offset((page - 1) * size)
}

// Build 渲染最终 SQL 文本
func (b *Builder) Build() (string, error) {
	if b.table == "" {
		return "", errors.WithMessage(ErrNoTable, "build")
	}

	switch b.verb {
	case verbSelect:
		cols := "*"
		if len(b.selectCols) > 0 {
			cols = strings.Join(b.selectCols, ", ")
		}
		sqlStr := fmt.Sprintf("select %s from %s", cols, b.table)
		sqlStr += b.renderWhere()
		if len(b.orders) > 0 {
			sqlStr += " order by " + strings.Join(b.orders, ", ")
		}
		if b.limit >= 0 {
			sqlStr += fmt.Sprintf(" limit %d", b.limit)
		}
		if b.offset > 0 {
			sqlStr += fmt.Sprintf(" offset %d", b.offset)
		}
		return sqlStr, nil

	case verbInsert:
		if len(b.fields) == 0 || len(b.fields) != len(b.values) {
			return "", errors.Errorf("insert fields/values mismatch: %d fields, %d values", len(b.fields), len(b.values))
		}
		return fmt.Sprintf("insert into %s (%s) values (%s)",
			b.table,
			strings.Join(b.fields, ", "),
			strings.Join(b.values, ", ")), nil

	case verbUpdate:
		if len(b.sets) == 0 {
			return "", errors.New("update without set")
		}
		return fmt.Sprintf("update %s set %s%s",
			b.table, strings.Join(b.sets, ", "), b.renderWhere()), nil

	case verbDelete:
		return fmt.Sprintf("delete from %s%s", b.table, b.renderWhere()), nil
	}

	return "", errors.New("no statement verb")
}

func (b *Builder) renderWhere() string {
	if len(b.wheres) == 0 {
		return ""
	}
	return " where " + strings.Join(b.wheres, " and ")
}

// HasWhere 是否已有非空过滤片段，update/delete 执行前的保护检查用
func (b *Builder) HasWhere() bool {
	return len(b.wheres) > 0
}
