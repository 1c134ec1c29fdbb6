package meta

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNoTableName = errors.New("no table name")
	ErrBadTag      = errors.New("bad rdb tag")
)

// Strategy 主键生成策略
type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategyUUID     Strategy = "uuid"
	StrategyIdentity Strategy = "identity"
)

// ColumnType 列类型
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeInt      ColumnType = "int"
	ColumnTypeFloat    ColumnType = "float"
	ColumnTypeBool     ColumnType = "bool"
	ColumnTypeDatetime ColumnType = "datetime"
	ColumnTypeJSON     ColumnType = "json"
)

// DefaultDatetimeFormat 日期时间列的默认格式
const DefaultDatetimeFormat = "2006-01-02 15:04:05"

// ColumnMeta 标量列定义
type ColumnMeta struct {
	FieldName  string     // 结构体字段名
	Column     string     // 数据库列名
	Type       ColumnType // 列类型
	Size       int        // 列长度，如 VARCHAR(255)
	Required   bool       // NOT NULL 约束
	Insertable bool       // 是否参与 INSERT
	Updatable  bool       // 是否参与 UPDATE
	Primary    bool       // 是否主键
	Strategy   Strategy   // 主键生成策略
	Default    any        // 默认值
	Format     string     // 日期时间格式
	Index      int        // 结构体字段下标
}

// JoinMeta 关联列定义
// 字段本身持有关联实体，外键标量存在 Column 指定的列里，
// 关联实体类型直接取字段自身的结构体类型
type JoinMeta struct {
	FieldName string
	Column    string
	Target    reflect.Type // 关联实体的结构体类型（非指针）
	Index     int
}

// TableDescriptor 表描述符，每个实体类型构建一次后缓存
type TableDescriptor struct {
	Table       string
	Type        reflect.Type
	Columns     []*ColumnMeta
	Joins       []*JoinMeta
	PrimaryKeys []*ColumnMeta // 按声明顺序，复合主键的 WHERE 依赖这个顺序
	Required    []string
	Defaults    map[string]any

	columnIndex map[string]*ColumnMeta
	joinIndex   map[string]*JoinMeta
}

// Column 按字段名查找标量列
func (d *TableDescriptor) Column(field string) (*ColumnMeta, bool) {
	c, ok := d.columnIndex[field]
	return c, ok
}

// Join 按字段名查找关联列
func (d *TableDescriptor) Join(field string) (*JoinMeta, bool) {
	j, ok := d.joinIndex[field]
	return j, ok
}

// ColumnOf 标量列和关联列的合并视图，过滤条件编译走这里
func (d *TableDescriptor) ColumnOf(field string) (string, bool) {
	if c, ok := d.columnIndex[field]; ok {
		return c.Column, true
	}
	if j, ok := d.joinIndex[field]; ok {
		return j.Column, true
	}
	return "", false
}

// FieldNames 全部字段名（标量在前，关联在后），字段路径解析用
func (d *TableDescriptor) FieldNames() []string {
	names := make([]string, 0, len(d.Columns)+len(d.Joins))
	for _, c := range d.Columns {
		names = append(names, c.FieldName)
	}
	for _, j := range d.Joins {
		names = append(names, j.FieldName)
	}
	return names
}

// tableNamer 实体可以通过 TableName 方法指定表名
type tableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*tableNamer)(nil)).Elem()

// describeType 从结构体类型构建表描述符
// 支持的 tag 格式：
//   - `rdb:"column_name,type=string,size=255,required,primary,generate=uuid,noinsert,noupdate,default=...,format=...,join"`
//   - `rdb:"-"` 跳过字段
//   - `table:"table_name"` 在任意字段上指定表名
//
// 表名也可以通过 TableName() string 方法指定，两者都没有时报错
func describeType(rt reflect.Type) (*TableDescriptor, error) {
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %v", rt)
	}

	desc := &TableDescriptor{
		Type:        rt,
		Defaults:    map[string]any{},
		columnIndex: map[string]*ColumnMeta{},
		joinIndex:   map[string]*JoinMeta{},
	}

	desc.Table = tableName(rt)
	if desc.Table == "" {
		return nil, errors.WithMessagef(ErrNoTableName, "type %s", rt.Name())
	}

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		column, join, err := parseFieldTag(field, tag, i)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s.%s", rt.Name(), field.Name)
		}

		if join != nil {
			desc.Joins = append(desc.Joins, join)
			desc.joinIndex[join.FieldName] = join
			continue
		}

		desc.Columns = append(desc.Columns, column)
		desc.columnIndex[column.FieldName] = column
		if column.Primary {
			desc.PrimaryKeys = append(desc.PrimaryKeys, column)
		}
		if column.Required {
			desc.Required = append(desc.Required, column.Column)
		}
		if column.Default != nil {
			desc.Defaults[column.Column] = column.Default
		}
	}

	// 生成策略只允许出现在主键上
	for _, c := range desc.Columns {
		if c.Strategy != StrategyNone && !c.Primary {
			return nil, errors.WithMessagef(ErrBadTag, "field %s.%s: generate=%s on non-primary column", rt.Name(), c.FieldName, c.Strategy)
		}
	}

	return desc, nil
}

// tableName 获取表名：TableName 方法优先，其次任意字段上的 table tag
func tableName(rt reflect.Type) string {
	if rt.Implements(tableNamerType) {
		return reflect.New(rt).Elem().Interface().(tableNamer).TableName()
	}
	if reflect.PtrTo(rt).Implements(tableNamerType) {
		return reflect.New(rt).Interface().(tableNamer).TableName()
	}
	for i := 0; i < rt.NumField(); i++ {
		if tag := rt.Field(i).Tag.Get("table"); tag != "" {
			return tag
		}
	}
	return ""
}

// parseFieldTag 解析单个字段的 rdb tag，返回标量列或关联列（二选一）
func parseFieldTag(field reflect.StructField, tag string, index int) (*ColumnMeta, *JoinMeta, error) {
	column := &ColumnMeta{
		FieldName:  field.Name,
		Column:     field.Name,
		Type:       inferColumnType(field.Type),
		Insertable: true,
		Updatable:  true,
		Index:      index,
	}

	isJoin := false

	parts := strings.Split(tag, ",")

	// 第一部分是列名（如果指定）
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		column.Column = parts[0]
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "=") {
			kv := strings.SplitN(part, "=", 2)
			key := strings.TrimSpace(kv[0])
			value := strings.TrimSpace(kv[1])

			switch key {
			case "type":
				column.Type = ColumnType(value)
			case "size":
				size, err := strconv.Atoi(value)
				if err != nil {
					return nil, nil, errors.WithMessagef(ErrBadTag, "size=%s", value)
				}
				column.Size = size
			case "default":
				column.Default = parseDefaultValue(value, column.Type)
			case "format":
				column.Format = value
			case "generate":
				switch Strategy(value) {
				case StrategyUUID, StrategyIdentity:
					column.Strategy = Strategy(value)
				default:
					return nil, nil, errors.WithMessagef(ErrBadTag, "generate=%s", value)
				}
			default:
				return nil, nil, errors.WithMessagef(ErrBadTag, "unknown option %s", part)
			}
			continue
		}

		switch part {
		case "required", "not_null":
			column.Required = true
		case "primary", "pk":
			column.Primary = true
		case "noinsert":
			column.Insertable = false
		case "noupdate":
			column.Updatable = false
		case "join":
			isJoin = true
		default:
			return nil, nil, errors.WithMessagef(ErrBadTag, "unknown option %s", part)
		}
	}

	if !isJoin {
		if column.Type == ColumnTypeDatetime && column.Format == "" {
			column.Format = DefaultDatetimeFormat
		}
		return column, nil, nil
	}

	// 关联列：字段必须是结构体或结构体指针，关联类型就是字段自身的类型
	if column.Primary || column.Strategy != StrategyNone {
		return nil, nil, errors.WithMessagef(ErrBadTag, "join column cannot be primary or generated")
	}
	ft := field.Type
	if ft.Kind() == reflect.Ptr {
		ft = ft.Elem()
	}
	if ft.Kind() != reflect.Struct {
		return nil, nil, errors.WithMessagef(ErrBadTag, "join field must be a struct, got %v", field.Type)
	}
	return nil, &JoinMeta{
		FieldName: field.Name,
		Column:    column.Column,
		Target:    ft,
		Index:     index,
	}, nil
}

// inferColumnType 从 Go 类型推断列类型
func inferColumnType(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return ColumnTypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ColumnTypeInt
	case reflect.Float32, reflect.Float64:
		return ColumnTypeFloat
	case reflect.Bool:
		return ColumnTypeBool
	default:
		if t.String() == "time.Time" {
			return ColumnTypeDatetime
		}
		return ColumnTypeJSON
	}
}

// parseDefaultValue 按列类型解析 tag 里的默认值
func parseDefaultValue(value string, columnType ColumnType) any {
	switch columnType {
	case ColumnTypeString:
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			return value[1 : len(value)-1]
		}
		return value
	case ColumnTypeInt:
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		return 0
	case ColumnTypeFloat:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return 0.0
	case ColumnTypeBool:
		return value == "true" || value == "1"
	default:
		return value
	}
}
