package orm

import (
	"context"
	"encoding/hex"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/builder"
	"github.com/hatlonely/ormx/meta"
	"github.com/hatlonely/ormx/query"
)

// Insert 插入实体
// uuid 策略的主键在构建语句前生成并写回实体，identity 策略的主键
// 不出现在语句里，执行后从驱动取回自增值写回实体；
// 空值字段默认不参与，没有可插入列时返回 ErrNoInsertableColumn
func (e *Engine) Insert(ctx context.Context, entity any, opts ...WriteOption) error {
	options := newWriteOptions(opts)

	desc, err := meta.Describe(entity)
	if err != nil {
		return err
	}
	rv, err := entityValue(entity)
	if err != nil {
		return err
	}

	// 生成策略幂等：已有值的主键不再生成
	for _, pk := range desc.PrimaryKeys {
		if pk.Strategy == meta.StrategyUUID && fieldIsEmpty(rv.Field(pk.Index)) {
			u := uuid.New()
			if err := setField(rv.Field(pk.Index), hex.EncodeToString(u[:])); err != nil {
				return errors.WithMessagef(err, "assign uuid to %s", pk.FieldName)
			}
		}
	}

	b := builder.New(e.client.Dialect()).InsertInto(desc.Table)
	count := 0

	for _, column := range desc.Columns {
		if !column.Insertable {
			continue
		}
		if column.Strategy == meta.StrategyIdentity {
			continue
		}
		fv := rv.Field(column.Index)
		if fieldIsNull(fv) && !options.IncludeNulls {
			continue
		}
		b.Fields(column.Column).Values(fv.Interface())
		count++
	}

	for _, join := range desc.Joins {
		fv := rv.Field(join.Index)
		if fieldIsNull(fv) {
			if options.IncludeNulls {
				b.Fields(join.Column).Values(nil)
				count++
			}
			continue
		}
		fk, err := foreignKeyValue(fv, join)
		if err != nil {
			return errors.WithMessagef(err, "join %s", join.FieldName)
		}
		b.Fields(join.Column).Values(fk)
		count++
	}

	if count == 0 {
		return errors.WithMessagef(ErrNoInsertableColumn, "table %s", desc.Table)
	}

	sqlText, err := b.Build()
	if err != nil {
		return err
	}
	result, err := e.client.ExecInsert(ctx, sqlText)
	if err != nil {
		return err
	}

	for _, pk := range desc.PrimaryKeys {
		if pk.Strategy != meta.StrategyIdentity || !fieldIsEmpty(rv.Field(pk.Index)) {
			continue
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errors.Wrapf(err, "last insert id on %s", desc.Table)
		}
		if err := setField(rv.Field(pk.Index), id); err != nil {
			return errors.WithMessagef(err, "assign identity to %s", pk.FieldName)
		}
	}

	return nil
}

// Update 按主键更新实体
// 主键全部为空或未声明主键时直接报错，不会发出无过滤条件的 UPDATE；
// SET 为空时返回 ErrNoUpdatableColumn，同样不发语句
func (e *Engine) Update(ctx context.Context, entity any, opts ...WriteOption) error {
	options := newWriteOptions(opts)

	desc, err := meta.Describe(entity)
	if err != nil {
		return err
	}
	rv, err := entityValue(entity)
	if err != nil {
		return err
	}

	where, err := e.primaryKeyWhere(desc, rv)
	if err != nil {
		return err
	}

	b := builder.New(e.client.Dialect()).Update(desc.Table).Where(where)
	count := 0

	for _, column := range desc.Columns {
		if column.Primary || !column.Updatable {
			continue
		}
		fv := rv.Field(column.Index)
		if fieldIsNull(fv) && !options.IncludeNulls {
			continue
		}
		b.Set(column.Column, fv.Interface())
		count++
	}

	for _, join := range desc.Joins {
		fv := rv.Field(join.Index)
		if fieldIsNull(fv) {
			if options.IncludeNulls {
				b.Set(join.Column, nil)
				count++
			}
			continue
		}
		fk, err := foreignKeyValue(fv, join)
		if err != nil {
			return errors.WithMessagef(err, "join %s", join.FieldName)
		}
		b.Set(join.Column, fk)
		count++
	}

	if count == 0 {
		return errors.WithMessagef(ErrNoUpdatableColumn, "table %s", desc.Table)
	}

	sqlText, err := b.Build()
	if err != nil {
		return err
	}
	_, err = e.client.ExecUpdate(ctx, sqlText)
	return err
}

// Save 存在性探测式 upsert：先按主键 SELECT，命中就把调用方的非空
// 字段叠在读回的行上做 UPDATE，否则（包括探测本身失败）回退 INSERT
//
// 探测和写入是两条独立语句，中间没有事务也没有行锁：并发对同一个
// 未存在主键 Save 时两边都可能走到 INSERT，第二个写入者会收到
// 底层唯一约束的驱动错误，引擎不捕获也不重试
func (e *Engine) Save(ctx context.Context, entity any, opts ...WriteOption) error {
	desc, err := meta.Describe(entity)
	if err != nil {
		return err
	}
	rv, err := entityValue(entity)
	if err != nil {
		return err
	}

	row := e.probeByPrimaryKey(ctx, desc, rv)
	if row == nil {
		return e.Insert(ctx, entity, opts...)
	}

	// 读回的行值只补在调用方留空的字段上
	for _, column := range desc.Columns {
		if column.Primary {
			continue
		}
		fv := rv.Field(column.Index)
		if !fieldIsNull(fv) {
			continue
		}
		raw, ok := row[column.Column]
		if !ok {
			continue
		}
		_ = setField(fv, coerceValue(raw, column))
	}

	return e.Update(ctx, entity, opts...)
}

// Delete 按主键删除实体，和 Update 一样保证 WHERE 非空
func (e *Engine) Delete(ctx context.Context, entity any) error {
	desc, err := meta.Describe(entity)
	if err != nil {
		return err
	}
	rv, err := entityValue(entity)
	if err != nil {
		return err
	}

	where, err := e.primaryKeyWhere(desc, rv)
	if err != nil {
		return err
	}

	sqlText, err := builder.New(e.client.Dialect()).DeleteFrom(desc.Table).Where(where).Build()
	if err != nil {
		return err
	}
	_, err = e.client.ExecDelete(ctx, sqlText)
	return err
}

// Find 按主键取单行填充实体
// 值的个数必须和主键列数一致，按主键声明顺序配对；
// 没有命中行或实体没有声明主键时返回 ErrRecordNotFound
func (e *Engine) Find(ctx context.Context, entity any, pks ...any) error {
	desc, err := meta.Describe(entity)
	if err != nil {
		return err
	}
	rv, err := entityValue(entity)
	if err != nil {
		return err
	}

	if len(desc.PrimaryKeys) == 0 {
		return errors.WithMessagef(ErrRecordNotFound, "no primary key on %s", desc.Table)
	}
	if len(pks) != len(desc.PrimaryKeys) {
		return errors.WithMessagef(ErrInvalidCondition,
			"table %s wants %d primary key values, got %d", desc.Table, len(desc.PrimaryKeys), len(pks))
	}

	group := query.NewGroup()
	for i, pk := range desc.PrimaryKeys {
		group.AddAnd(query.Eq(pk.FieldName, pks[i]))
	}
	where, err := query.CompileDialect(group, desc, e.client.Dialect())
	if err != nil {
		return err
	}

	sqlText, err := builder.New(e.client.Dialect()).Select().From(desc.Table).Where(where).Build()
	if err != nil {
		return err
	}
	row, err := e.client.Fetch(ctx, sqlText)
	if err != nil {
		return err
	}
	if row == nil {
		return errors.WithMessagef(ErrRecordNotFound, "table %s", desc.Table)
	}

	return e.materialize(ctx, desc, row, rv)
}

// FindAll 按过滤树查询多行
// dest 是指向 []T 或 []*T 的指针；零行返回 ErrRecordNotFound
func (e *Engine) FindAll(ctx context.Context, dest any, node query.Node, opts ...FindOption) error {
	desc, rt, err := e.sliceDescriptor(dest)
	if err != nil {
		return err
	}

	where, err := query.CompileDialect(node, desc, e.client.Dialect())
	if err != nil {
		return err
	}
	return e.findRows(ctx, dest, desc, rt, where, newFindOptions(opts))
}

// FindBy 按字段路径查询多行，如 FindBy(ctx, &genres, "nameAndActive", []any{"Rock", true})
func (e *Engine) FindBy(ctx context.Context, dest any, path string, values []any, opts ...FindOption) error {
	desc, rt, err := e.sliceDescriptor(dest)
	if err != nil {
		return err
	}

	group, err := query.ParsePath(path, values, desc.FieldNames())
	if err != nil {
		return err
	}
	where, err := query.CompileDialect(group, desc, e.client.Dialect())
	if err != nil {
		return err
	}
	return e.findRows(ctx, dest, desc, rt, where, newFindOptions(opts))
}

// CountAll 按过滤树计数，用第一个主键列做投影
func (e *Engine) CountAll(ctx context.Context, model any, node query.Node) (int, error) {
	desc, err := meta.Describe(model)
	if err != nil {
		return 0, err
	}
	where, err := query.CompileDialect(node, desc, e.client.Dialect())
	if err != nil {
		return 0, err
	}
	return e.countRows(ctx, desc, where)
}

// CountBy 按字段路径计数
func (e *Engine) CountBy(ctx context.Context, model any, path string, values []any) (int, error) {
	desc, err := meta.Describe(model)
	if err != nil {
		return 0, err
	}
	group, err := query.ParsePath(path, values, desc.FieldNames())
	if err != nil {
		return 0, err
	}
	where, err := query.CompileDialect(group, desc, e.client.Dialect())
	if err != nil {
		return 0, err
	}
	return e.countRows(ctx, desc, where)
}

// ExistsBy 按字段路径判断存在性
func (e *Engine) ExistsBy(ctx context.Context, model any, path string, values []any) (bool, error) {
	count, err := e.CountBy(ctx, model, path, values)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteBy 按字段路径删除，返回受影响行数
func (e *Engine) DeleteBy(ctx context.Context, model any, path string, values []any) (int64, error) {
	desc, err := meta.Describe(model)
	if err != nil {
		return 0, err
	}
	group, err := query.ParsePath(path, values, desc.FieldNames())
	if err != nil {
		return 0, err
	}
	where, err := query.CompileDialect(group, desc, e.client.Dialect())
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(where) == "" {
		return 0, errors.WithMessagef(ErrInvalidCondition, "blank where on %s", desc.Table)
	}

	sqlText, err := builder.New(e.client.Dialect()).DeleteFrom(desc.Table).Where(where).Build()
	if err != nil {
		return 0, err
	}
	result, err := e.client.ExecDelete(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return affected, nil
}

// primaryKeyWhere 按主键声明顺序构建等值 WHERE
// 没有声明主键返回 ErrNoPrimaryKey，主键值全空返回 ErrInvalidCondition，
// 保证 UPDATE/DELETE 永远不会带着空过滤条件出门
func (e *Engine) primaryKeyWhere(desc *meta.TableDescriptor, rv reflect.Value) (string, error) {
	if len(desc.PrimaryKeys) == 0 {
		return "", errors.WithMessagef(ErrNoPrimaryKey, "table %s", desc.Table)
	}

	hasValue := false
	group := query.NewGroup()
	for _, pk := range desc.PrimaryKeys {
		fv := rv.Field(pk.Index)
		if !fieldIsNull(fv) && !fv.IsZero() {
			hasValue = true
		}
		group.AddAnd(query.Eq(pk.FieldName, fv.Interface()))
	}
	if !hasValue {
		return "", errors.WithMessagef(ErrInvalidCondition, "all primary key values unset on %s", desc.Table)
	}

	where, err := query.CompileDialect(group, desc, e.client.Dialect())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(where) == "" {
		return "", errors.WithMessagef(ErrInvalidCondition, "blank where on %s", desc.Table)
	}
	return where, nil
}

// probeByPrimaryKey Save 的存在性探测，任何失败都按"不存在"处理
func (e *Engine) probeByPrimaryKey(ctx context.Context, desc *meta.TableDescriptor, rv reflect.Value) map[string]any {
	where, err := e.primaryKeyWhere(desc, rv)
	if err != nil {
		return nil
	}
	sqlText, err := builder.New(e.client.Dialect()).Select().From(desc.Table).Where(where).Build()
	if err != nil {
		return nil
	}
	row, err := e.client.Fetch(ctx, sqlText)
	if err != nil {
		return nil
	}
	return row
}

func (e *Engine) findRows(ctx context.Context, dest any, desc *meta.TableDescriptor, rt reflect.Type, where string, options *FindOptions) error {
	b := builder.New(e.client.Dialect()).Select().From(desc.Table).Where(where)

	for _, sort := range options.sorts {
		column, ok := desc.ColumnOf(sort.field)
		if !ok {
			return errors.WithMessagef(ErrNoColumnMatch, "sort field %s", sort.field)
		}
		b.OrderBy(column, sort.desc)
	}
	if options.size > 0 {
		b.Page(options.page, options.size)
	}

	sqlText, err := b.Build()
	if err != nil {
		return err
	}
	rows, err := e.client.FetchAll(ctx, sqlText)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.WithMessagef(ErrRecordNotFound, "table %s", desc.Table)
	}

	slice := reflect.ValueOf(dest).Elem()
	slice.Set(reflect.MakeSlice(slice.Type(), 0, len(rows)))
	elemIsPtr := slice.Type().Elem().Kind() == reflect.Ptr

	for _, row := range rows {
		item := reflect.New(rt)
		if err := e.materialize(ctx, desc, row, item.Elem()); err != nil {
			return err
		}
		if elemIsPtr {
			slice.Set(reflect.Append(slice, item))
		} else {
			slice.Set(reflect.Append(slice, item.Elem()))
		}
	}
	return nil
}

func (e *Engine) countRows(ctx context.Context, desc *meta.TableDescriptor, where string) (int, error) {
	// 有主键时只投影第一个主键列，省掉无谓的列传输
	b := builder.New(e.client.Dialect())
	if len(desc.PrimaryKeys) > 0 {
		b.Select(desc.PrimaryKeys[0].Column)
	} else {
		b.Select()
	}
	sqlText, err := b.From(desc.Table).Where(where).Build()
	if err != nil {
		return 0, err
	}
	rows, err := e.client.FetchAll(ctx, sqlText)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// materialize 把原始行协变成类型化字段并解析关联
func (e *Engine) materialize(ctx context.Context, desc *meta.TableDescriptor, row map[string]any, rv reflect.Value) error {
	for _, column := range desc.Columns {
		raw, ok := row[column.Column]
		if !ok {
			continue
		}
		if err := setField(rv.Field(column.Index), coerceValue(raw, column)); err != nil {
			return errors.WithMessagef(err, "field %s", column.FieldName)
		}
	}

	// 关联解析是尽力而为：查不到、解析失败都置空，不影响主查询
	// 每个关联字段一次额外往返，没有跨行的批量或缓存
	for _, join := range desc.Joins {
		fv := rv.Field(join.Index)
		fv.Set(reflect.Zero(fv.Type()))

		raw, ok := row[join.Column]
		if !ok || raw == nil {
			continue
		}
		target := reflect.New(join.Target)
		if err := e.Find(ctx, target.Interface(), raw); err != nil {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			fv.Set(target)
		} else {
			fv.Set(target.Elem())
		}
	}

	return nil
}

// sliceDescriptor 解析 dest 切片指针，返回元素类型的描述符
func (e *Engine) sliceDescriptor(dest any) (*meta.TableDescriptor, reflect.Type, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return nil, nil, errors.Errorf("dest must be a pointer to slice, got %T", dest)
	}
	rt := rv.Elem().Type().Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, nil, errors.Errorf("dest element must be a struct, got %v", rt)
	}
	desc, err := meta.DescribeType(rt)
	if err != nil {
		return nil, nil, err
	}
	return desc, rt, nil
}
