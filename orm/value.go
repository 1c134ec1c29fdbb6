package orm

import (
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/meta"
)

// entityValue 取实体指针指向的结构体值，写回字段要求可寻址
func entityValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("entity must be a non-nil struct pointer, got %T", entity)
	}
	return rv.Elem(), nil
}

// fieldIsNull 空值判定：nil 指针或 nil 接口视为空，值类型字段永远参与
func fieldIsNull(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// fieldIsEmpty 主键生成策略的幂等判定：已有值就不再生成
func fieldIsEmpty(rv reflect.Value) bool {
	if fieldIsNull(rv) {
		return true
	}
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	return rv.IsZero()
}

// setField 把协变后的值写入字段，目标是指针时先分配
func setField(fv reflect.Value, value any) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	target := fv
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		target = fv.Elem()
	}

	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(target.Type()) {
		target.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(target.Type()) {
		// string 和数值之间的 Convert 语义不符合预期，这里只放行数值族内的转换
		if vv.Kind() == reflect.String && target.Kind() != reflect.String {
			return errors.Errorf("cannot convert %v to %v", vv.Type(), target.Type())
		}
		if target.Kind() == reflect.String && vv.Kind() != reflect.String {
			return errors.Errorf("cannot convert %v to %v", vv.Type(), target.Type())
		}
		target.Set(vv.Convert(target.Type()))
		return nil
	}
	if t, ok := value.(time.Time); ok && target.Type() == reflect.TypeOf(time.Time{}) {
		target.Set(reflect.ValueOf(t))
		return nil
	}
	return errors.Errorf("cannot assign %v to %v", vv.Type(), target.Type())
}

// foreignKeyValue 从关联实体上读外键标量，取目标表第一个主键的值
func foreignKeyValue(fv reflect.Value, join *meta.JoinMeta) (any, error) {
	target, err := meta.DescribeType(join.Target)
	if err != nil {
		return nil, err
	}
	if len(target.PrimaryKeys) == 0 {
		return nil, errors.WithMessagef(ErrNoPrimaryKey, "join target %s", join.Target.Name())
	}

	tv := fv
	for tv.Kind() == reflect.Ptr {
		if tv.IsNil() {
			return nil, nil
		}
		tv = tv.Elem()
	}
	return tv.Field(target.PrimaryKeys[0].Index).Interface(), nil
}
