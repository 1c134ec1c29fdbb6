package meta

import (
	"reflect"
	"sync"
)

// registry 进程级描述符缓存
// 先在锁外构建再发布，发布之后只读，读路径走读锁
var registry = struct {
	sync.RWMutex
	descriptors map[reflect.Type]*TableDescriptor
}{
	descriptors: map[reflect.Type]*TableDescriptor{},
}

// Describe 获取实体的表描述符，每个类型只构建一次
func Describe(v any) (*TableDescriptor, error) {
	return DescribeType(reflect.TypeOf(v))
}

// DescribeType 按类型获取表描述符
func DescribeType(rt reflect.Type) (*TableDescriptor, error) {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}

	registry.RLock()
	desc, ok := registry.descriptors[rt]
	registry.RUnlock()
	if ok {
		return desc, nil
	}

	desc, err := describeType(rt)
	if err != nil {
		return nil, err
	}

	registry.Lock()
	// 并发构建时保留先发布的那份
	if exist, ok := registry.descriptors[rt]; ok {
		registry.Unlock()
		return exist, nil
	}
	registry.descriptors[rt] = desc
	registry.Unlock()

	return desc, nil
}

// MustDescribe Describe 的 panic 版本
func MustDescribe(v any) *TableDescriptor {
	desc, err := Describe(v)
	if err != nil {
		panic(err)
	}
	return desc
}
