package orm

import (
	"context"

	"github.com/hatlonely/ormx/meta"
	"github.com/hatlonely/ormx/query"
)

// Repository 类型化的仓储门面，把引擎的 any 接口收敛到单个实体类型上
type Repository[T any] struct {
	engine *Engine
	desc   *meta.TableDescriptor
}

// NewRepository 创建仓储，实体元数据问题在这里提前暴露
func NewRepository[T any](engine *Engine) (*Repository[T], error) {
	var zero T
	desc, err := meta.Describe(&zero)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{engine: engine, desc: desc}, nil
}

// Descriptor 实体的表描述符
func (r *Repository[T]) Descriptor() *meta.TableDescriptor {
	return r.desc
}

// Migrate 按描述符建表
func (r *Repository[T]) Migrate(ctx context.Context) error {
	return r.engine.Client().Migrate(ctx, r.desc)
}

// Get 按主键取单个实体
func (r *Repository[T]) Get(ctx context.Context, pks ...any) (*T, error) {
	entity := new(T)
	if err := r.engine.Find(ctx, entity, pks...); err != nil {
		return nil, err
	}
	return entity, nil
}

// List 按过滤树查询
func (r *Repository[T]) List(ctx context.Context, node query.Node, opts ...FindOption) ([]*T, error) {
	var entities []*T
	if err := r.engine.FindAll(ctx, &entities, node, opts...); err != nil {
		return nil, err
	}
	return entities, nil
}

// ListBy 按字段路径查询
func (r *Repository[T]) ListBy(ctx context.Context, path string, values []any, opts ...FindOption) ([]*T, error) {
	var entities []*T
	if err := r.engine.FindBy(ctx, &entities, path, values, opts...); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *Repository[T]) Create(ctx context.Context, entity *T, opts ...WriteOption) error {
	return r.engine.Insert(ctx, entity, opts...)
}

func (r *Repository[T]) Update(ctx context.Context, entity *T, opts ...WriteOption) error {
	return r.engine.Update(ctx, entity, opts...)
}

func (r *Repository[T]) Save(ctx context.Context, entity *T, opts ...WriteOption) error {
	return r.engine.Save(ctx, entity, opts...)
}

func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.engine.Delete(ctx, entity)
}

func (r *Repository[T]) DeleteBy(ctx context.Context, path string, values []any) (int64, error) {
	var zero T
	return r.engine.DeleteBy(ctx, &zero, path, values)
}

func (r *Repository[T]) Count(ctx context.Context, node query.Node) (int, error) {
	var zero T
	return r.engine.CountAll(ctx, &zero, node)
}

func (r *Repository[T]) CountBy(ctx context.Context, path string, values []any) (int, error) {
	var zero T
	return r.engine.CountBy(ctx, &zero, path, values)
}

func (r *Repository[T]) Exists(ctx context.Context, path string, values []any) (bool, error) {
	var zero T
	return r.engine.ExistsBy(ctx, &zero, path, values)
}
