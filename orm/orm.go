package orm

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/db"
	"github.com/hatlonely/ormx/query"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrNoPrimaryKey       = errors.New("no primary key defined")
	ErrNoInsertableColumn = errors.New("no insertable column")
	ErrNoUpdatableColumn  = errors.New("no updatable column")

	// 过滤相关错误和 query 包共用同一个哨兵
	ErrInvalidCondition = query.ErrInvalidCondition
	ErrNoColumnMatch    = query.ErrNoColumnMatch
)

// Options 引擎配置
type Options struct {
	DB db.Options `cfg:"db"`

	Logger *slog.Logger
}

// Engine 持久化引擎
// 除了 meta 包的描述符缓存之外没有任何跨调用状态，
// 并发安全性取决于底层连接，引擎自身不加锁、不开事务、不重试
type Engine struct {
	client *db.Client
}

// NewEngine 基于已有连接创建引擎
func NewEngine(client *db.Client) *Engine {
	return &Engine{client: client}
}

// NewEngineWithOptions 创建连接和引擎
func NewEngineWithOptions(options *Options) (*Engine, error) {
	if options.Logger != nil && options.DB.Logger == nil {
		options.DB.Logger = options.Logger
	}
	client, err := db.NewClientWithOptions(&options.DB)
	if err != nil {
		return nil, errors.WithMessage(err, "new db client")
	}
	return &Engine{client: client}, nil
}

// Client 暴露底层网关，建表和测试清理用
func (e *Engine) Client() *db.Client {
	return e.client
}

func (e *Engine) Close() error {
	return e.client.Close()
}

// WriteOptions 写入选项
type WriteOptions struct {
	// IncludeNulls 为 true 时空值字段也写入（渲染为 null）
	IncludeNulls bool
}

type WriteOption func(*WriteOptions)

// WithNulls 空值字段也参与 INSERT/UPDATE
func WithNulls() WriteOption {
	return func(o *WriteOptions) {
		o.IncludeNulls = true
	}
}

func newWriteOptions(opts []WriteOption) *WriteOptions {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// FindOptions 查询选项：排序和分页
type FindOptions struct {
	sorts []sortSpec
	page  int
	size  int
}

type sortSpec struct {
	field string
	desc  bool
}

type FindOption func(*FindOptions)

// WithSort 追加一个排序字段，可重复调用
func WithSort(field string, desc bool) FindOption {
	return func(o *FindOptions) {
		o.sorts = append(o.sorts, sortSpec{field: field, desc: desc})
	}
}

// WithPage 1 起始的分页
func WithPage(page int, size int) FindOption {
	return func(o *FindOptions) {
		o.page = page
		o.size = size
	}
}

func newFindOptions(opts []FindOption) *FindOptions {
	options := &FindOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
