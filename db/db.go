package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/builder"
)

// Kind 语句类别，执行后回调带上它做审计
type Kind string

const (
	KindQuery  Kind = "query"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindExec   Kind = "exec"
)

// Options 连接配置
type Options struct {
	Driver   string `cfg:"driver" def:"mysql"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`

	// OnBefore 每条语句执行前回调，参数是语句文本
	OnBefore func(sqlText string)
	// OnAfter insert/update/delete 执行后回调，带语句类别
	OnAfter func(sqlText string, kind Kind)
	// Logger 可选的日志器，不设置时用 slog.Default
	Logger *slog.Logger
}

// Client 数据库驱动的薄封装，持有连接和方言
// 不做事务编排，上层每次调用就是一次阻塞往返
type Client struct {
	db       *sql.DB
	driver   string
	onBefore func(string)
	onAfter  func(string, Kind)
	logger   *slog.Logger
}

// NewClientWithOptions 建立连接并探活
func NewClientWithOptions(options *Options) (*Client, error) {
	if options.Driver == "" {
		options.Driver = "mysql"
	}

	dsn := options.DSN
	if dsn == "" {
		switch options.Driver {
		case "mysql":
			host := options.Host
			if host == "" {
				host = "localhost"
			}
			port := options.Port
			if port == "" {
				port = "3306"
			}
			charset := options.Charset
			if charset == "" {
				charset = "utf8mb4"
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
				options.Username, options.Password, host, port, options.Database, charset)
		case "sqlite3":
			dsn = options.Database
		default:
			return nil, errors.Errorf("unsupported driver: %s", options.Driver)
		}
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", options.Driver)
	}

	maxConns := options.MaxConns
	if maxConns == 0 {
		maxConns = 10
	}
	maxIdle := options.MaxIdle
	if maxIdle == 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping")
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		db:       db,
		driver:   options.Driver,
		onBefore: options.OnBefore,
		onAfter:  options.OnAfter,
		logger:   logger,
	}, nil
}

// Dialect 构建器用它选择字面量渲染规则
func (c *Client) Dialect() builder.Dialect {
	return builder.Dialect(c.driver)
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) before(sqlText string) {
	c.logger.Debug("execute", "sql", sqlText)
	if c.onBefore != nil {
		c.onBefore(sqlText)
	}
}

func (c *Client) after(sqlText string, kind Kind) {
	if c.onAfter != nil {
		c.onAfter(sqlText, kind)
	}
}

// Query 执行查询并返回行句柄，驱动错误原样上抛
func (c *Client) Query(ctx context.Context, sqlText string) (*sql.Rows, error) {
	c.before(sqlText)
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	return rows, nil
}

// Fetch 取第一行，没有行时返回 (nil, nil)
func (c *Client) Fetch(ctx context.Context, sqlText string) (map[string]any, error) {
	rows, err := c.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows)
}

// FetchAll 取全部行，没有行时返回空切片
func (c *Client) FetchAll(ctx context.Context, sqlText string) ([]map[string]any, error) {
	rows, err := c.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ExecInsert 执行插入，返回的 sql.Result 里可取自增主键
func (c *Client) ExecInsert(ctx context.Context, sqlText string) (sql.Result, error) {
	return c.exec(ctx, sqlText, KindInsert)
}

func (c *Client) ExecUpdate(ctx context.Context, sqlText string) (sql.Result, error) {
	return c.exec(ctx, sqlText, KindUpdate)
}

func (c *Client) ExecDelete(ctx context.Context, sqlText string) (sql.Result, error) {
	return c.exec(ctx, sqlText, KindDelete)
}

func (c *Client) exec(ctx context.Context, sqlText string, kind Kind) (sql.Result, error) {
	c.before(sqlText)
	result, err := c.db.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", kind)
	}
	c.after(sqlText, kind)
	return result, nil
}

// Exec 不关心结果的执行，驱动错误只记日志不上抛
// 只用于非关键语句
func (c *Client) Exec(ctx context.Context, sqlText string) {
	c.before(sqlText)
	if _, err := c.db.ExecContext(ctx, sqlText); err != nil {
		c.logger.Warn("exec failed", "sql", sqlText, "error", err)
		return
	}
	c.after(sqlText, KindExec)
}

// scanRow 列指针扫描，[]byte 归一化成 string
func scanRow(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "columns")
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, errors.Wrap(err, "scan")
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = values[i]
	}
	return row, nil
}
