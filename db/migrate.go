package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/ormx/meta"
)

// CreateTableSQL 由表描述符生成建表语句，预览用，不保证覆盖所有方言特性
func (c *Client) CreateTableSQL(desc *meta.TableDescriptor) string {
	var columns []string

	for _, column := range desc.Columns {
		columns = append(columns, c.columnDefinition(column))
	}

	// 关联列只存外键标量，类型跟着目标表的第一个主键走
	for _, join := range desc.Joins {
		columnType := "VARCHAR(255)"
		if c.driver == "sqlite3" {
			columnType = "TEXT"
		}
		if target, err := meta.DescribeType(join.Target); err == nil && len(target.PrimaryKeys) > 0 {
			columnType = c.mapColumnType(target.PrimaryKeys[0].Type, target.PrimaryKeys[0].Size)
		}
		columns = append(columns, fmt.Sprintf("%s %s", join.Column, columnType))
	}

	if len(desc.PrimaryKeys) > 0 && !c.inlinePrimaryKey(desc) {
		names := make([]string, 0, len(desc.PrimaryKeys))
		for _, pk := range desc.PrimaryKeys {
			names = append(names, pk.Column)
		}
		columns = append(columns, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(names, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		desc.Table, strings.Join(columns, ",\n  "))
}

// Migrate 按描述符建表，表已存在时忽略
func (c *Client) Migrate(ctx context.Context, desc *meta.TableDescriptor) error {
	sqlText := c.CreateTableSQL(desc)
	c.before(sqlText)
	if _, err := c.db.ExecContext(ctx, sqlText); err != nil {
		if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "already exist") {
			return errors.Wrapf(err, "create table %s", desc.Table)
		}
	}
	return nil
}

// DropTable 测试清理用
func (c *Client) DropTable(ctx context.Context, table string) error {
	sqlText := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
	c.before(sqlText)
	_, err := c.db.ExecContext(ctx, sqlText)
	return errors.Wrapf(err, "drop table %s", table)
}

// inlinePrimaryKey 自增主键要跟列定义写在一起
func (c *Client) inlinePrimaryKey(desc *meta.TableDescriptor) bool {
	return len(desc.PrimaryKeys) == 1 && desc.PrimaryKeys[0].Strategy == meta.StrategyIdentity
}

func (c *Client) columnDefinition(column *meta.ColumnMeta) string {
	parts := []string{column.Column}

	if column.Primary && column.Strategy == meta.StrategyIdentity {
		if c.driver == "sqlite3" {
			return column.Column + " INTEGER PRIMARY KEY AUTOINCREMENT"
		}
		return column.Column + " INT AUTO_INCREMENT PRIMARY KEY"
	}

	parts = append(parts, c.mapColumnType(column.Type, column.Size))

	if column.Required {
		parts = append(parts, "NOT NULL")
	}
	if column.Default != nil {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", formatDefaultValue(column.Default)))
	}

	return strings.Join(parts, " ")
}

func (c *Client) mapColumnType(columnType meta.ColumnType, size int) string {
	switch columnType {
	case meta.ColumnTypeString:
		if c.driver == "sqlite3" {
			return "TEXT"
		}
		if size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", size)
		}
		return "VARCHAR(255)"
	case meta.ColumnTypeInt:
		if c.driver == "sqlite3" {
			return "INTEGER"
		}
		return "INT"
	case meta.ColumnTypeFloat:
		if c.driver == "sqlite3" {
			return "REAL"
		}
		return "DOUBLE"
	case meta.ColumnTypeBool:
		if c.driver == "sqlite3" {
			return "INTEGER"
		}
		return "BOOLEAN"
	case meta.ColumnTypeDatetime:
		if c.driver == "sqlite3" {
			return "TEXT"
		}
		return "DATETIME"
	case meta.ColumnTypeJSON:
		if c.driver == "mysql" {
			return "JSON"
		}
		return "TEXT"
	default:
		if c.driver == "sqlite3" {
			return "TEXT"
		}
		return "VARCHAR(255)"
	}
}

func formatDefaultValue(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}
