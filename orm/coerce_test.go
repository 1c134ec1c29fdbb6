package orm

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/ormx/meta"
)

func TestCoerceValue(t *testing.T) {
	boolColumn := &meta.ColumnMeta{Type: meta.ColumnTypeBool}
	intColumn := &meta.ColumnMeta{Type: meta.ColumnTypeInt}
	floatColumn := &meta.ColumnMeta{Type: meta.ColumnTypeFloat}
	datetimeColumn := &meta.ColumnMeta{Type: meta.ColumnTypeDatetime, Format: meta.DefaultDatetimeFormat}
	stringColumn := &meta.ColumnMeta{Type: meta.ColumnTypeString}

	Convey("测试读取侧类型协变", t, func() {
		Convey("布尔真值判定", func() {
			So(coerceValue("1", boolColumn), ShouldEqual, true)
			So(coerceValue("true", boolColumn), ShouldEqual, true)
			So(coerceValue("TRUE", boolColumn), ShouldEqual, true)
			So(coerceValue(int64(1), boolColumn), ShouldEqual, true)
			So(coerceValue("0", boolColumn), ShouldEqual, false)
			So(coerceValue("false", boolColumn), ShouldEqual, false)
			So(coerceValue(int64(0), boolColumn), ShouldEqual, false)
			So(coerceValue("", boolColumn), ShouldEqual, false)
		})

		Convey("数值解析", func() {
			So(coerceValue("42", intColumn), ShouldEqual, int64(42))
			So(coerceValue(int64(42), intColumn), ShouldEqual, int64(42))
			So(coerceValue("3.5", floatColumn), ShouldEqual, 3.5)
			So(coerceValue(int64(3), floatColumn), ShouldEqual, 3.0)
			So(coerceValue(nil, intColumn), ShouldBeNil)
		})

		Convey("日期时间解析，小数秒后缀截断", func() {
			v := coerceValue("2024-03-15 10:30:00", datetimeColumn)
			So(v, ShouldResemble, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))

			v = coerceValue("2024-03-15 10:30:00.123456", datetimeColumn)
			So(v, ShouldResemble, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))

			v = coerceValue("2024-03-15", datetimeColumn)
			So(v, ShouldResemble, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
		})

		Convey("零日期一律协变为空", func() {
			for _, s := range []string{
				"0000-00-00",
				"0000-00-00 00:00:00",
				"0000-00-00 00:00:00.0",
				"0000-00-00 00:00:00.000",
				"0000-00-00 00:00:00.000000",
			} {
				So(coerceValue(s, datetimeColumn), ShouldBeNil)
				So(coerceValue(s, stringColumn), ShouldBeNil)
				So(coerceValue(s, intColumn), ShouldBeNil)
			}
		})

		Convey("其余类型原样透传", func() {
			So(coerceValue("Rock", stringColumn), ShouldEqual, "Rock")
			So(coerceValue(nil, stringColumn), ShouldBeNil)
		})
	})
}
