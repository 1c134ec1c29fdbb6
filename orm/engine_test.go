package orm

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/ormx/db"
	"github.com/hatlonely/ormx/meta"
	"github.com/hatlonely/ormx/query"
)

type Genre struct {
	GenreID   string  `rdb:"genre_id,primary,generate=uuid,size=40"`
	Name      *string `rdb:"name,size=64"`
	SortOrder *int    `rdb:"sort_order"`
	Active    *bool   `rdb:"active"`
}

func (Genre) TableName() string {
	return "genre"
}

type Artist struct {
	ArtistID string  `rdb:"artist_id,primary,generate=uuid,size=40"`
	Name     *string `rdb:"name,size=64"`
}

func (Artist) TableName() string {
	return "artist"
}

type Album struct {
	AlbumID   string     `rdb:"album_id,primary,generate=uuid,size=40"`
	Title     *string    `rdb:"title,size=128"`
	Artist    *Artist    `rdb:"artist_id,join"`
	ReleaseAt *time.Time `rdb:"release_at,type=datetime"`
}

func (Album) TableName() string {
	return "album"
}

type Song struct {
	SongID   int64    `rdb:"song_id,primary,generate=identity"`
	Title    *string  `rdb:"title,size=128"`
	Duration *float64 `rdb:"duration"`
	Album    *Album   `rdb:"album_id,join"`
}

func (Song) TableName() string {
	return "song"
}

type Track struct {
	Title *string `rdb:"title" table:"track"`
}

func ptr[T any](v T) *T {
	return &v
}

// newTestEngine 内存 sqlite 上的引擎，顺带捕获每条执行的语句
func newTestEngine() (*Engine, *[]string, error) {
	var sqls []string
	client, err := db.NewClientWithOptions(&db.Options{
		Driver:   "sqlite3",
		Database: ":memory:",
		// 内存库跟连接走，必须限制到单连接
		MaxConns: 1,
		MaxIdle:  1,
		OnBefore: func(sqlText string) {
			sqls = append(sqls, sqlText)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	engine := NewEngine(client)
	ctx := context.Background()
	for _, model := range []any{&Genre{}, &Artist{}, &Album{}, &Song{}, &Track{}} {
		if err := client.Migrate(ctx, meta.MustDescribe(model)); err != nil {
			return nil, nil, err
		}
	}
	return engine, &sqls, nil
}

func TestInsertAndFind(t *testing.T) {
	Convey("测试 Insert 和 Find", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		Convey("uuid 主键在语句构建前生成", func() {
			*sqls = nil
			genre := &Genre{Name: ptr("Rock"), SortOrder: ptr(1), Active: ptr(true)}
			So(engine.Insert(ctx, genre), ShouldBeNil)

			// 生成的主键写回实体，并出现在渲染出的 INSERT 里
			So(genre.GenreID, ShouldNotBeEmpty)
			So(len(genre.GenreID), ShouldEqual, 32)
			So((*sqls)[0], ShouldContainSubstring, "insert into genre (genre_id, name, sort_order, active)")
			So((*sqls)[0], ShouldContainSubstring, genre.GenreID)

			Convey("插入后按主键取回，非关联字段协变后等值", func() {
				found := &Genre{}
				So(engine.Find(ctx, found, genre.GenreID), ShouldBeNil)
				So(*found.Name, ShouldEqual, "Rock")
				So(*found.SortOrder, ShouldEqual, 1)
				So(*found.Active, ShouldBeTrue)
			})
		})

		Convey("主键已有值时不再生成", func() {
			genre := &Genre{GenreID: "fixed", Name: ptr("Jazz")}
			So(engine.Insert(ctx, genre), ShouldBeNil)
			So(genre.GenreID, ShouldEqual, "fixed")
		})

		Convey("空值字段默认不参与", func() {
			*sqls = nil
			genre := &Genre{Name: ptr("Blues")}
			So(engine.Insert(ctx, genre), ShouldBeNil)
			So((*sqls)[0], ShouldNotContainSubstring, "sort_order")
			So((*sqls)[0], ShouldNotContainSubstring, "active")
		})

		Convey("WithNulls 时空值渲染为 null", func() {
			*sqls = nil
			genre := &Genre{Name: ptr("Folk")}
			So(engine.Insert(ctx, genre, WithNulls()), ShouldBeNil)
			So((*sqls)[0], ShouldContainSubstring, "sort_order")
			So((*sqls)[0], ShouldContainSubstring, "null")
		})

		Convey("没有可插入列时报错", func() {
			track := &Track{}
			err := engine.Insert(ctx, track)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrNoInsertableColumn), ShouldBeTrue)
		})

		Convey("Find 主键值个数不匹配报错", func() {
			err := engine.Find(ctx, &Genre{}, "a", "b")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidCondition), ShouldBeTrue)
		})

		Convey("Find 无命中返回 ErrRecordNotFound", func() {
			err := engine.Find(ctx, &Genre{}, "missing")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})
	})
}

func TestIdentityStrategy(t *testing.T) {
	Convey("测试 identity 主键策略", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		*sqls = nil
		song := &Song{Title: ptr("Intro"), Duration: ptr(123.5)}
		So(engine.Insert(ctx, song), ShouldBeNil)

		// 主键不出现在渲染出的 INSERT 里，执行后才从驱动取回
		So((*sqls)[0], ShouldNotContainSubstring, "song_id")
		So(song.SongID, ShouldBeGreaterThan, 0)

		second := &Song{Title: ptr("Outro")}
		So(engine.Insert(ctx, second), ShouldBeNil)
		So(second.SongID, ShouldEqual, song.SongID+1)

		found := &Song{}
		So(engine.Find(ctx, found, song.SongID), ShouldBeNil)
		So(*found.Title, ShouldEqual, "Intro")
		So(*found.Duration, ShouldEqual, 123.5)
	})
}

func TestUpdate(t *testing.T) {
	Convey("测试 Update", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		genre := &Genre{Name: ptr("Rock"), SortOrder: ptr(1), Active: ptr(true)}
		So(engine.Insert(ctx, genre), ShouldBeNil)

		Convey("按主键更新非空字段", func() {
			So(engine.Update(ctx, &Genre{GenreID: genre.GenreID, Name: ptr("Jazz")}), ShouldBeNil)

			found := &Genre{}
			So(engine.Find(ctx, found, genre.GenreID), ShouldBeNil)
			So(*found.Name, ShouldEqual, "Jazz")
			// 没提供的字段保持原值
			So(*found.SortOrder, ShouldEqual, 1)
		})

		Convey("主键之外没有可更新字段时报错且零写入", func() {
			*sqls = nil
			err := engine.Update(ctx, &Genre{GenreID: genre.GenreID})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrNoUpdatableColumn), ShouldBeTrue)
			So(len(*sqls), ShouldEqual, 0)
		})

		Convey("主键全空时报错且零写入", func() {
			*sqls = nil
			err := engine.Update(ctx, &Genre{Name: ptr("X")})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidCondition), ShouldBeTrue)
			So(len(*sqls), ShouldEqual, 0)
		})

		Convey("没有声明主键的实体报错", func() {
			err := engine.Update(ctx, &Track{Title: ptr("X")})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrNoPrimaryKey), ShouldBeTrue)
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("测试 Delete", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		genre := &Genre{Name: ptr("Rock")}
		So(engine.Insert(ctx, genre), ShouldBeNil)

		Convey("按主键删除", func() {
			So(engine.Delete(ctx, &Genre{GenreID: genre.GenreID}), ShouldBeNil)
			err := engine.Find(ctx, &Genre{}, genre.GenreID)
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("主键全空时报错且零写入", func() {
			*sqls = nil
			err := engine.Delete(ctx, &Genre{})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidCondition), ShouldBeTrue)
			So(len(*sqls), ShouldEqual, 0)
		})
	})
}

func TestSave(t *testing.T) {
	Convey("测试 Save", t, func() {
		engine, _, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		Convey("不存在时走插入分支", func() {
			genre := &Genre{GenreID: "g1", Name: ptr("Rock"), SortOrder: ptr(1)}
			So(engine.Save(ctx, genre), ShouldBeNil)

			found := &Genre{}
			So(engine.Find(ctx, found, "g1"), ShouldBeNil)
			So(*found.Name, ShouldEqual, "Rock")
		})

		Convey("存在时叠加调用方字段后更新", func() {
			So(engine.Save(ctx, &Genre{GenreID: "g2", Name: ptr("Rock"), SortOrder: ptr(7), Active: ptr(true)}), ShouldBeNil)
			// 只带主键和 name，其余字段从读回的行补齐
			So(engine.Save(ctx, &Genre{GenreID: "g2", Name: ptr("Jazz")}), ShouldBeNil)

			found := &Genre{}
			So(engine.Find(ctx, found, "g2"), ShouldBeNil)
			So(*found.Name, ShouldEqual, "Jazz")
			So(*found.SortOrder, ShouldEqual, 7)
			So(*found.Active, ShouldBeTrue)
		})
	})
}

func TestFindAll(t *testing.T) {
	Convey("测试 FindAll", t, func() {
		engine, _, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		names := []string{"Rock", "Jazz", "Blues", "Folk", "Punk", "Soul", "Funk"}
		for i, name := range names {
			active := i%2 == 0
			So(engine.Insert(ctx, &Genre{Name: ptr(name), SortOrder: ptr(i + 1), Active: ptr(active)}), ShouldBeNil)
		}

		Convey("过滤树查询", func() {
			var out []*Genre
			node := query.NewGroup().
				AddAnd(query.Eq("Active", true)).
				AddAnd(query.Gt("SortOrder", 2))
			So(engine.FindAll(ctx, &out, node), ShouldBeNil)
			So(len(out), ShouldEqual, 3)
			for _, g := range out {
				So(*g.Active, ShouldBeTrue)
				So(*g.SortOrder, ShouldBeGreaterThan, 2)
			}
		})

		Convey("零行返回 ErrRecordNotFound", func() {
			var out []*Genre
			err := engine.FindAll(ctx, &out, query.Eq("Name", "zzz"))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("分页不重不漏", func() {
			var all []*Genre
			So(engine.FindAll(ctx, &all, nil, WithSort("SortOrder", false)), ShouldBeNil)
			So(len(all), ShouldEqual, 7)

			var paged []*Genre
			for page := 1; page <= 3; page++ {
				var out []*Genre
				So(engine.FindAll(ctx, &out, nil, WithSort("SortOrder", false), WithPage(page, 3)), ShouldBeNil)
				paged = append(paged, out...)
			}
			So(len(paged), ShouldEqual, 7)
			for i := range all {
				So(paged[i].GenreID, ShouldEqual, all[i].GenreID)
			}
		})

		Convey("排序字段必须在列映射里", func() {
			var out []*Genre
			err := engine.FindAll(ctx, &out, nil, WithSort("Unknown", false))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrNoColumnMatch), ShouldBeTrue)
		})

		Convey("值切片元素也支持", func() {
			var out []Genre
			So(engine.FindAll(ctx, &out, nil), ShouldBeNil)
			So(len(out), ShouldEqual, 7)
		})
	})
}

func TestFindBy(t *testing.T) {
	Convey("测试 FindBy", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		So(engine.Insert(ctx, &Genre{Name: ptr("Rock"), Active: ptr(true)}), ShouldBeNil)
		So(engine.Insert(ctx, &Genre{Name: ptr("Rock"), Active: ptr(false)}), ShouldBeNil)
		So(engine.Insert(ctx, &Genre{Name: ptr("Jazz"), Active: ptr(true)}), ShouldBeNil)

		Convey("And 路径按顺序编译", func() {
			*sqls = nil
			var out []*Genre
			So(engine.FindBy(ctx, &out, "nameAndActive", []any{"Rock", true}), ShouldBeNil)
			So(len(out), ShouldEqual, 1)
			So((*sqls)[0], ShouldContainSubstring, "name = 'Rock' and active = 1")
		})

		Convey("Or 路径", func() {
			var out []*Genre
			So(engine.FindBy(ctx, &out, "nameOrActive", []any{"Jazz", false}), ShouldBeNil)
			So(len(out), ShouldEqual, 2)
		})

		Convey("值数不匹配报错", func() {
			var out []*Genre
			err := engine.FindBy(ctx, &out, "nameAndActive", []any{"Rock"})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidCondition), ShouldBeTrue)
		})
	})
}

func TestCountAndDeleteBy(t *testing.T) {
	Convey("测试 Count / Exists / DeleteBy", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		So(engine.Insert(ctx, &Genre{Name: ptr("Rock"), Active: ptr(true)}), ShouldBeNil)
		So(engine.Insert(ctx, &Genre{Name: ptr("Jazz"), Active: ptr(true)}), ShouldBeNil)
		So(engine.Insert(ctx, &Genre{Name: ptr("Folk"), Active: ptr(false)}), ShouldBeNil)

		Convey("CountAll 用第一个主键列做投影", func() {
			*sqls = nil
			count, err := engine.CountAll(ctx, &Genre{}, query.Eq("Active", true))
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)
			So((*sqls)[0], ShouldContainSubstring, "select genre_id from genre")
		})

		Convey("CountAll 空树统计全表", func() {
			count, err := engine.CountAll(ctx, &Genre{}, nil)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 3)
		})

		Convey("CountBy 和 ExistsBy", func() {
			count, err := engine.CountBy(ctx, &Genre{}, "active", []any{true})
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)

			exists, err := engine.ExistsBy(ctx, &Genre{}, "name", []any{"Rock"})
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			exists, err = engine.ExistsBy(ctx, &Genre{}, "name", []any{"zzz"})
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)
		})

		Convey("DeleteBy 返回受影响行数", func() {
			affected, err := engine.DeleteBy(ctx, &Genre{}, "active", []any{true})
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 2)

			count, err := engine.CountAll(ctx, &Genre{}, nil)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 1)
		})
	})
}

func TestJoinResolution(t *testing.T) {
	Convey("测试关联解析", t, func() {
		engine, _, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		artist := &Artist{Name: ptr("Miles")}
		So(engine.Insert(ctx, artist), ShouldBeNil)

		releaseAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
		album := &Album{Title: ptr("Blue"), Artist: artist, ReleaseAt: ptr(releaseAt)}
		So(engine.Insert(ctx, album), ShouldBeNil)

		Convey("外键命中时填充关联实体", func() {
			found := &Album{}
			So(engine.Find(ctx, found, album.AlbumID), ShouldBeNil)
			So(found.Artist, ShouldNotBeNil)
			So(found.Artist.ArtistID, ShouldEqual, artist.ArtistID)
			So(*found.Artist.Name, ShouldEqual, "Miles")
			So(found.ReleaseAt.Equal(releaseAt), ShouldBeTrue)
		})

		Convey("悬空外键置空关联字段，兄弟字段不受影响", func() {
			dangling := &Album{Title: ptr("Lost"), Artist: &Artist{ArtistID: "no-such-artist"}}
			So(engine.Insert(ctx, dangling), ShouldBeNil)

			found := &Album{}
			So(engine.Find(ctx, found, dangling.AlbumID), ShouldBeNil)
			So(found.Artist, ShouldBeNil)
			So(*found.Title, ShouldEqual, "Lost")
		})

		Convey("关联字段为空时不写外键列", func() {
			bare := &Album{Title: ptr("Solo")}
			So(engine.Insert(ctx, bare), ShouldBeNil)

			found := &Album{}
			So(engine.Find(ctx, found, bare.AlbumID), ShouldBeNil)
			So(found.Artist, ShouldBeNil)
		})
	})
}

func TestRepository(t *testing.T) {
	Convey("测试 Repository", t, func() {
		engine, _, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		repo, err := NewRepository[Genre](engine)
		So(err, ShouldBeNil)
		So(repo.Descriptor().Table, ShouldEqual, "genre")

		genre := &Genre{Name: ptr("Rock"), SortOrder: ptr(1), Active: ptr(true)}
		So(repo.Create(ctx, genre), ShouldBeNil)

		Convey("Get / List / ListBy", func() {
			got, err := repo.Get(ctx, genre.GenreID)
			So(err, ShouldBeNil)
			So(*got.Name, ShouldEqual, "Rock")

			list, err := repo.List(ctx, query.Eq("Active", true))
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)

			list, err = repo.ListBy(ctx, "nameAndActive", []any{"Rock", true})
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)
		})

		Convey("Save / Count / Exists / DeleteBy", func() {
			genre.Name = ptr("Jazz")
			So(repo.Save(ctx, genre), ShouldBeNil)

			count, err := repo.CountBy(ctx, "name", []any{"Jazz"})
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 1)

			exists, err := repo.Exists(ctx, "name", []any{"Jazz"})
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)

			affected, err := repo.DeleteBy(ctx, "name", []any{"Jazz"})
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 1)

			_, err = repo.Get(ctx, genre.GenreID)
			So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
		})
	})
}

func TestEngineStatements(t *testing.T) {
	Convey("测试渲染出的语句形态", t, func() {
		engine, sqls, err := newTestEngine()
		So(err, ShouldBeNil)
		defer engine.Close()
		ctx := context.Background()

		genre := &Genre{GenreID: "g1", Name: ptr("O'Brien"), Active: ptr(true)}
		So(engine.Insert(ctx, genre), ShouldBeNil)

		Convey("字符串字面量转义内嵌引号", func() {
			found := &Genre{}
			So(engine.Find(ctx, found, "g1"), ShouldBeNil)
			So(*found.Name, ShouldEqual, "O'Brien")
		})

		Convey("Update 语句带主键 WHERE", func() {
			*sqls = nil
			So(engine.Update(ctx, &Genre{GenreID: "g1", Name: ptr("Plain")}), ShouldBeNil)
			So((*sqls)[0], ShouldEqual, "update genre set name = 'Plain' where (genre_id = 'g1')")
		})

		Convey("Delete 语句带主键 WHERE", func() {
			*sqls = nil
			So(engine.Delete(ctx, &Genre{GenreID: "g1"}), ShouldBeNil)
			So((*sqls)[0], ShouldEqual, "delete from genre where (genre_id = 'g1')")
		})
	})
}
