package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-pkgz/testutils/containers"
	"github.com/stretchr/testify/suite"

	"github.com/umputun/tg-rspamd/app/storage/engine"
)

type ActionLogSuite struct {
	suite.Suite
	dbs         map[string]*engine.SQL
	pgContainer *containers.PostgresTestContainer
	sqliteFile  string
	ctx         context.Context
}

func TestActionLogSuite(t *testing.T) {
	suite.Run(t, new(ActionLogSuite))
}

func (s *ActionLogSuite) SetupSuite() {
	s.ctx = context.Background()
	s.dbs = make(map[string]*engine.SQL)

	s.sqliteFile = filepath.Join(os.TempDir(), fmt.Sprintf("actions-%d-%d.db", os.Getpid(), time.Now().UnixNano()))
	db, err := engine.NewSqlite(s.sqliteFile, "gr1")
	s.Require().NoError(err)
	s.dbs["sqlite"] = db

	if !testing.Short() {
		s.pgContainer = containers.NewPostgresTestContainerWithDB(s.ctx, s.T(), "test")
		pg, err := engine.NewPostgres(s.ctx, s.pgContainer.ConnectionString(), "gr1")
		s.Require().NoError(err)
		s.dbs["postgres"] = pg
	}
}

func (s *ActionLogSuite) TearDownSuite() {
	for _, db := range s.dbs {
		db.Close()
	}
	if s.sqliteFile != "" {
		_ = os.Remove(s.sqliteFile)
	}
}

func (s *ActionLogSuite) SetupTest() {
	for _, db := range s.dbs {
		_, err := db.Exec("DROP TABLE IF EXISTS actions")
		s.Require().NoError(err)
	}
}

func (s *ActionLogSuite) TestAddAndRecent() {
	for name, db := range s.dbs {
		s.Run(name, func() {
			al, err := NewActionLog(s.ctx, db)
			s.Require().NoError(err)

			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			s.Require().NoError(al.Add(s.ctx, ActionEntry{ChatID: -100, MsgID: 1, UserID: 11, UserName: "u1",
				Action: "warn", Score: 6.5, Symbols: []string{"TG_LINKS"}, Text: "first", Timestamp: base}))
			s.Require().NoError(al.Add(s.ctx, ActionEntry{ChatID: -100, MsgID: 2, UserID: 12, UserName: "u2",
				Action: "ban", Score: 16, Symbols: []string{"TG_FLOOD", "BAYES_SPAM"}, Text: "second",
				Timestamp: base.Add(time.Minute)}))
			s.Require().NoError(al.Add(s.ctx, ActionEntry{ChatID: -100, MsgID: 3, UserID: 13, Action: "none",
				Text: "third", Timestamp: base.Add(2 * time.Minute)}))

			entries, err := al.Recent(s.ctx, 2)
			s.Require().NoError(err)
			s.Require().Len(entries, 2)
			s.Equal("third", entries[0].Text)
			s.Empty(entries[0].Symbols)
			s.Equal("second", entries[1].Text)
			s.Equal([]string{"TG_FLOOD", "BAYES_SPAM"}, entries[1].Symbols)
			s.Equal("ban", entries[1].Action)
			s.InDelta(16.0, entries[1].Score, 0.001)
			s.Equal("gr1", entries[1].GID)
			s.True(entries[1].Timestamp.Equal(base.Add(time.Minute)))

			all, err := al.Recent(s.ctx, 0)
			s.Require().NoError(err)
			s.Len(all, 3)
		})
	}
}

func (s *ActionLogSuite) TestCountsSince() {
	for name, db := range s.dbs {
		s.Run(name, func() {
			al, err := NewActionLog(s.ctx, db)
			s.Require().NoError(err)

			now := time.Now()
			entries := []ActionEntry{
				{UserID: 1, Action: "ban", Timestamp: now.Add(-48 * time.Hour)},
				{UserID: 2, Action: "ban", Timestamp: now.Add(-time.Hour)},
				{UserID: 3, Action: "delete", Timestamp: now.Add(-time.Hour)},
				{UserID: 4, Action: "delete", Timestamp: now.Add(-time.Minute)},
				{UserID: 5, Action: "warn", Timestamp: now.Add(-time.Minute)},
			}
			for _, e := range entries {
				s.Require().NoError(al.Add(s.ctx, e))
			}

			counts, err := al.CountsSince(s.ctx, now.Add(-24*time.Hour))
			s.Require().NoError(err)
			s.Equal(map[string]int{"ban": 1, "delete": 2, "warn": 1}, counts)
		})
	}
}

func (s *ActionLogSuite) TestGroupIsolation() {
	db, ok := s.dbs["sqlite"]
	s.Require().True(ok)
	al, err := NewActionLog(s.ctx, db)
	s.Require().NoError(err)
	s.Require().NoError(al.Add(s.ctx, ActionEntry{UserID: 1, Action: "warn"}))

	other, err := engine.NewSqlite(s.sqliteFile, "gr2")
	s.Require().NoError(err)
	defer other.Close()
	al2, err := NewActionLog(s.ctx, other)
	s.Require().NoError(err)
	entries, err := al2.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *ActionLogSuite) TestNilDB() {
	_, err := NewActionLog(s.ctx, nil)
	s.EqualError(err, "db connection is nil")
}
