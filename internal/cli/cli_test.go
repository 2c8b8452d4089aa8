package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"promisetracker/internal/app"
	"promisetracker/internal/models"
	"promisetracker/internal/platform/config"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

type CLISuite struct {
	suite.Suite
	ctx    context.Context
	seed   []*models.RawDocument
	builds int
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.ctx = context.Background()
	s.seed = nil
	s.builds = 0
	s.T().Setenv("PROMISES_CONFIG", "")
}

// builder runs on the in-memory store and ingests the seeded documents first.
func (s *CLISuite) builder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	s.builds++
	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	for _, raw := range s.seed {
		if _, err := a.Ingest.Intake(ctx, raw); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *CLISuite) execute(args ...string) (string, error) {
	cmd := NewRootCmd(WithBuilder(s.builder))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(s.ctx)
	return out.String(), err
}

func (s *CLISuite) housingDoc(rawID string, published time.Time) *models.RawDocument {
	return &models.RawDocument{
		ID:          id.RawID(rawID),
		FeedType:    models.FeedCanadaNews,
		Title:       "Housing funding announced",
		Body:        "Federal funding will support affordable housing construction across provinces.",
		PublishedAt: published,
		SourceURL:   "https://www.canada.ca/en/news/" + rawID + ".html",
	}
}

func (s *CLISuite) TestRunMaterialize() {
	s.seed = []*models.RawDocument{
		s.housingDoc("news-1", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)),
		s.housingDoc("news-2", time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)),
	}

	out, err := s.execute("run", "--stage", "materialize", "--from", "2024-06-01", "--to", "2024-07-01")
	s.Require().NoError(err)
	s.Contains(out, "stage: materialize")
	s.Contains(out, "attempted: 2")
	s.Contains(out, "created: 2")
	s.Contains(out, "errored: 0")
}

func (s *CLISuite) TestRunWindowExcludesDocuments() {
	s.seed = []*models.RawDocument{s.housingDoc("news-1", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))}

	out, err := s.execute("run", "--stage", "materialize", "--from", "2024-06-01T00:00:00Z")
	s.Require().NoError(err)
	s.Contains(out, "attempted: 0")
}

func (s *CLISuite) TestRunRejectsBadInput() {
	s.Run("unknown stage", func() {
		_, err := s.execute("run", "--stage", "publish")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("force on materialize", func() {
		_, err := s.execute("run", "--stage", "materialize", "--force")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("unparseable bound", func() {
		_, err := s.execute("run", "--stage", "materialize", "--to", "June")
		s.Require().Error(err)
		s.Contains(err.Error(), "--to")
	})
	s.Run("missing stage", func() {
		_, err := s.execute("run")
		s.Require().Error(err)
	})
	s.Zero(s.builds, "services must not be built for rejected input")
}

func (s *CLISuite) TestMigrateDryRun() {
	out, err := s.execute("migrate", "--dry-run")
	s.Require().NoError(err)
	s.Contains(out, "dry_run: true")
	s.Contains(out, "ingest_opened: 0")
}

func (s *CLISuite) TestVerifyEmptyStore() {
	out, err := s.execute("verify")
	s.Require().NoError(err)
	s.Contains(out, "promises: 0")
	s.Contains(out, "issues: []")
}

func (s *CLISuite) TestConfigShow() {
	path := filepath.Join(s.T().TempDir(), "pipeline.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
database:
  dsn: postgres://curator:hunter2@db/promises
pipeline:
  workers: 7
`), 0o600))
	s.T().Setenv("PROMISES_LOGGING_LEVEL", "warn")

	out, err := s.execute("config", "show", "--config", path)
	s.Require().NoError(err)
	s.Contains(out, "workers: 7")
	s.Contains(out, "level: warn")
	s.Contains(out, "<redacted>")
	s.NotContains(out, "hunter2")
	s.Zero(s.builds)
}

func (s *CLISuite) TestConfigShowRejectsInvalidFile() {
	path := filepath.Join(s.T().TempDir(), "pipeline.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("pipeline:\n  workers: 0\n"), 0o600))

	_, err := s.execute("config", "show", "--config", path)
	s.Require().Error(err)
	s.Contains(err.Error(), "pipeline.workers")
}
