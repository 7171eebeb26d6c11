package collector

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/fetch"
)

// SyncJob is one remote file to mirror into the data directory.
type SyncJob struct {
	URL  string `mapstructure:"url" yaml:"url"`
	Dest string `mapstructure:"dest" yaml:"dest"` // relative to the data dir
}

// SyncReport summarizes one sync run.
type SyncReport struct {
	Downloaded int
	Unchanged  int
	Failed     int
}

const etagFileName = ".etags.json"

// Syncer mirrors the exchange drops into the local data directory.
// HTTP sources use ETag revalidation so unchanged files are not
// re-downloaded (and their signatures stay stable, keeping caches
// warm). FTP sources are always fetched.
type Syncer struct {
	http    *fetch.HTTPFetcher
	ftp     *fetch.FTPFetcher
	dataDir string
}

// NewSyncer creates a syncer over the given fetchers.
func NewSyncer(httpFetcher *fetch.HTTPFetcher, ftpFetcher *fetch.FTPFetcher, dataDir string) *Syncer {
	return &Syncer{http: httpFetcher, ftp: ftpFetcher, dataDir: dataDir}
}

// Sync runs all jobs sequentially. Individual job failures are logged
// and counted; the run itself only fails if the data dir is unusable.
func (s *Syncer) Sync(ctx context.Context, jobs []SyncJob) (SyncReport, error) {
	etags, err := s.loadETags()
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	for _, job := range jobs {
		dest := filepath.Join(s.dataDir, job.Dest)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return report, eris.Wrapf(err, "sync: create dir for %s", job.Dest)
		}

		changed, err := s.runJob(ctx, job, dest, etags)
		switch {
		case err != nil:
			report.Failed++
			zap.L().Warn("sync: job failed",
				zap.String("url", job.URL),
				zap.Error(err),
			)
		case changed:
			report.Downloaded++
			zap.L().Info("sync: downloaded",
				zap.String("url", job.URL),
				zap.String("dest", job.Dest),
			)
		default:
			report.Unchanged++
		}
	}

	if err := s.saveETags(etags); err != nil {
		zap.L().Warn("sync: persist etags failed", zap.Error(err))
	}
	return report, nil
}

func (s *Syncer) runJob(ctx context.Context, job SyncJob, dest string, etags map[string]string) (bool, error) {
	if strings.HasPrefix(job.URL, "ftp://") {
		_, err := s.ftp.DownloadToFile(ctx, job.URL, dest)
		return err == nil, err
	}

	body, etag, changed, err := s.http.DownloadIfChanged(ctx, job.URL, etags[job.URL])
	if err != nil {
		return false, err
	}
	if !changed {
		// Still download if a previous run recorded the etag but the
		// local file went missing.
		if _, statErr := os.Stat(dest); statErr == nil {
			return false, nil
		}
		delete(etags, job.URL)
		return s.runJob(ctx, job, dest, etags)
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(dest)
	if err != nil {
		return false, eris.Wrap(err, "sync: create dest")
	}
	defer file.Close() //nolint:errcheck

	if _, err := io.Copy(file, body); err != nil {
		return false, eris.Wrap(err, "sync: write dest")
	}
	if etag != "" {
		etags[job.URL] = etag
	}
	return true, nil
}

func (s *Syncer) loadETags() (map[string]string, error) {
	etags := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(s.dataDir, etagFileName))
	if os.IsNotExist(err) {
		return etags, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sync: read etag state")
	}
	if err := json.Unmarshal(data, &etags); err != nil {
		// Corrupt state only costs one full re-download.
		zap.L().Warn("sync: etag state corrupt, resetting", zap.Error(err))
		return make(map[string]string), nil
	}
	return etags, nil
}

func (s *Syncer) saveETags(etags map[string]string) error {
	data, err := json.MarshalIndent(etags, "", "  ")
	if err != nil {
		return eris.Wrap(err, "sync: encode etag state")
	}
	return eris.Wrap(
		os.WriteFile(filepath.Join(s.dataDir, etagFileName), data, 0o644),
		"sync: write etag state",
	)
}
