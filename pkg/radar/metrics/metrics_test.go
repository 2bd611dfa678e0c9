package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
)

func TestPassResult(t *testing.T) {
	changed := syncer.Result{Downloaded: map[string][]string{"IDR043": {"a"}}}

	assert.Equal(t, "downloaded", passResult(changed, nil))
	assert.Equal(t, "empty", passResult(syncer.Result{}, nil))
	assert.Equal(t, "remote_error", passResult(changed, fmt.Errorf("%w: reset", syncer.ErrRemote)))
	assert.Equal(t, "local_error", passResult(syncer.Result{}, fmt.Errorf("%w: full", syncer.ErrLocal)))
}

func TestRecordSyncPass(t *testing.T) {
	passes := testutil.ToFloat64(syncPassesTotal.WithLabelValues("downloaded"))
	frames := testutil.ToFloat64(framesDownloadedTotal.WithLabelValues("IDR042"))
	bytes := testutil.ToFloat64(bytesDownloadedTotal)

	now := time.Now()
	RecordSyncPass(syncer.Result{
		Started:    now.Add(-time.Second),
		Finished:   now,
		Downloaded: map[string][]string{"IDR042": {"a", "b"}},
		Bytes:      300,
	}, nil)

	assert.Equal(t, passes+1, testutil.ToFloat64(syncPassesTotal.WithLabelValues("downloaded")))
	assert.Equal(t, frames+2, testutil.ToFloat64(framesDownloadedTotal.WithLabelValues("IDR042")))
	assert.Equal(t, bytes+300, testutil.ToFloat64(bytesDownloadedTotal))
	assert.Positive(t, testutil.ToFloat64(lastSuccessTimestamp))
}

func TestRecordPrune(t *testing.T) {
	pruned := testutil.ToFloat64(framesPrunedTotal.WithLabelValues("IDR044"))
	failures := testutil.ToFloat64(pruneErrorsTotal)

	RecordPrune(prune.Report{Removed: map[string][]archive.Frame{"IDR044": {{}, {}, {}}}}, nil)
	RecordPrune(prune.Report{}, errors.New("malformed"))

	assert.Equal(t, pruned+3, testutil.ToFloat64(framesPrunedTotal.WithLabelValues("IDR044")))
	assert.Equal(t, failures+1, testutil.ToFloat64(pruneErrorsTotal))
}

func TestSetArchiveFrames(t *testing.T) {
	SetArchiveFrames("IDR043", "new", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(archiveFrames.WithLabelValues("IDR043", "new")))
}

func TestHandler(t *testing.T) {
	SetArchiveFrames("IDR042", "confirmed", 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "radarsync_archive_frames")
}
