package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordMessagesIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(MessagesProcessed.WithLabelValues("imap", "skipped"))
	RecordMessages("imap", "skipped", 0)
	RecordMessages("imap", "skipped", 3)
	after := testutil.ToFloat64(MessagesProcessed.WithLabelValues("imap", "skipped"))
	require.Equal(t, before+3, after)
}

func TestRecordTokenRefresh(t *testing.T) {
	before := testutil.ToFloat64(TokenRefreshes.WithLabelValues("gmail", "ok"))
	RecordTokenRefresh("gmail", "ok")
	require.Equal(t, before+1, testutil.ToFloat64(TokenRefreshes.WithLabelValues("gmail", "ok")))

	RecordSyncCycle("gmail", "ok", time.Second)
	require.Equal(t, 1, testutil.CollectAndCount(SyncCycleDuration))
}
