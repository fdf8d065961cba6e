package requestlog

import (
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

// TestObjectSinkWriteSwallowsConnectionFailure mirrors
// TestPGSinkWriteSwallowsConnectionFailure for the S3-compatible sink:
// an unreachable endpoint must not panic or propagate an error to the
// caller, only log it.
func TestObjectSinkWriteSwallowsConnectionFailure(t *testing.T) {
	client, err := minio.New("127.0.0.1:1", &minio.Options{
		Creds:  credentials.NewStaticV4("id", "secret", ""),
		Secure: false,
	})
	require.NoError(t, err)

	sink := NewObjectSink(client, "requests-bucket", discardLogger())

	entry := Entry{ID: NextID(), TraceID: "t", StartedAt: time.Now(), TokenSnapshot: cursortoken.ExtToken{}}
	assert.NotPanics(t, func() { sink.Write(entry) })
}
