package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	in := &AgentToHeadend{Heartbeat: &Heartbeat{AssetID: "a1"}}
	raw, err := codec.Marshal(in)
	require.NoError(t, err)

	var out AgentToHeadend
	require.NoError(t, codec.Unmarshal(raw, &out))
	require.NotNil(t, out.Heartbeat)
	assert.Equal(t, "a1", out.Heartbeat.AssetID)
	assert.Nil(t, out.Telemetry)
}

func TestGzipCompressorRegistered(t *testing.T) {
	// Agents may send compressed frames; the compressor must be installed on
	// any process importing the link package.
	assert.NotNil(t, encoding.GetCompressor("gzip"))
}
