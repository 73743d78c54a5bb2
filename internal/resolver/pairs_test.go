package resolver

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/internal/model"
)

func TestBuildMediaPairs(t *testing.T) {
	assets := []model.MediaAsset{
		{Kind: model.KindImage, CDNURL: "https://scontent.cdninstagram.com/v/a.jpg?efg=x&oh=y"},
		{Kind: model.KindVideo, CDNURL: "https://scontent.cdninstagram.com/v/b.mp4"},
	}

	pairs := BuildMediaPairs(assets)
	require.Len(t, pairs, 2)

	for i, pair := range pairs {
		prev, err := url.Parse(pair.Preview)
		require.NoError(t, err)
		dl, err := url.Parse(pair.Download)
		require.NoError(t, err)

		assert.Equal(t, "/proxy", prev.Path)
		assert.Equal(t, "/proxy", dl.Path)
		assert.Equal(t, assets[i].CDNURL, prev.Query().Get("u"), "preview must round-trip the CDN url")
		assert.Equal(t, assets[i].CDNURL, dl.Query().Get("u"), "download must round-trip the CDN url")
		assert.Equal(t, "0", prev.Query().Get("download"))
		assert.Equal(t, "1", dl.Query().Get("download"))
	}
}

func TestBuildMediaPairs_Empty(t *testing.T) {
	assert.Empty(t, BuildMediaPairs(nil))
}
