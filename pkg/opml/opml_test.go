package opml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeFeedOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Feed One" type="rss" xmlUrl="https://example.com/f1.xml"/>
    <outline text="Tech">
      <outline text="Feed Two" type="rss" xmlUrl="https://example.com/f2.xml"/>
    </outline>
    <outline text="Feed Three" type="rss" xmlUrl="https://example.com/f3.xml"/>
  </body>
</opml>`

func TestParseThreeFeedsWithCategory(t *testing.T) {
	result, err := Parse([]byte(threeFeedOPML))
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalOutlines)
	assert.Equal(t, 1, result.SkippedNoURL)
	require.Len(t, result.Feeds, 3)

	assert.Equal(t, "Feed One", result.Feeds[0].Title)
	assert.Equal(t, "https://example.com/f1.xml", result.Feeds[0].FeedURL)
	assert.Equal(t, "", result.Feeds[0].Category)

	assert.Equal(t, "Feed Two", result.Feeds[1].Title)
	assert.Equal(t, "Tech", result.Feeds[1].Category)

	assert.Equal(t, "Feed Three", result.Feeds[2].Title)
	assert.Equal(t, "", result.Feeds[2].Category)
}

func TestParseAttributeVariants(t *testing.T) {
	doc := `<opml version="2.0"><body>
		<outline title="A" xmlurl="https://a.example/feed"/>
		<outline name="B" url="https://b.example/feed"/>
		<outline text="C" feedUrl="https://c.example/feed"/>
	</body></opml>`

	result, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, result.Feeds, 3)
	assert.Equal(t, "A", result.Feeds[0].Title)
	assert.Equal(t, "B", result.Feeds[1].Title)
	assert.Equal(t, "C", result.Feeds[2].Title)
}

func TestParseRejectsUnsupportedSchemes(t *testing.T) {
	doc := `<opml version="2.0"><body>
		<outline text="FTP" xmlUrl="ftp://example.com/feed"/>
		<outline text="Feed scheme" xmlUrl="feed://example.com/feed"/>
	</body></opml>`

	result, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedScheme)
	require.Len(t, result.Feeds, 1)
	assert.Equal(t, "https://example.com/feed", result.Feeds[0].FeedURL)
}

func TestParseInvalidXML(t *testing.T) {
	_, err := Parse([]byte("not xml at all <"))
	assert.Error(t, err)
}

func TestNormalizeFeedURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"https://example.com/rss", "https://example.com/rss", false},
		{"http://example.com/rss", "http://example.com/rss", false},
		{"feed://example.com/rss", "https://example.com/rss", false},
		{"ftp://example.com/rss", "", true},
		{"example.com/rss", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeFeedURL(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}
