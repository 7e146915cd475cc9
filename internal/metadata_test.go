package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		metadata BookMetadata
		json     string
	}{
		{BookRoyalRoad{BookID: 12345}, `{"RoyalRoad":12345}`},
		{BookPale{}, `"Pale"`},
		{BookWanderingInn{}, `"TheWanderingInnPatreon"`},
		{BookDailyGrind{}, `"TheDailyGrindPatreon"`},
		{BookApparatus{}, `"ApparatusOfChangePatreon"`},
	}
	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			encoded, err := marshalBookMetadata(tt.metadata)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(encoded))

			decoded, err := unmarshalBookMetadata(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.metadata, decoded)
		})
	}
}

func TestChapterMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	password := "solstice"
	tests := []struct {
		metadata ChapterMetadata
		json     string
	}{
		{
			ChapterRoyalRoad{BookID: 12345, ChapterID: 678},
			`{"RoyalRoad":{"royalroad_book_id":12345,"royalroad_chapter_id":678}}`,
		},
		{
			ChapterPale{URL: "https://palewebserial.wordpress.com/2023/01/01/1-1/"},
			`{"Pale":{"url":"https://palewebserial.wordpress.com/2023/01/01/1-1/"}}`,
		},
		{
			ChapterWanderingInn{URL: "https://wanderinginn.com/2023/01/01/9-01/", Password: &password},
			`{"TheWanderingInnPatreon":{"url":"https://wanderinginn.com/2023/01/01/9-01/","password":"solstice"}}`,
		},
		{
			ChapterWanderingInn{URL: "https://wanderinginn.com/2023/01/01/9-02/"},
			`{"TheWanderingInnPatreon":{"url":"https://wanderinginn.com/2023/01/01/9-02/","password":null}}`,
		},
		{ChapterDailyGrind{}, `"TheDailyGrindPatreon"`},
		{ChapterApparatus{}, `"ApparatusOfChangePatreon"`},
	}
	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			encoded, err := marshalChapterMetadata(tt.metadata)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(encoded))

			decoded, err := unmarshalChapterMetadata(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.metadata, decoded)
		})
	}
}

func TestMetadataUnknownVariants(t *testing.T) {
	t.Parallel()

	_, err := unmarshalBookMetadata([]byte(`"Worm"`))
	assert.Error(t, err)
	_, err = unmarshalBookMetadata([]byte(`{"Worm":1}`))
	assert.Error(t, err)
	_, err = unmarshalChapterMetadata([]byte(`"Pale"`))
	assert.Error(t, err, "Pale chapters carry a url payload")
	_, err = marshalBookMetadata(nil)
	assert.Error(t, err)
	_, err = marshalChapterMetadata(nil)
	assert.Error(t, err)
}

func TestCompatibleMetadata(t *testing.T) {
	t.Parallel()

	assert.True(t, compatibleMetadata(BookRoyalRoad{BookID: 1}, ChapterRoyalRoad{BookID: 1, ChapterID: 2}))
	assert.True(t, compatibleMetadata(BookWanderingInn{}, ChapterWanderingInn{URL: "u"}))
	assert.False(t, compatibleMetadata(BookPale{}, ChapterRoyalRoad{}))
	assert.False(t, compatibleMetadata(nil, ChapterPale{}))
	assert.False(t, compatibleMetadata(BookPale{}, nil))
}
