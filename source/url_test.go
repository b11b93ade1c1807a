package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected ObjectLocation
	}{
		{
			name:     "virtual hosted with region",
			raw:      "https://filings.s3.ap-south-1.amazonaws.com/abc/annual%20report.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "abc/annual report.pdf", Region: "ap-south-1"},
		},
		{
			name:     "virtual hosted without region",
			raw:      "https://filings.s3.amazonaws.com/abc/q1.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "abc/q1.pdf"},
		},
		{
			name:     "dashed region",
			raw:      "https://filings.s3-us-west-2.amazonaws.com/q1.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "q1.pdf", Region: "us-west-2"},
		},
		{
			name:     "path style",
			raw:      "https://s3.eu-west-1.amazonaws.com/filings/abc/q1.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "abc/q1.pdf", Region: "eu-west-1"},
		},
		{
			name:     "s3 uri",
			raw:      "s3://filings/abc/q1.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "abc/q1.pdf"},
		},
		{
			name:     "generic endpoint",
			raw:      "http://localhost:9000/filings/abc/q1.pdf",
			expected: ObjectLocation{Bucket: "filings", Key: "abc/q1.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseObjectURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, loc)
		})
	}
}

func TestParseObjectURL_Invalid(t *testing.T) {
	for _, raw := range []string{"ftp://host/b/k", "https://filings.s3.amazonaws.com/", "s3://bucket"} {
		_, err := ParseObjectURL(raw)
		assert.ErrorIs(t, err, ErrInvalidLocation, raw)
	}
}

func TestObjectURL_RoundTrip(t *testing.T) {
	u := ObjectURL("filings", "", "abc/FY 2024/report #1.pdf")
	assert.Equal(t, "https://filings.s3.ap-south-1.amazonaws.com/abc/FY%202024/report%20%231.pdf", u)

	loc, err := ParseObjectURL(u)
	require.NoError(t, err)
	assert.Equal(t, "abc/FY 2024/report #1.pdf", loc.Key)
	assert.Equal(t, "ap-south-1", loc.Region)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://b.s3.amazonaws.com/k"))
	assert.True(t, IsRemote("S3://b/k"))
	assert.False(t, IsRemote("/data/file.pdf"))
	assert.False(t, IsRemote("relative/file.pdf"))
}

func TestParseStorageLocation(t *testing.T) {
	bucket, prefix, err := ParseStorageLocation("test-bucket/hospital/north")
	require.NoError(t, err)
	assert.Equal(t, "test-bucket", bucket)
	assert.Equal(t, "hospital/north", prefix)

	_, _, err = ParseStorageLocation("bucket-only")
	assert.ErrorIs(t, err, ErrInvalidLocation)
}
