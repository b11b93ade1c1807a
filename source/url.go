package source

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegion is the object storage region used when none is configured.
const DefaultRegion = "ap-south-1"

// ObjectLocation identifies one object in a bucket.
type ObjectLocation struct {
	Bucket string
	Key    string
	Region string
}

// IsRemote reports whether location names an object rather than a local path.
func IsRemote(location string) bool {
	lower := strings.ToLower(strings.TrimSpace(location))
	return strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "s3://")
}

// ParseObjectURL extracts bucket and key from a virtual-hosted object URL
// (https://bucket.s3.region.amazonaws.com/key), a path-style URL
// (https://s3.region.amazonaws.com/bucket/key) or an s3://bucket/key URI.
// Percent-escapes in the key are decoded.
func ParseObjectURL(raw string) (ObjectLocation, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ObjectLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	var loc ObjectLocation
	switch strings.ToLower(u.Scheme) {
	case "s3":
		loc = ObjectLocation{Bucket: u.Host, Key: key}
	case "http", "https":
		host := strings.ToLower(u.Hostname())
		labels := strings.Split(host, ".")
		switch {
		case len(labels) >= 3 && isS3Label(labels[1]):
			// bucket.s3.region.amazonaws.com or bucket.s3.amazonaws.com
			loc = ObjectLocation{Bucket: labels[0], Key: key, Region: regionFromLabels(labels[1:])}
		case len(labels) >= 2 && isS3Label(labels[0]):
			bucket, rest, _ := strings.Cut(key, "/")
			loc = ObjectLocation{Bucket: bucket, Key: rest, Region: regionFromLabels(labels)}
		default:
			// Generic S3-compatible endpoint, path style.
			bucket, rest, _ := strings.Cut(key, "/")
			loc = ObjectLocation{Bucket: bucket, Key: rest}
		}
	default:
		return ObjectLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocation, u.Scheme)
	}

	if loc.Bucket == "" || loc.Key == "" {
		return ObjectLocation{}, fmt.Errorf("%w: %s", ErrInvalidLocation, raw)
	}
	return loc, nil
}

func isS3Label(label string) bool {
	return label == "s3" || strings.HasPrefix(label, "s3-")
}

// regionFromLabels reads the region from host labels starting at the "s3" label.
func regionFromLabels(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	if region, ok := strings.CutPrefix(labels[0], "s3-"); ok {
		return region
	}
	if labels[1] == "amazonaws" {
		return ""
	}
	return labels[1]
}

// ObjectURL formats the virtual-hosted URL of an object, escaping each key segment.
func ObjectURL(bucket, region, key string) string {
	if region == "" {
		region = DefaultRegion
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.Join(segments, "/"))
}

// ParseStorageLocation splits a company storage location "bucket/prefix" on its first slash.
func ParseStorageLocation(location string) (bucket, prefix string, err error) {
	bucket, prefix, ok := strings.Cut(strings.Trim(strings.TrimSpace(location), "/"), "/")
	if !ok || bucket == "" || prefix == "" {
		return "", "", fmt.Errorf("%w: %q is not bucket/prefix", ErrInvalidLocation, location)
	}
	return bucket, prefix, nil
}
