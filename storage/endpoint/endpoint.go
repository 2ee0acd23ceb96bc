// Package endpoint resolves configuration sources into the identity of a
// storage backend.
package endpoint

import (
	"errors"
	"strings"
)

// ErrConfiguration reports a malformed or unusable endpoint configuration.
var ErrConfiguration = errors.New("invalid file system configuration")

type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeHDFS Scheme = "hdfs"
	SchemeS3   Scheme = "s3"
)

// Endpoint identifies a storage backend. It is a plain value and is never
// modified after Resolve returns it.
type Endpoint struct {
	Scheme Scheme

	// Root is the local directory that paths are joined onto. Empty means
	// paths are used as given.
	Root string

	// Addresses lists the namenode host:port pairs of an HDFS cluster.
	Addresses []string
	// User is the HDFS user. Empty lets the client pick one.
	User string

	Bucket      string
	Prefix      string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// LocalEndpoint addresses the local disk with paths used as given.
var LocalEndpoint = Endpoint{Scheme: SchemeFile}

func (e Endpoint) IsLocal() bool {
	return e.Scheme == SchemeFile
}

// String renders the endpoint as a file system URI.
func (e Endpoint) String() string {
	switch e.Scheme {
	case SchemeFile:
		if e.Root == "" {
			return "file:///"
		}
		return "file://" + e.Root
	case SchemeHDFS:
		authority := strings.Join(e.Addresses, ",")
		if e.User != "" {
			authority = e.User + "@" + authority
		}
		return "hdfs://" + authority
	case SchemeS3:
		if e.Prefix == "" {
			return "s3://" + e.Bucket
		}
		return "s3://" + e.Bucket + "/" + e.Prefix
	default:
		return string(e.Scheme) + "://"
	}
}
