package endpoint

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/colinmarc/hdfs/v2/hadoopconf"
)

const defaultNamenodePort = "8020"

type sourceKind int

const (
	sourceDefault sourceKind = iota
	sourceLocal
	sourceName
	sourceConfDir
)

// Source describes where an Endpoint comes from.
type Source struct {
	kind  sourceKind
	value string
}

// Default reads fs.defaultFS from the Hadoop configuration found through
// HADOOP_CONF_DIR or HADOOP_HOME, falling back to the local disk.
func Default() Source { return Source{kind: sourceDefault} }

// Local addresses the local disk.
func Local() Source { return Source{kind: sourceLocal} }

// Name addresses a file system by URI, e.g. hdfs://namenode:8020 or
// s3://bucket/prefix.
func Name(name string) Source { return Source{kind: sourceName, value: name} }

// ConfDir reads core-site.xml and hdfs-site.xml from a Hadoop configuration
// directory.
func ConfDir(dir string) Source { return Source{kind: sourceConfDir, value: dir} }

// Parse maps a command line value to a Source. Empty, "local" and "file:///"
// select Local, "default" selects Default, a "conf:" prefix selects ConfDir
// and anything else is treated as a Name.
func Parse(s string) Source {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "local" || s == "file:///" || s == "file:/":
		return Local()
	case s == "default":
		return Default()
	case strings.HasPrefix(s, "conf:"):
		return ConfDir(strings.TrimPrefix(s, "conf:"))
	default:
		return Name(s)
	}
}

func (s Source) String() string {
	switch s.kind {
	case sourceLocal:
		return "local"
	case sourceName:
		return s.value
	case sourceConfDir:
		return "conf:" + s.value
	default:
		return "default"
	}
}

// Resolve builds the Endpoint described by src. Errors wrap ErrConfiguration.
func Resolve(src Source) (Endpoint, error) {
	switch src.kind {
	case sourceLocal:
		return LocalEndpoint, nil
	case sourceName:
		conf, err := hadoopconf.LoadFromEnvironment()
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: loading hadoop environment: %w", ErrConfiguration, err)
		}
		return resolveName(src.value, conf)
	case sourceConfDir:
		return resolveConfDir(src.value)
	default:
		conf, err := hadoopconf.LoadFromEnvironment()
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: loading hadoop environment: %w", ErrConfiguration, err)
		}
		name := defaultFS(conf)
		if name == "" {
			return LocalEndpoint, nil
		}
		return resolveName(name, conf)
	}
}

func resolveConfDir(dir string) (Endpoint, error) {
	if dir == "" {
		return Endpoint{}, fmt.Errorf("%w: empty configuration directory", ErrConfiguration)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if !info.IsDir() {
		return Endpoint{}, fmt.Errorf("%w: %s is not a directory", ErrConfiguration, dir)
	}

	conf, err := hadoopconf.Load(dir)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: loading %s: %w", ErrConfiguration, dir, err)
	}

	if name := defaultFS(conf); name != "" {
		return resolveName(name, conf)
	}
	namenodes := conf.Namenodes()
	if len(namenodes) == 0 {
		return Endpoint{}, fmt.Errorf("%w: no fs.defaultFS or namenodes in %s", ErrConfiguration, dir)
	}
	return Endpoint{Scheme: SchemeHDFS, Addresses: namenodes}, nil
}

func defaultFS(conf hadoopconf.HadoopConf) string {
	if name := conf["fs.defaultFS"]; name != "" {
		return name
	}
	return conf["fs.default.name"]
}

func resolveName(name string, conf hadoopconf.HadoopConf) (Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "local" {
		return LocalEndpoint, nil
	}

	scheme, rest, ok := strings.Cut(name, "://")
	if !ok {
		// A bare host:port names a namenode.
		if _, _, err := net.SplitHostPort(name); err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q is neither a URI nor host:port", ErrConfiguration, name)
		}
		return Endpoint{Scheme: SchemeHDFS, Addresses: []string{name}}, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		root := strings.TrimRight(rest, "/")
		if root != "" && !strings.HasPrefix(root, "/") {
			return Endpoint{}, fmt.Errorf("%w: file URI %q must be absolute", ErrConfiguration, name)
		}
		return Endpoint{Scheme: SchemeFile, Root: root}, nil
	case "hdfs":
		return resolveHDFS(name, rest, conf)
	case "s3", "s3a":
		return resolveS3(name, rest)
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrConfiguration, scheme)
	}
}

func resolveHDFS(name, rest string, conf hadoopconf.HadoopConf) (Endpoint, error) {
	authority, _, _ := strings.Cut(rest, "/")
	var user string
	if u, a, ok := strings.Cut(authority, "@"); ok {
		user, authority = u, a
	}
	if authority == "" {
		return Endpoint{}, fmt.Errorf("%w: hdfs URI %q has no host", ErrConfiguration, name)
	}

	var addresses []string
	for _, host := range strings.Split(authority, ",") {
		if host == "" {
			return Endpoint{}, fmt.Errorf("%w: hdfs URI %q has an empty host", ErrConfiguration, name)
		}
		if _, _, err := net.SplitHostPort(host); err == nil {
			addresses = append(addresses, host)
			continue
		}
		// Without a port the host may be an HA nameservice.
		if nns := nameserviceAddresses(conf, host); len(nns) > 0 {
			addresses = append(addresses, nns...)
			continue
		}
		addresses = append(addresses, net.JoinHostPort(host, defaultNamenodePort))
	}

	return Endpoint{Scheme: SchemeHDFS, Addresses: addresses, User: user}, nil
}

// nameserviceAddresses looks up the RPC addresses of the namenodes of an HA
// nameservice.
func nameserviceAddresses(conf hadoopconf.HadoopConf, nameservice string) []string {
	ids := conf["dfs.ha.namenodes."+nameservice]
	if ids == "" {
		return nil
	}
	var addresses []string
	for _, id := range strings.Split(ids, ",") {
		addr := conf["dfs.namenode.rpc-address."+nameservice+"."+strings.TrimSpace(id)]
		if addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

func resolveS3(name, rest string) (Endpoint, error) {
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Endpoint{}, fmt.Errorf("%w: S3 URI %q must include a bucket", ErrConfiguration, name)
	}
	return Endpoint{
		Scheme:      SchemeS3,
		Bucket:      bucket,
		Prefix:      strings.Trim(prefix, "/"),
		S3Region:    os.Getenv("AWS_REGION"),
		S3Endpoint:  os.Getenv("AWS_ENDPOINT_URL_S3"),
		S3PathStyle: strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true"),
	}, nil
}

// SplitURI separates a file URI into the Source of its file system and the
// path within it. Plain paths belong to the local disk.
//
//	SplitURI("s3://bucket/conf/job.json")    => Name("s3://bucket"), "conf/job.json"
//	SplitURI("hdfs://nn:8020/etc/job.json")  => Name("hdfs://nn:8020"), "/etc/job.json"
//	SplitURI("/etc/job.json")                => Local(), "/etc/job.json"
func SplitURI(uri string) (Source, string) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Local(), uri
	}
	switch strings.ToLower(scheme) {
	case "file":
		return Local(), rest
	case "s3", "s3a":
		bucket, key, _ := strings.Cut(rest, "/")
		return Name(scheme + "://" + bucket), key
	default:
		authority, p, _ := strings.Cut(rest, "/")
		return Name(scheme + "://" + authority), "/" + p
	}
}
