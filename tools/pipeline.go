package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"meditrack.dev/duct/avrofile"
	"meditrack.dev/duct/config"
	"meditrack.dev/duct/model"
	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/backends"
	"meditrack.dev/duct/storage/endpoint"
	"meditrack.dev/duct/storage/localfs"
)

// ArtifactName is the file the pipeline writes and uploads.
const ArtifactName = "patients.avro"

// Pipeline writes the sample patients to an Avro container file in a local
// work directory and uploads it to <outputPath>/patients.avro on the
// configured file system. Partial remote results are left in place on
// failure.
type Pipeline struct {
	dial backends.Dialer
	log  *slog.Logger
}

type PipelineOption func(*Pipeline)

// WithDialer replaces the dialer used to connect to the output file system.
func WithDialer(dial backends.Dialer) PipelineOption {
	return func(p *Pipeline) {
		p.dial = dial
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		dial: backends.Dial,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := p.logger()
	log.Info("pipeline started", "fileSystem", cfg.Source().String(), "outputPath", cfg.OutputPath)

	ep, err := endpoint.Resolve(cfg.Source())
	if err != nil {
		return err
	}
	remote, err := backends.OpenWith(ctx, p.dial, ep)
	if err != nil {
		return err
	}
	defer remote.Close()

	workDir, cleanup, err := prepareWorkDir(cfg.WorkDir)
	if err != nil {
		return err
	}
	defer cleanup()

	count, err := writePatients(ctx, workDir, cfg.AvroCodec())
	if err != nil {
		return err
	}

	localPath := filepath.Join(workDir, ArtifactName)
	dst := path.Join(cfg.OutputPath, ArtifactName)
	log.Info("uploading artifact", "src", localPath, "dst", dst)
	if err := remote.Upload(ctx, localPath, dst, storage.WithReplication(cfg.Replication)); err != nil {
		return err
	}

	info, err := remote.Status(ctx, dst)
	if err != nil {
		return err
	}
	printer := message.NewPrinter(language.English)
	log.Info("pipeline finished",
		"summary", printer.Sprintf("uploaded %d patients, %d bytes", count, info.Size),
		"endpoint", ep.String(),
		"path", dst)
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.log == nil {
		p.log = slog.With("scope", "duct")
	}
	return p.log
}

// prepareWorkDir returns dir, creating it if needed, or a temporary directory
// that cleanup removes.
func prepareWorkDir(dir string) (string, func(), error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return "", nil, fmt.Errorf("creating work dir: %w", err)
		}
		return dir, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "duct-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating work dir: %w", err)
	}
	return tmp, func() {
		if err := os.RemoveAll(tmp); err != nil {
			slog.Warn("failed to remove work dir", "dir", tmp, "err", err)
		}
	}, nil
}

// writePatients writes the sample patients into workDir through a local file
// system and returns the number of records written.
func writePatients(ctx context.Context, workDir string, codec avrofile.Codec) (int, error) {
	local := storage.New(endpoint.Endpoint{Scheme: endpoint.SchemeFile, Root: workDir}, localfs.NewDirectory(workDir))
	defer local.Close()

	f, err := local.OpenWrite(ctx, ArtifactName, false)
	if err != nil {
		return 0, err
	}
	w, err := avrofile.NewWriter[model.Patient](f, codec)
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := w.Append(model.SamplePatients()...); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("writing %s: %w", ArtifactName, err)
	}
	return w.Count(), nil
}
