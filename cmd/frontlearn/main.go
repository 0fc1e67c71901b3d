package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn"
	"github.com/menta2k/frontlearn/internal/config"
	"github.com/menta2k/frontlearn/pkg/extraction"
	"github.com/menta2k/frontlearn/pkg/types"
)

type args struct {
	Sources      []string `arg:"positional" help:"parameter files (NAME VALUE lines) or JSON configs, processed in order"`
	Root         string   `arg:"--root" help:"directory holding the <GLACIER>.dir trees, unless ROOT_DIR is set"`
	Strict       bool     `arg:"--strict" help:"stop at the first failing configuration"`
	Verbose      bool     `arg:"-v,--verbose" help:"log per-epoch metrics"`
	DumpPatches  string   `arg:"--dump-patches" help:"write extracted patches under this directory"`
	DumpFormat   string   `arg:"--dump-format" help:"patch image format: png|jpg|webp"`
	DumpLimit    int      `arg:"--dump-limit" help:"patches written per split, 0 for all"`
	ExportConfig string   `arg:"--export-config" help:"convert the single given parameter file to a JSON config at this path and exit"`
}

func (args) Description() string {
	return "Sliding-window calving front classifier: extracts labeled patches, trains or resumes a checkpoint and reports test accuracy."
}

func (args) Version() string {
	return "frontlearn " + frontlearn.Version
}

func main() {
	a := args{
		Root:       ".",
		DumpFormat: "png",
		DumpLimit:  100,
	}
	p := arg.MustParse(&a)
	if len(a.Sources) == 0 {
		p.Fail("at least one parameter file is required")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if a.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	base := config.Default()
	base.Dataset.RootDir = a.Root

	fs := afero.NewOsFs()
	learner := frontlearn.New(
		frontlearn.WithFs(fs),
		frontlearn.WithLogger(log),
		frontlearn.WithStrict(a.Strict),
		frontlearn.WithBase(base),
	)

	if a.ExportConfig != "" {
		if len(a.Sources) != 1 {
			p.Fail("--export-config takes exactly one parameter file")
		}
		cfg, err := learner.LoadSource(a.Sources[0])
		if err != nil {
			log.WithError(err).Fatal("Failed to load parameter file")
		}
		if err := cfg.SaveToFile(fs, a.ExportConfig); err != nil {
			log.WithError(err).Fatal("Failed to export config")
		}
		log.WithField("path", a.ExportConfig).Info("Wrote config")
		return
	}

	reports, err := learner.RunAll(a.Sources)

	if a.DumpPatches != "" {
		for _, r := range reports {
			if r.Err != nil {
				continue
			}
			name := strings.TrimSuffix(r.Label, filepath.Ext(r.Label))
			splits := []struct {
				name string
				ds   *extraction.Dataset
			}{
				{string(types.Train), r.Result.Train},
				{string(types.Test), r.Result.Test},
			}
			for _, s := range splits {
				dir := filepath.Join(a.DumpPatches, name, s.name)
				n, derr := learner.ExportPatches(s.ds, dir, a.DumpFormat, a.DumpLimit)
				if derr != nil {
					log.WithError(derr).WithField("dir", dir).Error("Failed to dump patches")
					continue
				}
				log.WithFields(logrus.Fields{"dir": dir, "patches": n}).Info("Dumped patches")
			}
		}
	}

	if err != nil {
		log.WithError(err).Error("One or more configurations failed")
		os.Exit(1)
	}
}
