// Command scanreg registers point-cloud scans: align runs pairwise ICP
// between two PCD files, optimize refines all scan poses of a project
// over its accepted pairwise results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scanreg/scanreg/job"
	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/pc"
	"github.com/scanreg/scanreg/pcd"
	"github.com/scanreg/scanreg/project"
	"github.com/scanreg/scanreg/registration/icp"
	"github.com/scanreg/scanreg/registration/posegraph"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "align":
		err = alignCmd(ctx, logger, os.Args[2:])
	case "optimize":
		err = optimizeCmd(logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scanreg <command> [flags]

commands:
  align     run pairwise ICP between two PCD files
  optimize  refine all scan poses of a project over its accepted results`)
}

// alignParams is the optional YAML parameter file of the align command.
type alignParams struct {
	MaxIterations        int     `yaml:"max_iterations"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	OutlierRejection     *bool   `yaml:"outlier_rejection"`
	Variant              string  `yaml:"variant"`
	Workers              int     `yaml:"workers"`
}

func (a *alignParams) apply(p *icp.Params) error {
	if a.MaxIterations > 0 {
		p.MaxIterations = a.MaxIterations
	}
	if a.ConvergenceThreshold > 0 {
		p.ConvergenceThreshold = a.ConvergenceThreshold
	}
	if a.OutlierRejection != nil {
		p.OutlierRejection = *a.OutlierRejection
	}
	if a.Workers > 0 {
		p.Workers = a.Workers
	}
	switch a.Variant {
	case "":
	case "point_to_point":
		p.Variant = icp.PointToPoint
	case "point_to_plane":
		p.Variant = icp.PointToPlane
	default:
		return fmt.Errorf("unknown variant %q", a.Variant)
	}
	return nil
}

func alignCmd(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	sourceFile := fs.String("source", "", "Source PCD file (the cloud being moved)")
	targetFile := fs.String("target", "", "Target PCD file (the fixed cloud)")
	paramsFile := fs.String("params", "", "YAML parameter file")
	variant := fs.String("variant", "", "Error metric: point_to_point or point_to_plane")
	out := fs.String("out", "", "Write the aligned source cloud to this PCD file")
	projectFile := fs.String("project", "", "Record the result into this project file")
	sourceID := fs.String("source-id", "", "Scan ID of the source in the project")
	targetID := fs.String("target-id", "", "Scan ID of the target in the project")
	accept := fs.Bool("accept", false, "Mark the recorded result as accepted")
	fs.Parse(args)

	if *sourceFile == "" || *targetFile == "" {
		return fmt.Errorf("align requires -source and -target")
	}

	params := icp.DefaultParams()
	if *paramsFile != "" {
		b, err := os.ReadFile(*paramsFile)
		if err != nil {
			return err
		}
		var a alignParams
		if err := yaml.Unmarshal(b, &a); err != nil {
			return fmt.Errorf("parse %s: %w", *paramsFile, err)
		}
		if err := a.apply(&params); err != nil {
			return err
		}
	}
	if *variant != "" {
		if err := (&alignParams{Variant: *variant}).apply(&params); err != nil {
			return err
		}
	}

	source, err := pcd.ParseFile(*sourceFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", *sourceFile, err)
	}
	target, err := pcd.ParseFile(*targetFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", *targetFile, err)
	}
	logCloud(logger, "source", *sourceFile, source)
	logCloud(logger, "target", *targetFile, target)

	h := job.Submit(ctx, logger, "align",
		func(ctx context.Context, report func(job.Progress)) (icp.Result, error) {
			e := &icp.Engine{
				Params: params,
				Progress: func(p icp.Progress) {
					report(job.Progress{Iteration: p.Iteration, RMS: p.RMS})
				},
			}
			return e.Compute(ctx, source, target, mat.Ident())
		})
	for p := range h.Progress() {
		logger.Info("iteration",
			zap.Int("iteration", p.Iteration), zap.Float64("rms", p.RMS))
	}
	result, err := h.Wait()
	if err != nil {
		return err
	}
	logger.Info("alignment finished",
		zap.String("status", result.Status.String()),
		zap.Int("iterations", result.Iterations),
		zap.Float64("rms", result.RMSError))
	printTransform(result.Transform)

	if *out != "" {
		if err := pcd.WriteFile(*out, transformedCloud(source, result.Transform)); err != nil {
			return fmt.Errorf("write %s: %w", *out, err)
		}
		logger.Info("aligned cloud written", zap.String("file", *out))
	}

	if *projectFile != "" {
		if *sourceID == "" || *targetID == "" {
			return fmt.Errorf("-project requires -source-id and -target-id")
		}
		return record(logger, *projectFile, *sourceID, *targetID, params.Variant, result, *accept)
	}
	return nil
}

// record appends an alignment result to the project, creating it if it
// does not exist yet.
func record(logger *zap.Logger, path, sourceID, targetID string, variant icp.Variant, r icp.Result, accept bool) error {
	proj, err := project.LoadFile(path)
	if os.IsNotExist(err) {
		proj = project.New(path)
	} else if err != nil {
		return err
	}
	for _, id := range []string{sourceID, targetID} {
		if _, err := proj.Pose(id); err != nil {
			if err := proj.AddScan(id, ""); err != nil {
				return err
			}
		}
	}
	i, err := proj.AddResult(sourceID, targetID, variant, r)
	if err != nil {
		return err
	}
	if accept {
		if err := proj.Accept(i); err != nil {
			return err
		}
	}
	if err := proj.SaveFile(path); err != nil {
		return err
	}
	logger.Info("result recorded", zap.String("project", path),
		zap.Int("result", i), zap.Bool("accepted", accept))
	return nil
}

// optimizeParams is the optional YAML parameter file of the optimize
// command.
type optimizeParams struct {
	MaxIterations        int     `yaml:"max_iterations"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
}

func optimizeCmd(logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	projectFile := fs.String("project", "", "Project file holding scans and accepted results")
	paramsFile := fs.String("params", "", "YAML parameter file")
	out := fs.String("out", "", "Write the refined project here instead of in place")
	fs.Parse(args)

	if *projectFile == "" {
		return fmt.Errorf("optimize requires -project")
	}

	params := posegraph.DefaultOptimizeParams()
	if *paramsFile != "" {
		b, err := os.ReadFile(*paramsFile)
		if err != nil {
			return err
		}
		var o optimizeParams
		if err := yaml.Unmarshal(b, &o); err != nil {
			return fmt.Errorf("parse %s: %w", *paramsFile, err)
		}
		if o.MaxIterations > 0 {
			params.MaxIterations = o.MaxIterations
		}
		if o.ConvergenceThreshold > 0 {
			params.ConvergenceThreshold = o.ConvergenceThreshold
		}
	}

	proj, err := project.LoadFile(*projectFile)
	if err != nil {
		return err
	}
	g := proj.BuildPoseGraph()
	logger.Info("pose graph built",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("components", len(g.Components())))
	if len(g.Edges) == 0 {
		return fmt.Errorf("project has no accepted results")
	}

	refined, res, err := posegraph.Optimize(g, params)
	if err != nil {
		return err
	}
	logger.Info("optimization finished",
		zap.Bool("converged", res.Converged),
		zap.Int("iterations", res.Iterations),
		zap.Float64("initial_error", res.InitialError),
		zap.Float64("final_error", res.FinalError))

	proj.ApplyOptimized(refined)
	path := *out
	if path == "" {
		path = *projectFile
	}
	if err := proj.SaveFile(path); err != nil {
		return err
	}
	logger.Info("project written", zap.String("file", path))
	return nil
}

func logCloud(logger *zap.Logger, role, file string, pp *pc.PointCloud) {
	fields := []zap.Field{
		zap.String("role", role),
		zap.String("file", file),
		zap.Int("points", pp.Len()),
		zap.Bool("normals", pp.HasNormals()),
	}
	if min, max, err := pc.MinMaxVec3(pp); err == nil {
		fields = append(fields, zap.Float64s("min", min[:]), zap.Float64s("max", max[:]))
	}
	logger.Info("cloud loaded", fields...)
}

// transformedCloud materializes the moved source cloud for writing.
// Normals are rotated with the transform's rotation block.
func transformedCloud(pp *pc.PointCloud, trans mat.Mat4) *pc.PointCloud {
	out := &pc.PointCloud{Points: make([]mat.Vec3, pp.Len())}
	for i := range out.Points {
		out.Points[i] = trans.TransformAffine(pp.Vec3At(i))
	}
	if pp.HasIntensity() {
		out.Intensity = append([]float32(nil), pp.Intensity...)
	}
	if pp.HasNormals() {
		origin := trans.TransformAffine(mat.NewVec3(0, 0, 0))
		out.Normals = make([]mat.Vec3, len(pp.Normals))
		for i, n := range pp.Normals {
			out.Normals[i] = trans.TransformAffine(n).Sub(origin)
		}
	}
	return out
}

func printTransform(m mat.Mat4) {
	for i := 0; i < 4; i++ {
		fmt.Printf("% .9f % .9f % .9f % .9f\n",
			m[4*0+i], m[4*1+i], m[4*2+i], m[4*3+i])
	}
}
