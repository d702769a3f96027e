// Package project persists a registration session: the scans being
// aligned, their estimated poses and the pairwise registration results,
// and builds the pose graph for global refinement from the accepted
// results.
package project

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scanreg/scanreg/mat"
	"github.com/scanreg/scanreg/registration/icp"
	"github.com/scanreg/scanreg/registration/posegraph"
)

// Scan is one point cloud of the session. Pose maps the scan's frame
// into the common world frame.
type Scan struct {
	ID   string   `yaml:"id"`
	File string   `yaml:"file"`
	Pose mat.Mat4 `yaml:"pose,flow"`
}

// PairResult is one recorded pairwise registration. Transform maps the
// source scan's frame onto the target scan's frame.
type PairResult struct {
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	Transform  mat.Mat4 `yaml:"transform,flow"`
	RMSError   float64  `yaml:"rms_error"`
	Iterations int      `yaml:"iterations"`
	Variant    string   `yaml:"variant"`
	Accepted   bool     `yaml:"accepted"`
}

// Project is a registration session document.
type Project struct {
	Name    string       `yaml:"name"`
	Scans   []Scan       `yaml:"scans"`
	Results []PairResult `yaml:"results"`
}

func New(name string) *Project {
	return &Project{Name: name}
}

// AddScan registers a scan with an identity initial pose. Adding an
// already known ID is an error.
func (p *Project) AddScan(id, file string) error {
	if _, ok := p.scan(id); ok {
		return fmt.Errorf("scan %q already exists", id)
	}
	p.Scans = append(p.Scans, Scan{ID: id, File: file, Pose: mat.Ident()})
	return nil
}

// SetPose updates the world pose of a scan.
func (p *Project) SetPose(id string, pose mat.Mat4) error {
	i, ok := p.scan(id)
	if !ok {
		return fmt.Errorf("unknown scan %q", id)
	}
	p.Scans[i].Pose = pose
	return nil
}

// Pose returns the world pose of a scan.
func (p *Project) Pose(id string) (mat.Mat4, error) {
	i, ok := p.scan(id)
	if !ok {
		return mat.Mat4{}, fmt.Errorf("unknown scan %q", id)
	}
	return p.Scans[i].Pose, nil
}

func (p *Project) scan(id string) (int, bool) {
	for i := range p.Scans {
		if p.Scans[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// AddResult records one pairwise registration outcome. New results
// start out not accepted; Accept promotes them into pose-graph input.
func (p *Project) AddResult(sourceID, targetID string, variant icp.Variant, r icp.Result) (int, error) {
	if _, ok := p.scan(sourceID); !ok {
		return 0, fmt.Errorf("unknown scan %q", sourceID)
	}
	if _, ok := p.scan(targetID); !ok {
		return 0, fmt.Errorf("unknown scan %q", targetID)
	}
	p.Results = append(p.Results, PairResult{
		Source:     sourceID,
		Target:     targetID,
		Transform:  r.Transform,
		RMSError:   r.RMSError,
		Iterations: r.Iterations,
		Variant:    variant.String(),
	})
	return len(p.Results) - 1, nil
}

// Accept marks a recorded result as pose-graph input.
func (p *Project) Accept(i int) error {
	if i < 0 || i >= len(p.Results) {
		return fmt.Errorf("result index %d out of range", i)
	}
	p.Results[i].Accepted = true
	return nil
}

// Discard removes the accepted mark from a recorded result.
func (p *Project) Discard(i int) error {
	if i < 0 || i >= len(p.Results) {
		return fmt.Errorf("result index %d out of range", i)
	}
	p.Results[i].Accepted = false
	return nil
}

// AcceptedResults returns the results marked as accepted, in recording
// order.
func (p *Project) AcceptedResults() []PairResult {
	var out []PairResult
	for _, r := range p.Results {
		if r.Accepted {
			out = append(out, r)
		}
	}
	return out
}

// BuildPoseGraph assembles the pose graph of the session: every scan
// becomes a node at its current pose, every accepted result an edge.
func (p *Project) BuildPoseGraph() *posegraph.Graph {
	b := posegraph.NewBuilder()
	for _, s := range p.Scans {
		b.SetPose(s.ID, s.Pose)
	}
	for _, r := range p.Results {
		if r.Accepted {
			b.Add(r.Source, r.Target, r.Transform, r.RMSError)
		}
	}
	return b.Build()
}

// ApplyOptimized writes refined pose-graph poses back onto the scans.
// Graph nodes without a matching scan are ignored.
func (p *Project) ApplyOptimized(g *posegraph.Graph) {
	for _, n := range g.Nodes {
		if i, ok := p.scan(n.ScanID); ok {
			p.Scans[i].Pose = n.Pose
		}
	}
}

// Save writes the project document as YAML.
func (p *Project) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

// SaveFile writes the project document to path.
func (p *Project) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a project document from YAML.
func Load(r io.Reader) (*Project, error) {
	p := &Project{}
	if err := yaml.NewDecoder(r).Decode(p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads a project document from path.
func LoadFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
